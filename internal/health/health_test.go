package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tbbooher/argus-panoptes/internal/model"
)

func TestRecordSuccessAndFailure(t *testing.T) {
	tr := New()
	sysID := model.LibrarySystemId("koha-main")

	tr.RecordSuccess(sysID, 100*time.Millisecond)
	tr.RecordSuccess(sysID, 50*time.Millisecond)
	tr.RecordFailure(sysID, errors.New("timed out"), 200*time.Millisecond)

	rec := tr.GetSystemHealth(sysID)
	assert.EqualValues(t, 2, rec.SuccessCount)
	assert.EqualValues(t, 1, rec.FailureCount)
	assert.Equal(t, "timed out", rec.LastError)
	assert.InDelta(t, 2.0/3.0, rec.SuccessRate(), 0.001)
}

func TestSuccessRateZeroWithNoSamples(t *testing.T) {
	tr := New()
	assert.Equal(t, float64(0), tr.GetSuccessRate(model.LibrarySystemId("never-called")))
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	tr := New()
	sysID := model.LibrarySystemId("sys-a")
	tr.RecordSuccess(sysID, time.Second)

	snap := tr.GetSystemHealth(sysID)
	snap.SuccessCount = 999

	fresh := tr.GetSystemHealth(sysID)
	assert.EqualValues(t, 1, fresh.SuccessCount)
}

func TestAllReturnsEveryTrackedSystem(t *testing.T) {
	tr := New()
	tr.RecordSuccess(model.LibrarySystemId("a"), time.Second)
	tr.RecordFailure(model.LibrarySystemId("b"), errors.New("x"), time.Second)

	all := tr.All()
	assert.Len(t, all, 2)
}
