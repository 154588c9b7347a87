package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbbooher/argus-panoptes/internal/apperr"
	"github.com/tbbooher/argus-panoptes/internal/breaker"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

func TestNormalizeStatusTable(t *testing.T) {
	cases := []struct {
		raw  string
		want model.ItemStatus
	}{
		{"Available", model.StatusAvailable},
		{"On Shelf", model.StatusAvailable},
		{"IN", model.StatusAvailable},
		{"Due 12-15-2025", model.StatusCheckedOut},
		{"Checked Out", model.StatusCheckedOut},
		{"Not Available", model.StatusCheckedOut},
		{"In Transit", model.StatusInTransit},
		{"On Hold", model.StatusOnHold},
		{"On Order", model.StatusOnOrder},
		{"Processing", model.StatusInProcessing},
		{"Cataloging", model.StatusInProcessing},
		{"Missing", model.StatusMissing},
		{"Lost", model.StatusMissing},
		{"Withdrawn", model.StatusMissing},
		{"Something Weird", model.StatusUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeStatus(tc.raw), "raw=%q", tc.raw)
	}
}

func TestFingerprintIsLowercaseAndStable(t *testing.T) {
	fp1 := Fingerprint("sys-A", "9780306406157", "MAIN", "BC001")
	fp2 := Fingerprint("sys-A", "9780306406157", "MAIN", "BC001")
	assert.Equal(t, fp1, fp2)
	assert.Equal(t, "sys-a:9780306406157:main:bc001", fp1)
}

func TestBaseAdapterSearchSuccessRecordsHealthAndBreaker(t *testing.T) {
	br := breaker.New(3, time.Minute)
	tracker := health.New()

	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		return []model.BookHolding{
			{SystemID: system.ID, ISBN: string(isbn13), BranchID: "main", RawStatus: "Available", Barcode: "BC1"},
		}, nil
	}

	ba := NewBaseAdapter("sru", model.AdapterConfig{TimeoutMs: 1000}, tracker, br, execute, nil, WithRetry(0, 0))

	system := model.LibrarySystem{ID: "sys-a"}
	outcome, err := ba.Search(context.Background(), "9780306406157", system)
	require.NoError(t, err)
	require.Len(t, outcome.Holdings, 1)
	assert.Equal(t, model.StatusAvailable, outcome.Holdings[0].Status)
	assert.Equal(t, "sys-a:9780306406157:main:bc1", outcome.Holdings[0].Fingerprint)

	rec := tracker.GetSystemHealth("sys-a")
	assert.Equal(t, int64(1), rec.SuccessCount)
	assert.Equal(t, breaker.Closed, br.GetState())
}

func TestBaseAdapterSearchSkipsWhenBreakerOpen(t *testing.T) {
	br := breaker.New(1, time.Hour)
	tracker := health.New()

	calls := 0
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		calls++
		return nil, apperr.Connection("boom", nil)
	}

	ba := NewBaseAdapter("sru", model.AdapterConfig{}, tracker, br, execute, nil, WithRetry(0, 0))
	system := model.LibrarySystem{ID: "sys-a"}

	_, err := ba.Search(context.Background(), "9780306406157", system)
	require.Error(t, err)
	assert.Equal(t, breaker.Open, br.GetState())
	assert.Equal(t, 1, calls)

	_, err = ba.Search(context.Background(), "9780306406157", system)
	require.Error(t, err)
	assert.Equal(t, apperr.KindCircuitOpen, apperr.KindOf(err))
	assert.Equal(t, 1, calls) // second call never reached executeSearch
}

func TestBaseAdapterHealthCheckUsesProbe(t *testing.T) {
	br := breaker.New(3, time.Minute)
	tracker := health.New()

	probe := func(ctx context.Context, system model.LibrarySystem) error {
		return nil
	}
	ba := NewBaseAdapter("sru", model.AdapterConfig{}, tracker, br, nil, probe)

	result, err := ba.HealthCheck(context.Background(), model.LibrarySystem{ID: "sys-a"})
	require.NoError(t, err)
	assert.True(t, result.Healthy)
}
