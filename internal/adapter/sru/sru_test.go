package sru

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbbooher/argus-panoptes/internal/adapter"
	"github.com/tbbooher/argus-panoptes/internal/breaker"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

const kohaResponseBody = `<?xml version="1.0" encoding="UTF-8"?>
<searchRetrieveResponse>
  <numberOfRecords>1</numberOfRecords>
  <records>
    <record>
      <recordData>
        <record>
          <leader>00000cam a2200000 a 4500</leader>
          <datafield tag="952" ind1=" " ind2=" ">
            <subfield code="b">main</subfield>
            <subfield code="o">FIC SMI</subfield>
            <subfield code="p">BC12345</subfield>
            <subfield code="y">bk</subfield>
            <subfield code="7">0</subfield>
            <subfield code="q">2025-12-15</subfield>
          </datafield>
        </record>
      </recordData>
    </record>
  </records>
</searchRetrieveResponse>`

const genericResponseBody = `<?xml version="1.0" encoding="UTF-8"?>
<searchRetrieveResponse>
  <numberOfRecords>1</numberOfRecords>
  <records>
    <record>
      <recordData>
        <record>
          <leader>00000cam a2200000 a 4500</leader>
          <datafield tag="852" ind1=" " ind2=" ">
            <subfield code="b">branch-x</subfield>
            <subfield code="h">FIC DOE</subfield>
          </datafield>
        </record>
      </recordData>
    </record>
  </records>
</searchRetrieveResponse>`

// S2. Koha 952 with $b=main, $o="FIC SMI", $q="2025-12-15" -> one holding,
// status checked_out, dueDate "2025-12-15".
func TestKohaAdapterS2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(kohaResponseBody))
	}))
	defer srv.Close()

	system := model.LibrarySystem{
		ID:   "sys-koha",
		Name: "Koha Test",
		Branches: []model.Branch{
			{ID: "main", Name: "Main Library", Code: "main"},
		},
	}
	cfg := model.AdapterConfig{BaseURL: srv.URL}
	br := breaker.New(3, time.Minute)
	tracker := health.New()

	a := NewKoha(cfg, tracker, br, srv.Client(), adapter.WithRetry(0, 0))
	outcome, err := a.Search(context.Background(), "9780306406157", system)
	require.NoError(t, err)
	require.Len(t, outcome.Holdings, 1)

	h := outcome.Holdings[0]
	assert.Equal(t, model.StatusCheckedOut, h.Status)
	assert.Equal(t, "2025-12-15", h.DueDate)
	assert.Equal(t, model.BranchId("main"), h.BranchID)
	assert.Equal(t, "FIC SMI", h.CallNumber)
	assert.Equal(t, model.MaterialBook, h.MaterialType)
}

func TestGenericSRUAdapterUnmatchedBranchUsesRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(genericResponseBody))
	}))
	defer srv.Close()

	system := model.LibrarySystem{ID: "sys-generic", Name: "Generic SRU"}
	cfg := model.AdapterConfig{BaseURL: srv.URL}
	br := breaker.New(3, time.Minute)
	tracker := health.New()

	a := NewGeneric(cfg, tracker, br, srv.Client(), adapter.WithRetry(0, 0))
	outcome, err := a.Search(context.Background(), "9780306406157", system)
	require.NoError(t, err)
	require.Len(t, outcome.Holdings, 1)

	h := outcome.Holdings[0]
	assert.Equal(t, model.StatusUnknown, h.Status) // generic can't supply real-time availability
	assert.Equal(t, model.BranchId("branch-x"), h.BranchID)
}

func TestSRUAdapterMapsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := model.AdapterConfig{BaseURL: srv.URL}
	br := breaker.New(3, time.Minute)
	tracker := health.New()

	a := NewGeneric(cfg, tracker, br, srv.Client(), adapter.WithRetry(0, 0))
	_, err := a.Search(context.Background(), "9780306406157", model.LibrarySystem{ID: "sys"})
	require.Error(t, err)
}
