package jsonrest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tbbooher/argus-panoptes/internal/adapter"
	"github.com/tbbooher/argus-panoptes/internal/breaker"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

// polarisHoldingsResponse mirrors Polaris PAPI's
// /public/v1/.../bib/{isbn}/holdings response shape.
type polarisHoldingsResponse struct {
	HoldingsGetRows []polarisHolding `json:"HoldingsGetRows"`
}

type polarisHolding struct {
	OrganizationName string `json:"OrganizationName"`
	OrganizationCode string `json:"OrganizationCode"`
	CallNumber       string `json:"CallNumber"`
	StatusDescription string `json:"StatusDescription"`
	NumberOfHolds    int    `json:"NumberOfHoldsOnShelf"`
}

// NewPolaris builds the Polaris PAPI adapter.
func NewPolaris(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		reqURL := cfg.BaseURL + "/public/v1/bib/" + url.PathEscape(string(isbn13)) + "/holdings"
		req, err := newGetRequest(ctx, reqURL, cfg.ClientKey)
		if err != nil {
			return nil, err
		}

		body, err := fetchJSON(client, req)
		if err != nil {
			return nil, err
		}

		var parsed polarisHoldingsResponse
		if err := decodeJSON(body, &parsed); err != nil {
			return nil, err
		}

		holdings := make([]model.BookHolding, 0, len(parsed.HoldingsGetRows))
		for _, h := range parsed.HoldingsGetRows {
			branch, matched := system.BranchByCode(h.OrganizationCode)
			branchID := model.BranchId(h.OrganizationCode)
			branchName := h.OrganizationName
			if matched {
				branchID = branch.ID
				branchName = branch.Name
			}

			var holdCount *int
			if h.NumberOfHolds > 0 {
				n := h.NumberOfHolds
				holdCount = &n
			}

			holdings = append(holdings, model.BookHolding{
				ISBN:       string(isbn13),
				SystemID:   system.ID,
				SystemName: system.Name,
				BranchID:   branchID,
				BranchName: branchName,
				CallNumber: h.CallNumber,
				HoldCount:  holdCount,
				CatalogURL: system.CatalogURL,
				RawStatus:  h.StatusDescription,
				Source:     model.SourceDirect,
			})
		}
		return holdings, nil
	}
	return adapter.NewBaseAdapter("polaris-papi", cfg, tracker, br, execute, nil, opts...)
}
