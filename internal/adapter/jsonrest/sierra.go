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

// sierraItemsResponse mirrors Sierra REST API's /v6/items response
// shape, keyed by bib-linked item entries.
type sierraItemsResponse struct {
	Entries []sierraItem `json:"entries"`
}

type sierraItem struct {
	Location struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"location"`
	CallNumber string `json:"callNumber"`
	Status     struct {
		Display string `json:"display"`
		DueDate string `json:"duedate"`
	} `json:"status"`
}

// NewSierra builds the Sierra REST (Innovative) adapter.
func NewSierra(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		reqURL := cfg.BaseURL + "/v6/items?isbn=" + url.QueryEscape(string(isbn13))
		req, err := newGetRequest(ctx, reqURL, cfg.ClientKey)
		if err != nil {
			return nil, err
		}

		body, err := fetchJSON(client, req)
		if err != nil {
			return nil, err
		}

		var parsed sierraItemsResponse
		if err := decodeJSON(body, &parsed); err != nil {
			return nil, err
		}

		holdings := make([]model.BookHolding, 0, len(parsed.Entries))
		for _, item := range parsed.Entries {
			branch, matched := system.BranchByCode(item.Location.Code)
			branchID := model.BranchId(item.Location.Code)
			branchName := item.Location.Name
			if matched {
				branchID = branch.ID
				branchName = branch.Name
			}

			holdings = append(holdings, model.BookHolding{
				ISBN:       string(isbn13),
				SystemID:   system.ID,
				SystemName: system.Name,
				BranchID:   branchID,
				BranchName: branchName,
				CallNumber: item.CallNumber,
				DueDate:    item.Status.DueDate,
				CatalogURL: system.CatalogURL,
				RawStatus:  item.Status.Display,
				Source:     model.SourceDirect,
			})
		}
		return holdings, nil
	}
	return adapter.NewBaseAdapter("sierra-rest", cfg, tracker, br, execute, nil, opts...)
}
