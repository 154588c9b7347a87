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

// apolloCopiesResponse mirrors Biblionix Apollo's copies-by-ISBN
// endpoint response shape.
type apolloCopiesResponse struct {
	Copies []apolloCopy `json:"copies"`
}

type apolloCopy struct {
	Library    string `json:"library"`
	Collection string `json:"collection"`
	CallNo     string `json:"call_no"`
	Status     string `json:"status"`
	DueDate    string `json:"due_date"`
}

// NewApollo builds the Biblionix Apollo adapter.
func NewApollo(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		reqURL := cfg.BaseURL + "/api/copies?isbn=" + url.QueryEscape(string(isbn13))
		req, err := newGetRequest(ctx, reqURL, cfg.ClientKey)
		if err != nil {
			return nil, err
		}

		body, err := fetchJSON(client, req)
		if err != nil {
			return nil, err
		}

		var parsed apolloCopiesResponse
		if err := decodeJSON(body, &parsed); err != nil {
			return nil, err
		}

		holdings := make([]model.BookHolding, 0, len(parsed.Copies))
		for _, c := range parsed.Copies {
			branch, matched := system.BranchByCode(c.Library)
			branchID := model.BranchId(c.Library)
			branchName := c.Library
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
				CallNumber: c.CallNo,
				Collection: c.Collection,
				DueDate:    c.DueDate,
				CatalogURL: system.CatalogURL,
				RawStatus:  c.Status,
				Source:     model.SourceDirect,
			})
		}
		return holdings, nil
	}
	return adapter.NewBaseAdapter("apollo", cfg, tracker, br, execute, nil, opts...)
}
