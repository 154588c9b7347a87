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

// tlcSearchResponse mirrors The Library Corporation's LS2 PAC search
// response shape.
type tlcSearchResponse struct {
	Records []tlcRecord `json:"records"`
}

type tlcRecord struct {
	Holdings []tlcHolding `json:"holdings"`
}

type tlcHolding struct {
	BranchCode   string `json:"branchCode"`
	BranchName   string `json:"branchName"`
	ShelfLoc     string `json:"shelfLocation"`
	CircStatus   string `json:"circStatus"`
	DueBack      string `json:"dueBack"`
	MaterialCode string `json:"materialCode"`
}

// NewTLC builds The Library Corporation (TLC) adapter.
func NewTLC(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		reqURL := cfg.BaseURL + "/api/search?isbn=" + url.QueryEscape(string(isbn13))
		req, err := newGetRequest(ctx, reqURL, cfg.ClientKey)
		if err != nil {
			return nil, err
		}

		body, err := fetchJSON(client, req)
		if err != nil {
			return nil, err
		}

		var parsed tlcSearchResponse
		if err := decodeJSON(body, &parsed); err != nil {
			return nil, err
		}

		var holdings []model.BookHolding
		for _, rec := range parsed.Records {
			for _, h := range rec.Holdings {
				branch, matched := system.BranchByCode(h.BranchCode)
				branchID := model.BranchId(h.BranchCode)
				branchName := h.BranchName
				if matched {
					branchID = branch.ID
					branchName = branch.Name
				}

				holdings = append(holdings, model.BookHolding{
					ISBN:         string(isbn13),
					SystemID:     system.ID,
					SystemName:   system.Name,
					BranchID:     branchID,
					BranchName:   branchName,
					CallNumber:   h.ShelfLoc,
					MaterialType: tlcMaterialCodeToType(h.MaterialCode),
					DueDate:      h.DueBack,
					CatalogURL:   system.CatalogURL,
					RawStatus:    h.CircStatus,
					Source:       model.SourceDirect,
				})
			}
		}
		return holdings, nil
	}
	return adapter.NewBaseAdapter("tlc", cfg, tracker, br, execute, nil, opts...)
}

func tlcMaterialCodeToType(code string) model.MaterialType {
	switch code {
	case "BK":
		return model.MaterialBook
	case "LP":
		return model.MaterialLargePrint
	case "CD":
		return model.MaterialCD
	case "DVD":
		return model.MaterialDVD
	case "EBK":
		return model.MaterialEbook
	case "AB":
		return model.MaterialAudiobook
	default:
		return model.MaterialOther
	}
}
