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

// aspenAvailabilityResponse mirrors Aspen Discovery's
// /API/GroupedWorkAPI availability response shape.
type aspenAvailabilityResponse struct {
	Items []aspenItem `json:"items"`
}

type aspenItem struct {
	Location   string `json:"location"`
	LocationID string `json:"locationId"`
	CallNumber string `json:"callNumber"`
	Status     string `json:"status"`
	Format     string `json:"format"`
	NumHolds   int    `json:"numHolds"`
}

// NewAspen builds the Aspen Discovery adapter.
func NewAspen(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		reqURL := cfg.BaseURL + "/API/GroupedWorkAPI?method=getItemAvailability&isbn=" + url.QueryEscape(string(isbn13))
		req, err := newGetRequest(ctx, reqURL, cfg.ClientKey)
		if err != nil {
			return nil, err
		}

		body, err := fetchJSON(client, req)
		if err != nil {
			return nil, err
		}

		var parsed aspenAvailabilityResponse
		if err := decodeJSON(body, &parsed); err != nil {
			return nil, err
		}

		holdings := make([]model.BookHolding, 0, len(parsed.Items))
		for _, item := range parsed.Items {
			branch, matched := system.BranchByCode(item.Location)
			branchID := model.BranchId(item.LocationID)
			if !matched && branchID == "" {
				branchID = model.BranchId(item.Location)
			} else if matched {
				branchID = branch.ID
			}
			branchName := item.Location
			if matched {
				branchName = branch.Name
			}

			var holdCount *int
			if item.NumHolds > 0 {
				n := item.NumHolds
				holdCount = &n
			}

			holdings = append(holdings, model.BookHolding{
				ISBN:         string(isbn13),
				SystemID:     system.ID,
				SystemName:   system.Name,
				BranchID:     branchID,
				BranchName:   branchName,
				CallNumber:   item.CallNumber,
				MaterialType: aspenFormatToMaterialType(item.Format),
				HoldCount:    holdCount,
				CatalogURL:   system.CatalogURL,
				RawStatus:    item.Status,
				Source:       model.SourceDirect,
			})
		}
		return holdings, nil
	}
	return adapter.NewBaseAdapter("aspen", cfg, tracker, br, execute, nil, opts...)
}

func aspenFormatToMaterialType(format string) model.MaterialType {
	switch format {
	case "Book":
		return model.MaterialBook
	case "Large Print":
		return model.MaterialLargePrint
	case "CD", "Music CD":
		return model.MaterialCD
	case "DVD", "Blu-ray":
		return model.MaterialDVD
	case "eBook":
		return model.MaterialEbook
	case "Audiobook", "eAudiobook":
		return model.MaterialAudiobook
	default:
		return model.MaterialOther
	}
}
