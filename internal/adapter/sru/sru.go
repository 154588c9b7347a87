// Package sru implements the generic SRU/MARCXML adapter and the Koha
// vendor variant (spec §4.2.2): both query a searchRetrieve endpoint and
// extract holdings from MARC fields, differing only in which MARC field
// carries holdings data and how status is derived.
package sru

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tbbooher/argus-panoptes/internal/adapter"
	"github.com/tbbooher/argus-panoptes/internal/apperr"
	"github.com/tbbooher/argus-panoptes/internal/breaker"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/marcxml"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

// fetchRecords issues the SRU searchRetrieve GET request and parses the
// resulting MARCXML records, mapping transport and body errors to the
// apperr taxonomy per spec §7.
func fetchRecords(ctx context.Context, client *http.Client, baseURL string, isbn13 isbn.ISBN13) ([]marcxml.Record, error) {
	url := marcxml.SearchRetrieveURL(baseURL, string(isbn13))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Connection("building SRU request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Timeout("SRU request deadline exceeded", err)
		}
		return nil, apperr.Connection("SRU request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Connection("reading SRU response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.Auth(fmt.Sprintf("SRU endpoint returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.RateLimit("SRU endpoint rate-limited the request", retryAfterSeconds(resp))
	case resp.StatusCode >= 500:
		return nil, apperr.Connection(fmt.Sprintf("SRU endpoint returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, apperr.Parse(fmt.Sprintf("SRU endpoint returned %d", resp.StatusCode), nil)
	}

	records, err := marcxml.ParseSearchRetrieveResponse(body)
	if err != nil {
		return nil, apperr.Parse("parsing SRU searchRetrieve response", err)
	}
	return records, nil
}

func retryAfterSeconds(resp *http.Response) int {
	var seconds int
	fmt.Sscanf(resp.Header.Get("Retry-After"), "%d", &seconds)
	return seconds
}

// NewGeneric builds the generic SRU/MARCXML adapter: standard MARC 852
// holdings fields, no real-time availability (status always unknown).
func NewGeneric(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		records, err := fetchRecords(ctx, client, cfg.BaseURL, isbn13)
		if err != nil {
			return nil, err
		}
		return holdingsFromGeneric(records, isbn13, system), nil
	}
	return adapter.NewBaseAdapter("sru", cfg, tracker, br, execute, nil, opts...)
}

func holdingsFromGeneric(records []marcxml.Record, isbn13 isbn.ISBN13, system model.LibrarySystem) []model.BookHolding {
	var holdings []model.BookHolding
	for _, rec := range records {
		for _, f := range rec.FieldsByTag("852") {
			branchText := f.First("b")
			branch, _ := system.BranchByCode(branchText)
			branchID := branch.ID
			if branchID == "" {
				branchID = model.BranchId(branchText)
			}
			branchName := branch.Name
			if branchName == "" {
				branchName = branchText
			}

			holdings = append(holdings, model.BookHolding{
				ISBN:       string(isbn13),
				SystemID:   system.ID,
				SystemName: system.Name,
				BranchID:   branchID,
				BranchName: branchName,
				CallNumber: f.First("h"),
				Collection: f.First("z"),
				CatalogURL: system.CatalogURL,
				RawStatus:  "",
				Source:     model.SourceDirect,
			})
		}
	}
	return holdings
}

// NewKoha builds the Koha-flavored SRU adapter: vendor MARC 952 holdings
// fields, real-time status derived from not-for-loan/due-date subfields.
func NewKoha(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		records, err := fetchRecords(ctx, client, cfg.BaseURL, isbn13)
		if err != nil {
			return nil, err
		}
		return holdingsFromKoha(records, isbn13, system), nil
	}
	return adapter.NewBaseAdapter("koha-sru", cfg, tracker, br, execute, nil, opts...)
}

func holdingsFromKoha(records []marcxml.Record, isbn13 isbn.ISBN13, system model.LibrarySystem) []model.BookHolding {
	var holdings []model.BookHolding
	for _, rec := range records {
		for _, f := range rec.FieldsByTag("952") {
			branchText := f.First("b")
			if branchText == "" {
				branchText = f.First("a")
			}
			branch, _ := system.BranchByCode(branchText)
			branchID := branch.ID
			if branchID == "" {
				branchID = model.BranchId(branchText)
			}
			branchName := branch.Name
			if branchName == "" {
				branchName = branchText
			}

			dueDate := f.First("q")
			notForLoan := f.First("7")

			var rawStatus string
			switch {
			case notForLoan != "" && notForLoan != "0":
				rawStatus = "Not for loan"
			case dueDate != "":
				rawStatus = "Checked out"
			default:
				rawStatus = "Available"
			}

			holdings = append(holdings, model.BookHolding{
				ISBN:         string(isbn13),
				SystemID:     system.ID,
				SystemName:   system.Name,
				BranchID:     branchID,
				BranchName:   branchName,
				CallNumber:   f.First("o"),
				Barcode:      f.First("p"),
				MaterialType: kohaMaterialType(f.First("y")),
				DueDate:      dueDate,
				CatalogURL:   system.CatalogURL,
				RawStatus:    rawStatus,
				Source:       model.SourceDirect,
			})
		}
	}
	return holdings
}

// kohaMaterialType maps a Koha itype code to the canonical MaterialType
// vocabulary, per spec §4.2.2.
func kohaMaterialType(itype string) model.MaterialType {
	switch {
	case itype == "bk":
		return model.MaterialBook
	case itype == "lp":
		return model.MaterialLargePrint
	case itype == "cd":
		return model.MaterialCD
	case itype == "dvd":
		return model.MaterialDVD
	case strings.Contains(strings.ToLower(itype), "ebook"):
		return model.MaterialEbook
	default:
		return model.MaterialOther
	}
}
