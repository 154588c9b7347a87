// Package htmlscrape implements the four HTML-scraping ILS adapters
// (SirsiDynix Enterprise, BiblioCommons, Atriuum, Spydus), per spec
// §4.2.2: fetch the catalog results page, try an ordered list of CSS
// selector strategies until one yields rows, resolve branch text against
// the system's declared branches, and never error on unmatched branches.
package htmlscrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/tbbooher/argus-panoptes/internal/adapter"
	"github.com/tbbooher/argus-panoptes/internal/apperr"
	"github.com/tbbooher/argus-panoptes/internal/breaker"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/isbn"
	"github.com/tbbooher/argus-panoptes/internal/model"
	"github.com/tbbooher/argus-panoptes/internal/scrape"
)

// sanitizer strips any HTML markup that survives InnerText extraction
// (e.g. a vendor template leaking a <script> or styled span into a cell)
// before scraped text reaches a BookHolding.
var sanitizer = bluemonday.StrictPolicy()

// fetchHTML issues the GET request for a search URL built from the
// system's searchUrlTemplate extra option, returning the raw response
// body for scrape.Parse.
func fetchHTML(ctx context.Context, client *http.Client, searchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, apperr.Connection("building scrape request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Timeout("scrape request deadline exceeded", err)
		}
		return nil, apperr.Connection("scrape request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Connection("reading scrape response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.Auth(fmt.Sprintf("catalog page returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.RateLimit("catalog page rate-limited the request", 0)
	case resp.StatusCode >= 400:
		return nil, apperr.Connection(fmt.Sprintf("catalog page returned %d", resp.StatusCode), nil)
	}
	return body, nil
}

// searchURL builds a search results page URL from the system's
// searchUrlTemplate extra option, substituting {isbn}. Falls back to a
// plain ?q={isbn} query against baseUrl when no template is configured.
func searchURL(cfg model.AdapterConfig, isbn13 isbn.ISBN13) string {
	tmpl, ok := cfg.Extra["searchUrlTemplate"]
	if !ok || tmpl == "" {
		return cfg.BaseURL + "?q=" + url.QueryEscape(string(isbn13))
	}
	return strings.ReplaceAll(tmpl, "{isbn}", string(isbn13))
}

// rowsToHoldings converts scraped rows into BookHoldings, resolving
// branch text against the system's declared branches and sanitizing any
// leftover markup.
func rowsToHoldings(rows []scrape.Row, isbn13 isbn.ISBN13, system model.LibrarySystem) []model.BookHolding {
	holdings := make([]model.BookHolding, 0, len(rows))
	for _, row := range rows {
		branchText := sanitizer.Sanitize(row.Branch)
		branch, matched := system.BranchByCode(branchText)

		branchID := model.BranchId(branchText)
		branchName := branchText
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
			CallNumber: sanitizer.Sanitize(row.CallNumber),
			Collection: sanitizer.Sanitize(row.Collection),
			CatalogURL: system.CatalogURL,
			RawStatus:  sanitizer.Sanitize(row.Status),
			Source:     model.SourceDirect,
		})
	}
	return holdings
}

// newScrapeAdapter builds a BaseAdapter wrapping a fetch+extract cycle
// over the given ordered strategy list.
func newScrapeAdapter(protocol string, cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, strategies []scrape.Strategy, opts ...adapter.Option) adapter.Adapter {
	execute := func(ctx context.Context, isbn13 isbn.ISBN13, system model.LibrarySystem) ([]model.BookHolding, error) {
		body, err := fetchHTML(ctx, client, searchURL(cfg, isbn13))
		if err != nil {
			return nil, err
		}

		doc, err := scrape.Parse(body)
		if err != nil {
			return nil, apperr.Parse("parsing scraped HTML", err)
		}

		rows, _, matched := scrape.Extract(doc, strategies)
		if !matched {
			return nil, nil
		}
		return rowsToHoldings(rows, isbn13, system), nil
	}
	return adapter.NewBaseAdapter(protocol, cfg, tracker, br, execute, nil, opts...)
}

// NewEnterprise builds the SirsiDynix Enterprise adapter.
func NewEnterprise(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	return newScrapeAdapter("enterprise", cfg, tracker, br, client, []scrape.Strategy{
		{
			Name:        "enterprise-availability-table",
			RowSelector: "tr.availabilityRow",
			Columns: scrape.ColumnSelectors{
				Branch:     "td.location",
				CallNumber: "td.callNumber",
				Status:     "td.status",
				Collection: "td.collection",
			},
		},
		{
			Name:        "enterprise-availability-list",
			RowSelector: "li.availabilityLineItem",
			Columns: scrape.ColumnSelectors{
				Branch:     "span.location",
				CallNumber: "span.callNumber",
				Status:     "span.status",
			},
		},
	}, opts...)
}

// NewBiblioCommons builds the BiblioCommons adapter.
func NewBiblioCommons(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	return newScrapeAdapter("bibliocommons", cfg, tracker, br, client, []scrape.Strategy{
		{
			Name:        "bibliocommons-item-rows",
			RowSelector: "div.itemDetailsRow",
			Columns: scrape.ColumnSelectors{
				Branch:     "span.branchName",
				CallNumber: "span.callNum",
				Status:     "span.itemStatus",
				Collection: "span.collectionName",
			},
		},
	}, opts...)
}

// NewAtriuum builds the Atriuum adapter.
func NewAtriuum(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	return newScrapeAdapter("atriuum", cfg, tracker, br, client, []scrape.Strategy{
		{
			Name:        "atriuum-holdings-table",
			RowSelector: "tr.holdingsRow",
			Columns: scrape.ColumnSelectors{
				Branch:     "td.branch",
				CallNumber: "td.callNumber",
				Status:     "td.status",
			},
		},
	}, opts...)
}

// NewSpydus builds the Spydus adapter.
func NewSpydus(cfg model.AdapterConfig, tracker *health.Tracker, br *breaker.Breaker, client *http.Client, opts ...adapter.Option) adapter.Adapter {
	return newScrapeAdapter("spydus", cfg, tracker, br, client, []scrape.Strategy{
		{
			Name:        "spydus-location-table",
			RowSelector: "tr.locationRow",
			Columns: scrape.ColumnSelectors{
				Branch:     "td.locationName",
				CallNumber: "td.itemClass",
				Status:     "td.circStatus",
			},
		},
	}, opts...)
}
