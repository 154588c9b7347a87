// Package jsonrest implements the five JSON-REST ILS adapters (Aspen
// Discovery, TLC, Apollo, Sierra REST, Polaris PAPI), per spec §4.2.2.
// Each adapter builds a protocol-specific request, decodes its own JSON
// response shape, and maps it to BookHolding[]; the HTTP-status-to-error
// mapping is shared.
package jsonrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tbbooher/argus-panoptes/internal/apperr"
)

// fetchJSON issues a GET request and returns the raw response body,
// mapping transport and HTTP-status failures to the apperr taxonomy per
// spec §4.2.2 / §7: 401/403 -> auth, 429 (+Retry-After) -> rate_limit,
// network failure -> connection, abort/deadline -> timeout. Malformed
// body decoding is left to each adapter's own unmarshal step, since only
// it knows its expected shape.
func fetchJSON(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Timeout("request deadline exceeded", err)
		}
		return nil, apperr.Connection("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Connection("reading response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.Auth(fmt.Sprintf("endpoint returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, apperr.RateLimit("endpoint rate-limited the request", retryAfter)
	case resp.StatusCode >= 500:
		return nil, apperr.Connection(fmt.Sprintf("endpoint returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, apperr.Parse(fmt.Sprintf("endpoint returned %d", resp.StatusCode), nil)
	}
	return body, nil
}

// decodeJSON unmarshals body into v, tagging any failure as a parse
// error per spec §7 (permanent for the call attempt, never retried).
func decodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Parse("decoding JSON response", err)
	}
	return nil
}

func newGetRequest(ctx context.Context, url string, clientKey string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Connection("building request", err)
	}
	if clientKey != "" {
		req.Header.Set("Authorization", "Bearer "+clientKey)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
