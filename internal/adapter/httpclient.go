package adapter

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"
)

// DefaultOutboundRPS paces outbound ILS requests independently of the
// concurrency pool's in-flight cap: a pool slot frees the instant a
// response arrives, but some catalogs rate-limit by request rate, not
// concurrency. 0 disables pacing.
const DefaultOutboundRPS = 0

// NewHTTPClient returns an *http.Client whose transport transparently
// requests and decodes gzip/deflate responses, for the SRU,
// HTML-scraping, and JSON-REST adapters' outbound calls. Per-call
// deadlines are enforced by the caller's context, not a client-wide
// timeout. When requestsPerSecond > 0, outbound requests are paced
// through a token-bucket limiter shared across every adapter using this
// client.
func NewHTTPClient(requestsPerSecond float64) *http.Client {
	transport := gzhttp.Transport(http.DefaultTransport)
	if requestsPerSecond <= 0 {
		return &http.Client{Transport: transport}
	}
	return &http.Client{
		Transport: throttledTransport{
			RoundTripper: transport,
			limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		},
	}
}

// throttledTransport paces outbound requests through a token-bucket
// limiter before delegating to the wrapped transport.
type throttledTransport struct {
	http.RoundTripper
	limiter *rate.Limiter
}

func (t throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	return t.RoundTripper.RoundTrip(r)
}
