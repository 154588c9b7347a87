// Package api implements the HTTP surface from spec §4.10: synchronous
// and asynchronous search, search polling, and health endpoints, plus
// the request-id, rate-limit, and error-mapping middleware they share.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/stampede"
	"github.com/google/uuid"

	"github.com/tbbooher/argus-panoptes/internal/apperr"
	"github.com/tbbooher/argus-panoptes/internal/cache"
	"github.com/tbbooher/argus-panoptes/internal/health"
	"github.com/tbbooher/argus-panoptes/internal/logging"
	"github.com/tbbooher/argus-panoptes/internal/metrics"
	"github.com/tbbooher/argus-panoptes/internal/model"
)

const (
	DefaultAsyncStoreCapacity = 1000
	DefaultAsyncStoreTTL      = 10 * time.Minute
	DefaultRequestTimeout     = 15 * time.Second
	DefaultSearchRPM          = 60
)

// SearchService is the subset of *coordinator.Coordinator the API depends
// on, kept as an interface so handlers can be tested against a stub.
type SearchService interface {
	Search(ctx context.Context, rawISBN string) (*model.SearchResult, error)
}

// HealthView is the subset of *health.Tracker the API depends on.
type HealthView interface {
	All() []health.Record
}

// asyncJob is one POST /search job's state in the bounded async-results
// store (spec §4.10).
type asyncJob struct {
	SearchID  string             `json:"searchId"`
	Status    string             `json:"status"` // pending, done, error
	Result    *model.SearchResult `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Config holds the API's tunables, independent of the coordinator's own
// search deadlines.
type Config struct {
	TrustProxy     bool
	SearchRPM      int
	RequestTimeout time.Duration
	Production     bool
}

func (c Config) withDefaults() Config {
	if c.SearchRPM <= 0 {
		c.SearchRPM = DefaultSearchRPM
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Handler wires the search service and health tracker into the HTTP
// surface.
type Handler struct {
	search  SearchService
	health  HealthView
	cfg     Config
	async   *cache.MemoryCache[string, *asyncJob]
	startedAt time.Time
}

// NewHandler creates a Handler ready to mount via NewRouter.
func NewHandler(search SearchService, healthView HealthView, cfg Config) *Handler {
	return &Handler{
		search:    search,
		health:    healthView,
		cfg:       cfg.withDefaults(),
		async:     cache.New[string, *asyncJob](DefaultAsyncStoreCapacity),
		startedAt: time.Now(),
	}
}

// NewRouter builds the full middleware-wrapped chi router: request ID,
// panic recovery, trailing-slash normalization, request coalescing on the
// synchronous search endpoint, and the fixed-window rate limiter scoped
// to /search routes. An optional *metrics.Registry adds request
// instrumentation and a /metrics scrape endpoint; omit it (or pass nil)
// in tests that don't care about metrics.
func NewRouter(h *Handler, metricsReg ...*metrics.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)

	var reg *metrics.Registry
	if len(metricsReg) > 0 {
		reg = metricsReg[0]
	}
	if reg != nil {
		r.Use(reg.Instrument)
		r.Get("/metrics", reg.Handler().ServeHTTP)
	}

	limiter := newRateLimiter(h.cfg.SearchRPM, h.cfg.TrustProxy)

	r.Route("/search", func(sr chi.Router) {
		sr.Use(limiter.middleware)
		sr.Use(stampede.Handler(1024, 0))
		sr.Get("/", h.handleSearchSync)
		sr.Post("/", h.handleSearchAsync)
		sr.Get("/{searchId}", h.handleSearchPoll)
	})

	r.Get("/health", h.handleHealth)
	r.Get("/health/systems", h.handleHealthSystems)

	return r
}

func (h *Handler) handleSearchSync(w http.ResponseWriter, r *http.Request) {
	rawISBN := r.URL.Query().Get("isbn")
	if rawISBN == "" {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "isbn query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()

	result, err := h.search.Search(ctx, rawISBN)
	if err != nil {
		h.writeSearchErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type searchRequestBody struct {
	ISBN string `json:"isbn"`
}

func (h *Handler) handleSearchAsync(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ISBN == "" {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "request body must be {\"isbn\": \"...\"}")
		return
	}

	searchID := uuid.NewString()
	job := &asyncJob{SearchID: searchID, Status: "pending"}
	h.async.Set(searchID, job, DefaultAsyncStoreTTL)

	go h.runAsync(searchID, body.ISBN)

	writeJSON(w, http.StatusAccepted, job)
}

// runAsync performs the search detached from the request's context, so a
// client disconnect doesn't cancel work other callers may still be
// polling for.
func (h *Handler) runAsync(searchID, rawISBN string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.RequestTimeout)
	defer cancel()

	result, err := h.search.Search(ctx, rawISBN)
	job := &asyncJob{SearchID: searchID}
	if err != nil {
		job.Status = "error"
		job.Error = h.displayMessage(err)
	} else {
		job.Status = "done"
		job.Result = result
	}
	h.async.Set(searchID, job, DefaultAsyncStoreTTL)
}

func (h *Handler) handleSearchPoll(w http.ResponseWriter, r *http.Request) {
	searchID := chi.URLParam(r, "searchId")
	if _, err := uuid.Parse(searchID); err != nil {
		writeError(w, http.StatusBadRequest, string(apperr.KindValidation), "searchId must be a valid UUID")
		return
	}

	job, ok := h.async.Get(searchID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown or expired searchId")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type healthResponse struct {
	Status  string    `json:"status"`
	Uptime  float64   `json:"uptimeSeconds"`
	Started time.Time `json:"startedAt"`
	Now     time.Time `json:"now"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uptime:  now.Sub(h.startedAt).Seconds(),
		Started: h.startedAt,
		Now:     now,
	})
}

func (h *Handler) handleHealthSystems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"systems": h.health.All()})
}

// writeSearchErr maps an error returned from SearchService.Search to the
// HTTP status/body conventions in spec §7: validation -> 400, rate limit
// -> 429 (with Retry-After), search timeout -> 504, everything else ->
// 500. The coordinator recovers every adapter-level error internally, so
// KindRateLimit never reaches here today, but the mapper stays complete
// against the documented taxonomy.
func (h *Handler) writeSearchErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindRateLimit:
		status = http.StatusTooManyRequests
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
		}
	case apperr.KindSearchTimeout:
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, string(kind), h.displayMessage(err))
}

// displayMessage scrubs the underlying error message in production
// except for validation errors, whose message originated from the
// caller's own input and is safe to echo back (spec §7).
func (h *Handler) displayMessage(err error) string {
	if !h.cfg.Production || apperr.KindOf(err) == apperr.KindValidation {
		return err.Error()
	}
	return "an internal error occurred"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Log(context.Background()).Warn("failed encoding response body", "err", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorBody{Error: message, Type: errType})
}
