// Package collector is the reference ingestion endpoint for telemetry
// batches. It validates names against the catalog and stores events in
// SQLite keyed by event id, so client retries are idempotent.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/dinetrace/internal/catalog"
	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/metrics"
	"github.com/gyaneshwarpardhi/dinetrace/internal/transport"
)

// EventsPath is where batches are posted and listed.
const EventsPath = "/v1/telemetry/events"

const (
	DefaultMaxBodyBytes = 1 << 20
	defaultListLimit    = 50
	maxListLimit        = 500
)

// EventStore persists received events.
type EventStore interface {
	Insert(ctx context.Context, anonymousID string, events []event.Event, receivedAt time.Time) (inserted, duplicates int, err error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Ping(ctx context.Context) error
}

// Options configures the collector handler.
type Options struct {
	Store EventStore
	// Token, when set, must be presented as a bearer token on ingestion.
	Token string
	// RateLimit is the sustained ingestion requests per second. Zero disables limiting.
	RateLimit    float64
	Burst        int
	MaxBodyBytes int64
	Logger       *slog.Logger
	Now          func() time.Time
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	store    EventStore
	token    string
	limiter  *rate.Limiter
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
	mux      *http.ServeMux
}

// New creates the collector HTTP handler and registers all routes.
func New(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	h := &Handler{
		store:    opts.Store,
		token:    opts.Token,
		maxBytes: opts.MaxBodyBytes,
		logger:   opts.Logger.With("component", "collector"),
		now:      opts.Now,
		mux:      http.NewServeMux(),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	h.mux.HandleFunc("POST "+EventsPath, h.ingest)
	h.mux.HandleFunc("GET "+EventsPath, h.list)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.logger, h.mux)
}

// POST /v1/telemetry/events: store one client batch.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		metrics.CollectorEvents.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
		return
	}
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid bearer token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	var batch transport.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, CodeInvalidBatch, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(batch.Events) == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidBatch, "batch must contain at least one event")
		return
	}

	var unknown []string
	for i, ev := range batch.Events {
		if ev.ID == "" {
			writeError(w, http.StatusBadRequest, CodeInvalidBatch, fmt.Sprintf("events[%d]: eventId is required", i))
			return
		}
		if !catalog.IsKnown(ev.Name) {
			unknown = append(unknown, string(ev.Name))
		}
	}
	if len(unknown) > 0 {
		metrics.CollectorEvents.WithLabelValues("rejected").Add(float64(len(batch.Events)))
		writeError(w, http.StatusUnprocessableEntity, CodeUnknownEvent,
			"unknown event names: "+strings.Join(unknown, ", "))
		return
	}

	inserted, duplicates, err := h.store.Insert(r.Context(), batch.AnonymousID, batch.Events, h.now())
	if err != nil {
		h.logger.Error("failed to store batch", "batch_size", len(batch.Events), "err", err)
		writeError(w, http.StatusServiceUnavailable, CodeStorageUnavailable, "failed to store events")
		return
	}
	metrics.CollectorEvents.WithLabelValues("stored").Add(float64(inserted))
	metrics.CollectorEvents.WithLabelValues("duplicate").Add(float64(duplicates))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":   inserted,
		"duplicates": duplicates,
	})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && got == h.token
}

// GET /v1/telemetry/events?limit=N: most recent events first.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	records, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list events", "err", err)
		writeError(w, http.StatusServiceUnavailable, CodeStorageUnavailable, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(records),
		"events": records,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 when the event store is unreachable.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "storage_unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
