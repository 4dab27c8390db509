// Package httpapi serves the synthesis pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/voxcache/voxcache/internal/cache"
	"github.com/voxcache/voxcache/internal/synth"
)

// Headers set on every response.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderSource    = "X-Voxcache-Source"
)

// Resolver resolves speech requests.
type Resolver interface {
	Resolve(ctx context.Context, req synth.Request) (*synth.Result, error)
}

// RecordLister lists cached records.
type RecordLister interface {
	Records() []cache.VoiceRecord
}

// Router serves the pipeline endpoints.
type Router struct {
	resolver Resolver
	records  RecordLister
	metrics  http.Handler
	logger   *log.Logger
	mux      *http.ServeMux
}

// NewRouter wires the routes. metrics may be nil to omit /metrics.
func NewRouter(resolver Resolver, records RecordLister, metrics http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default().WithPrefix("http")
	}
	r := &Router{
		resolver: resolver,
		records:  records,
		metrics:  metrics,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	r.routes()
	return r.withRequestID(r.withRecovery(r.mux))
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /transform", r.handleTransform)
	r.mux.HandleFunc("GET /records", r.handleRecords)
	if r.metrics != nil {
		r.mux.Handle("GET /metrics", r.metrics)
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (r *Router) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := uuid.NewString()
		w.Header().Set(HeaderRequestID, id)
		start := time.Now()
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), requestIDKey{}, id)))
		r.logger.Debug("HTTP request", "id", id, "method", req.Method, "path", req.URL.Path, "took", time.Since(start))
	})
}

func (r *Router) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				r.logger.Error("Handler panic", "id", RequestID(req.Context()), "err", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
