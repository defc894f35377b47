package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"auction-agent/metrics"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RouterConfig collects what NewRouter wires together. Metrics and Limiter
// may be nil.
type RouterConfig struct {
	Calculator *CalculatorHandler
	Progress   *ProgressHandler
	Metrics    *metrics.Registry
	Limiter    *RateLimiter
}

func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(cfg.Metrics))

	limit := func(h http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return h
		}
		return RateLimitMiddleware(cfg.Limiter, h)
	}

	r.HandleFunc("/health", health(cfg.Progress)).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	if cfg.Calculator != nil {
		r.Handle("/calculator/calculate", limit(cfg.Calculator.Calculate))
		r.Handle("/calculator/loan-limit", limit(cfg.Calculator.LoanLimit))
		r.Handle("/calculator/history", limit(cfg.Calculator.History))
	}

	if cfg.Progress != nil {
		r.Handle("/progress/{id}", limit(cfg.Progress.Get)).Methods(http.MethodGet)
		r.Handle("/progress/{id}", limit(cfg.Progress.Delete)).Methods(http.MethodDelete)
		r.HandleFunc("/ws/progress/{id}", cfg.Progress.Relay).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Tracked int    `json:"trackedAnalyses"`
}

func health(progress *ProgressHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if progress != nil {
			resp.Tracked = progress.hub.Tracked()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func loggingMiddleware(m *metrics.Registry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)
			duration := time.Since(start)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			if m != nil {
				m.RequestLatency.WithLabelValues(route, strconv.Itoa(wrapper.statusCode)).Observe(duration.Seconds())
			}

			log.Info().
				Str("request_id", RequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapper.statusCode).
				Dur("duration", duration).
				Str("remote", r.RemoteAddr).
				Msg("request")
		})
	}
}
