package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type ctxKey struct{}

// RequestID returns the id assigned to the request carried by ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withRequestID reuses a client-supplied X-Request-ID or mints one
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// loopbackOnly rejects peers that are not on this machine
func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopback(r.RemoteAddr) {
			slog.Warn("rejecting non-loopback peer", "remote_addr", r.RemoteAddr, "request_id", RequestID(r.Context()))
			writeJSON(w, http.StatusForbidden, errorBody{Error: "only loopback clients are served", Kind: KindForbidden})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopback(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newHTTPMetrics(meter metric.Meter) *httpMetrics {
	m := &httpMetrics{}
	var err error
	m.requests, err = meter.Int64Counter("murmur.http.requests",
		metric.WithDescription("HTTP requests by route and status"))
	if err != nil {
		slog.Warn("failed to create http metric", "metric", "requests", "error", err)
	}
	m.duration, err = meter.Float64Histogram("murmur.http.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"))
	if err != nil {
		slog.Warn("failed to create http metric", "metric", "duration", "error", err)
	}
	return m
}

// observe logs and measures every request once the handler returns
func (m *httpMetrics) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		slog.Info("http request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", elapsed)

		attrs := metric.WithAttributes(
			attribute.String("route", route),
			attribute.Int("status", rec.status))
		if m.requests != nil {
			m.requests.Add(r.Context(), 1, attrs)
		}
		if m.duration != nil {
			m.duration.Record(r.Context(), elapsed.Seconds(), attrs)
		}
	})
}
