// ABOUTME: HTTP middleware for request metrics, request logging and per-caller hit counting
// ABOUTME: Hit counts are keyed on path and client IP and surfaced to handlers via context

package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/2389/coven-chat/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// metricsMiddleware records Prometheus request metrics.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := metricsPath(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(time.Since(start).Seconds())
	})
}

// metricsPath collapses unknown paths into one label value.
func metricsPath(path string) string {
	switch path {
	case "/chat/get", "/chat/post", "/health":
		return path
	default:
		return "other"
	}
}

// logRequests logs one line per completed request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"latency", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr)
		}()

		next.ServeHTTP(ww, r)
	})
}

type hitKey struct{}

// hit is the per-request counting result handed to handlers.
type hit struct {
	ip    string
	count int64
}

// countRequests increments the caller's counter and rejects callers over the
// configured maximum. A failing counter is logged and treated as a zero count.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := hit{ip: clientIP(r)}

		if s.counter != nil {
			count, err := s.counter.Incr(r.Context(), r.URL.Path+"-"+h.ip)
			if err != nil {
				s.logger.Warn("request counter failed", "ip", h.ip, "error", err)
				count = 0
			}
			h.count = count
		}

		if s.opts.MaxPerWindow > 0 && h.count > s.opts.MaxPerWindow {
			s.logger.Warn("request limit exceeded",
				"ip", h.ip,
				"path", r.URL.Path,
				"count", h.count)
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), hitKey{}, h)))
	})
}

// hitFromContext returns the counting result stored by countRequests.
func hitFromContext(ctx context.Context) hit {
	h, _ := ctx.Value(hitKey{}).(hit)
	return h
}

// clientIP returns the caller's address without port. chimw.RealIP has
// already replaced RemoteAddr when a forwarding header was present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
