// ABOUTME: HTTP server wiring for the chat endpoints using chi
// ABOUTME: Routes /chat/get, /chat/post, /health and the optional metrics endpoint

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/coven-chat/internal/hitcount"
	"github.com/2389/coven-chat/internal/store"
)

// ConversationService defines what the handlers need from the conversation layer
type ConversationService interface {
	GetConversations(ctx context.Context, p store.Participant) ([]*store.Conversation, error)
	AppendConversationDelta(ctx context.Context, conv *store.Conversation) error
	ListUsers(ctx context.Context) ([]store.Participant, error)
	Ping(ctx context.Context) error
}

const healthTimeout = 3 * time.Second

// Options configures the HTTP surface.
type Options struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxPerWindow   int64 // 0 disables limiting
	MetricsPath    string // empty disables the metrics endpoint
}

// Server serves the chat HTTP API.
type Server struct {
	svc     ConversationService
	counter hitcount.Counter
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewServer creates a Server. counter may be nil to disable request counting.
func NewServer(svc ConversationService, counter hitcount.Counter, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &Server{
		svc:     svc,
		counter: counter,
		opts:    opts,
		logger:  logger.With("component", "api"),
		now:     time.Now,
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(metricsMiddleware)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)

	if s.opts.MetricsPath != "" {
		r.Handle(s.opts.MetricsPath, promhttp.Handler())
	}

	r.Get("/health", s.handleHealth)

	r.Route("/chat", func(r chi.Router) {
		if s.opts.RequestTimeout > 0 {
			r.Use(chimw.Timeout(s.opts.RequestTimeout))
		}
		r.Use(s.countRequests)

		r.Post("/get", s.handleGetChat)
		r.Post("/post", s.handlePostChat)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	})

	return r
}
