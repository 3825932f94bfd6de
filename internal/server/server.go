// Package server exposes scored batches over HTTP: upload, listing,
// filtering, summaries, question routing, streamed chat and CSV export.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/chat"
	"github.com/sells-group/risk-cli/internal/ingest"
	"github.com/sells-group/risk-cli/internal/relevance"
	"github.com/sells-group/risk-cli/internal/resilience"
	"github.com/sells-group/risk-cli/internal/store"
)

// DefaultMaxUploadBytes bounds CSV request bodies when Options leaves it
// unset.
const DefaultMaxUploadBytes = 32 << 20

// Options configures a Server.
type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	HistoryLimit   int
}

// Server holds the dependencies shared by the HTTP handlers.
type Server struct {
	store  store.Store
	chat   chat.Responder
	source ingest.Opener
	filter relevance.Filterer
	opts   Options

	// breakers, if set, is reported on /health.
	breakers *resilience.Breakers
	now      func() time.Time
}

// New returns a Server. source may be nil, in which case batches can only
// be created from a request body.
func New(st store.Store, responder chat.Responder, source ingest.Opener, filter relevance.Filterer, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		store:  st,
		chat:   responder,
		source: source,
		filter: filter,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithBreakers reports the state of b on /health.
func (s *Server) WithBreakers(b *resilience.Breakers) *Server {
	s.breakers = b
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.handleHealth)

	r.Route("/v1/batches", func(r chi.Router) {
		r.Get("/", s.handleListBatches)
		r.Post("/", s.handleCreateBatch)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetBatch)
			r.Delete("/", s.handleDeleteBatch)
			r.Get("/summary", s.handleSummary)
			r.Post("/query", s.handleQuery)
			r.Post("/chat", s.handleChat)
			r.Get("/export", s.handleExport)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
