package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riandyrn/otelchi"

	"github.com/corvidlabs/streamchat/internal/ports"
	"github.com/corvidlabs/streamchat/internal/producer"
	"github.com/corvidlabs/streamchat/internal/subscriber"
)

const ReadHeaderTimeout = 10 * time.Second

type Config struct {
	Addr           string
	CORSOrigins    []string
	RequireAuth    bool
	ServiceName    string
}

type Server struct {
	cfg    Config
	router *chi.Mux
	server *http.Server
	dbPing func(context.Context) error
}

func NewServer(
	cfg Config,
	p *producer.Producer,
	sub *subscriber.Subscriber,
	stops ports.StopRegistry,
	convs ports.ConversationRepository,
	messages ports.MessageRepository,
	dbPing func(context.Context) error,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(otelchi.Middleware(cfg.ServiceName))
	router.Use(Recovery(logger))
	router.Use(Logger(logger))
	router.Use(CORS(cfg.CORSOrigins))

	s := &Server{cfg: cfg, router: router, dbPing: dbPing}

	router.Get("/healthz", s.liveness)
	router.Get("/readyz", s.readiness)
	router.Handle("/metrics", promhttp.Handler())

	h := NewHandlers(p, sub, stops, convs, messages)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthWithConfig(AuthConfig{RequireAuth: cfg.RequireAuth}))

		r.Post("/conversations/{id}/messages", h.SendWithStream)
		r.Get("/conversations/{id}/messages", h.GetMessages)
		r.Post("/conversations/{id}/abort", h.AbortStream)
		r.Get("/conversations/{id}/stream", h.ListenToMessageChunkStream)
	})

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.dbPing != nil {
		if err := s.dbPing(r.Context()); err != nil {
			respondJSON(w, map[string]string{"status": "not ready", "error": err.Error()}, http.StatusServiceUnavailable)
			return
		}
	}
	respondJSON(w, map[string]string{"status": "ready"}, http.StatusOK)
}
