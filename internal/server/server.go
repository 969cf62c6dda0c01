package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/handler"
	"github.com/xela07ax/approval-flow/internal/infra"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	approvalHandler *handler.ApprovalHandler // /api/approvals
}

// NewServer инициализирует HTTP-слой сервиса согласований.
func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	reg *prometheus.Registry,
	approvalH *handler.ApprovalHandler,
) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		logger:          logger.Named("approval-api"),
		cfg:             cfg,
		approvalHandler: approvalH,
	}

	s.routes(reg)
	return s
}

func (s *Server) routes(reg *prometheus.Registry) {
	r := s.router

	// Инфраструктурные Middleware (для всех роутов)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Healthcheck для мониторинга
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Метрики Prometheus
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	// Бизнес-домен
	r.Mount("/api/approvals", s.approvalHandler.Routes())
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
