package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"payment-flows/internal/domain/ports/adapter"
	"payment-flows/internal/domain/ports/repository"
	"payment-flows/internal/usecase"
)

// Server exposes the flow lifecycle over HTTP: merchant-facing initiation and
// proceed, the gateway response funnel (webhook and user redirect land on the
// same ProcessResponse), and JWT-guarded operator inspection.
type Server struct {
	flowUC   usecase.FlowUseCase
	records  repository.RecordRepository
	auth     *AuthManager
	notifier adapter.OpsNotifier
	secret   string // operator login secret
	log      *zerolog.Logger

	server *http.Server
}

func NewServer(
	flowUC usecase.FlowUseCase,
	records repository.RecordRepository,
	auth *AuthManager,
	notifier adapter.OpsNotifier,
	loginSecret string,
	logger *zerolog.Logger,
) *Server {
	if notifier == nil {
		notifier = adapter.NoopNotifier{}
	}
	return &Server{
		flowUC:   flowUC,
		records:  records,
		auth:     auth,
		notifier: notifier,
		secret:   loginSecret,
		log:      logger,
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Hosted payment entry; the ?ref= query parameter carries the record name.
	r.Get("/pay", s.handlePay)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Route("/flows", func(r chi.Router) {
			r.Post("/", s.handleInitiate)
			r.Get("/{name}/url", s.handlePaymentURL)
			r.Post("/{name}/proceed", s.handleProceed)
			// The gateway posts the signed payload here; the user redirect
			// arrives as GET with the same fields in the query string.
			r.Post("/{name}/response", s.handleResponse)
			r.Get("/{name}/response", s.handleResponse)

			r.With(s.auth.RequireOperator).Get("/{name}", s.handleGetRecord)
		})
	})

	return r
}

func (s *Server) Start(port int) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
