package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DavidCapener182/incommand-sub013/api/handlers"
	"github.com/DavidCapener182/incommand-sub013/config"
	"github.com/DavidCapener182/incommand-sub013/core/amend"
	"github.com/DavidCapener182/incommand-sub013/core/auth"
	"github.com/DavidCapener182/incommand-sub013/core/notify"
	"github.com/DavidCapener182/incommand-sub013/core/store"
)

type Server struct {
	cfg           *config.AppConfig
	logger        *zap.Logger
	authenticator *auth.Authenticator
	hub           *notify.Hub

	records    *handlers.RecordsHandler
	amendments *handlers.AmendmentsHandler
}

func NewServer(cfg *config.AppConfig, logger *zap.Logger, authenticator *auth.Authenticator, hub *notify.Hub, records store.RecordsStore, events store.EventsStore, gateway *amend.Gateway) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		authenticator: authenticator,
		hub:           hub,
		records:       handlers.NewRecordsHandler(records, events, logger),
		amendments:    handlers.NewAmendmentsHandler(gateway, logger),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.requestLogMiddleware)
	r.Use(s.withActorMiddleware)

	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Route("/records", func(recordsRouter chi.Router) {
			recordsRouter.Get("/", s.records.List)
			recordsRouter.Post("/", s.records.Create)
			recordsRouter.Get("/{id}", s.records.Get)
			recordsRouter.Post("/{id}/lock", s.records.Lock)
			recordsRouter.Post("/{id}/amendments", s.amendments.Submit)
			recordsRouter.Get("/{id}/amendments/eligibility", s.amendments.Eligibility)
			recordsRouter.Get("/{id}/revisions", s.amendments.ListRevisions)
			recordsRouter.Get("/{id}/revisions/export", s.amendments.ExportRevisions)
		})
		apiRouter.Get("/ws/changes", s.handleChangesWS)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
