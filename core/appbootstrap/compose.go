package appbootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DavidCapener182/incommand-sub013/api"
	"github.com/DavidCapener182/incommand-sub013/config"
	"github.com/DavidCapener182/incommand-sub013/core/amend"
	"github.com/DavidCapener182/incommand-sub013/core/auth"
	"github.com/DavidCapener182/incommand-sub013/core/notify"
	"github.com/DavidCapener182/incommand-sub013/core/store"
	"github.com/DavidCapener182/incommand-sub013/core/verify"
)

// BackgroundWorker is anything started alongside the HTTP server and stopped
// on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type runtimeComposition struct {
	server  *api.Server
	workers []BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *zap.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	events := store.NewEventsStore(db)
	records := store.NewRecordsStore(db)
	revisions := store.NewRevisionsStore(db)

	guard, err := amend.NewGuard(users, cfg.Amendments.ElevatedRoles)
	if err != nil {
		return nil, err
	}
	validator := amend.NewValidator(cfg.EffectiveReasonMaxLen())

	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewHTTPWebhookSender(cfg.Notify.WebhookURL, time.Duration(cfg.Notify.WebhookTimeout)*time.Second))
	}
	hub := notify.NewHub(cfg.Notify.BufferSize, logger, senders...)

	gateway := amend.NewGateway(
		db,
		records,
		revisions,
		guard,
		validator,
		amend.NewEjectionPolicy(),
		hub,
		logger,
		int(cfg.EffectivePersistRetries()),
	)

	authenticator := auth.NewAuthenticator(users)
	server := api.NewServer(cfg, logger, authenticator, hub, records, events, gateway)
	verifier := verify.NewVerifier(cfg.Verifier, records, revisions, logger)

	return &runtimeComposition{
		server:  server,
		workers: []BackgroundWorker{verifier},
	}, nil
}
