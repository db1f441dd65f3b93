package stylist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/config"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/db"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/tools"
)

// OpenStore opens the conversation store selected by store.backend. The
// returned close function releases the database, if any.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ports.ConversationStore, func() error, error) {
	conn, err := openDB(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := harness.NewFactory(cfg, conn, logger).CreateStore()
	if err != nil {
		closeDB(conn)
		return nil, nil, err
	}
	return store, func() error { return closeDB(conn) }, nil
}

// Build wires a Service from configuration: model client, uploader, search
// collaborator, stores and the supervisor's tools.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, func() error, error) {
	conn, err := openDB(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	factory := harness.NewFactory(cfg, conn, logger)

	store, err := factory.CreateStore()
	if err != nil {
		closeDB(conn)
		return nil, nil, err
	}

	client, err := adapters.NewGenAIClient(ctx, cfg.Model.APIKey)
	if err != nil {
		closeDB(conn)
		return nil, nil, err
	}
	provider := adapters.NewGenAIProvider(client, cfg.Model.ModelID, logger)
	uploader := adapters.NewGenAIUploader(client, logger)
	searcher := factory.CreateSearcher()

	orchestrator := factory.CreateOrchestrator(provider)
	agents := factory.CreateAgents()
	policy := factory.CreatePolicy()

	svc := New(Options{
		DataDir:     cfg.Stylist.DataDir,
		Workers:     cfg.Stylist.Workers,
		QueueDepth:  cfg.Stylist.QueueDepth,
		TaskTimeout: cfg.Stylist.TaskTimeout,
	}, Deps{
		Runner:     orchestrator,
		Supervisor: agents[harness.AgentSupervisor],
		Policy:     policy,
		Tools: tools.SupervisorTools(tools.Deps{
			Runner:   orchestrator,
			Agents:   agents,
			Policy:   policy,
			Searcher: searcher,
			Uploader: uploader,
			Resolver: factory.CreateURLResolver(),
			Logger:   logger,
		}),
		Store:    store,
		Progress: factory.CreateProgressLog(),
		Uploader: uploader,
		Logger:   logger.With().Str("component", "stylist").Logger(),
	})

	cleanup := func() error {
		return errors.Join(searcher.Close(), closeDB(conn))
	}
	return svc, cleanup, nil
}

func openDB(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	switch cfg.Store.Backend {
	case db.BackendLibSQL, db.BackendSQLite:
		conn, err := db.Connect(ctx, cfg.Store.Backend, cfg.Store.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
		}
		return conn, nil
	default:
		return nil, nil
	}
}

func closeDB(conn *sql.DB) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}
