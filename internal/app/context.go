package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"brewline/internal/config"
	"brewline/internal/db"
	"brewline/internal/engine"
	"brewline/internal/kv"
	"brewline/internal/migrate"
	"brewline/internal/notify"
	"brewline/internal/repo"
)

// App is an opened workspace: database, key-value store and the engines built on them.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Store     kv.Store
	Scheduler *notify.SQLScheduler
	Engine    engine.Engine
	Tracker   *engine.Tracker
	Logger    *slog.Logger
}

// Open migrates the workspace database, opens the configured key-value backend and
// wires the engine. A nil cfg loads brewline.yml from the workspace, falling back to
// defaults when the file is absent.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		loaded, err := config.LoadOptional(workspace)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := openStore(workspace, cfg, conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	r := repo.Repo{DB: conn}
	sched := notify.NewSQLScheduler(r, cfg.Notifications.Enabled, cfg.Notifications.MinLead, logger.With("component", "notify"))
	eng := engine.New(conn, store, sched, cfg)
	eng.Logger = logger.With("component", "engine")
	eng.Tracker.Logger = logger.With("component", "tracker")
	return &App{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Repo:      r,
		Store:     store,
		Scheduler: sched,
		Engine:    eng,
		Tracker:   eng.Tracker,
		Logger:    logger,
	}, nil
}

func openStore(workspace string, cfg *config.Config, conn *sql.DB, logger *slog.Logger) (kv.Store, error) {
	switch cfg.Storage.KVBackend {
	case config.BackendBadger:
		store, err := kv.OpenBadger(kv.BadgerConfig{
			Path:       cfg.BadgerPath(workspace),
			SyncWrites: true,
			Logger:     logger.With("component", "badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return store, nil
	case config.BackendSQLite, "":
		return kv.NewSQLite(conn), nil
	default:
		return nil, fmt.Errorf("unknown kv backend %q", cfg.Storage.KVBackend)
	}
}

// Close releases the key-value store and the database.
func (a *App) Close() error {
	return errors.Join(a.Store.Close(), a.DB.Close())
}

// Dispatcher delivers this workspace's due notifications to n.
func (a *App) Dispatcher(n notify.Notifier) notify.Dispatcher {
	return notify.Dispatcher{
		Repo:     a.Repo,
		Notifier: n,
		Interval: a.Config.Notifications.PollInterval,
		Logger:   a.Logger.With("component", "dispatcher"),
	}
}

// Observer watches sessionID, or the active session when empty, at the configured tick.
func (a *App) Observer(sessionID string) engine.Observer {
	return engine.Observer{
		Engine:    a.Engine,
		SessionID: sessionID,
		Interval:  a.Config.Timer.Tick,
	}
}

// ResolveSession returns id, or the active session's id when id is empty.
func (a *App) ResolveSession(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	active, err := a.Engine.ActiveSession(ctx)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", errors.New("no active brew session; pass a session id or start one with bl session start")
	}
	return active.ID, nil
}
