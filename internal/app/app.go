// Package app wires the client components together: config, storage,
// backend client, session and provider managers, the document reconciler,
// the save flow, and the generation poller.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cvdeck/cvdeck/internal/backend"
	"github.com/cvdeck/cvdeck/internal/config"
	"github.com/cvdeck/cvdeck/internal/logger"
	"github.com/cvdeck/cvdeck/internal/provider"
	"github.com/cvdeck/cvdeck/internal/reconcile"
	"github.com/cvdeck/cvdeck/internal/saveflow"
	"github.com/cvdeck/cvdeck/internal/session"
	"github.com/cvdeck/cvdeck/internal/store"
	"github.com/cvdeck/cvdeck/internal/task"
)

// deviceSecretKey is the settings row holding the generated signing secret.
const deviceSecretKey = "device_secret"

// App holds the initialized application dependencies.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *store.Store
	Client     *backend.Client
	Sessions   *session.Manager
	Providers  *provider.Manager
	Reconciler *reconcile.Reconciler
	SaveFlow   *saveflow.Flow
	Poller     *task.Poller
	Generator  *task.Generator
}

// New builds the dependency graph. logOut receives structured logs; nil
// means stderr.
func New(cfg *config.Config, logOut io.Writer) (*App, error) {
	log := logger.SetupDefault(logOut, logger.ParseLevel(cfg.LogLevel))

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	secret, err := deviceSecret(st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	client := backend.NewClient(cfg.APIBase, nil, log)
	sessions := session.NewManager(st, client, secret, cfg.Offline, log)
	client.SetTokenSource(sessions.Token)

	providers := provider.NewManager(st, client, sessions.Offline, log)

	// After a successful online start, refresh provider connection state and
	// record the connected set in the session snapshot.
	sessions.SetOnOnline(func(ctx context.Context) {
		providers.StatusAll(ctx)
		sessions.RecordProviders(providers.ConnectedIDs())
	})

	reconciler := reconcile.New(st, providers, log)
	flow := saveflow.New(st, providers, log)
	poller := task.NewPoller(client, log)
	generator := task.NewGenerator(client, poller, log)

	return &App{
		Config:     cfg,
		Logger:     log,
		Store:      st,
		Client:     client,
		Sessions:   sessions,
		Providers:  providers,
		Reconciler: reconciler,
		SaveFlow:   flow,
		Poller:     poller,
		Generator:  generator,
	}, nil
}

// Start establishes the session, online or offline.
func (a *App) Start(ctx context.Context) error {
	if !a.Sessions.Initialize(ctx) {
		return fmt.Errorf("could not establish a session")
	}
	return nil
}

// Close stops background work and releases the store.
func (a *App) Close() error {
	a.Poller.Stop()
	return a.Store.Close()
}

// deviceSecret returns the configured signing secret, generating and
// persisting one on first run when the config leaves it empty.
func deviceSecret(st *store.Store, cfg *config.Config) (string, error) {
	if cfg.DeviceSecret != "" {
		return cfg.DeviceSecret, nil
	}
	secret, err := st.Setting(deviceSecretKey)
	if err != nil {
		return "", err
	}
	if secret != "" {
		return secret, nil
	}
	secret = uuid.NewString()
	if err := st.SetSetting(deviceSecretKey, secret); err != nil {
		return "", fmt.Errorf("persist device secret: %w", err)
	}
	return secret, nil
}
