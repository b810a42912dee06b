package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilhermegouw/storyloom/internal/analytics"
	"github.com/guilhermegouw/storyloom/internal/character"
	"github.com/guilhermegouw/storyloom/internal/config"
	"github.com/guilhermegouw/storyloom/internal/db"
	"github.com/guilhermegouw/storyloom/internal/debug"
	"github.com/guilhermegouw/storyloom/internal/engine"
	"github.com/guilhermegouw/storyloom/internal/preset"
	"github.com/guilhermegouw/storyloom/internal/provider"
	"github.com/guilhermegouw/storyloom/internal/pubsub"
	"github.com/guilhermegouw/storyloom/internal/runner"
	"github.com/guilhermegouw/storyloom/internal/session"
)

const shutdownTimeout = 10 * time.Second

// app holds the services shared by the commands of one invocation.
type app struct {
	cfg      *config.Config
	db       *db.DB
	hub      *pubsub.Hub
	runner   *runner.Runner
	sessions *session.Service
	engine   *engine.Engine
	recorder *analytics.Recorder
	presets  *preset.DirResolver
	logger   *slog.Logger
}

// openApp loads the configuration and wires every service. When
// generation is false a missing or broken provider setup is tolerated and
// only reported if something tries to generate.
func openApp(cmd *cobra.Command, generation bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	debugMode, err := cmd.Root().PersistentFlags().GetBool("debug")
	if err != nil {
		return nil, fmt.Errorf("getting debug flag: %w", err)
	}
	if debugMode || cfg.Options.Debug {
		if err := debug.Enable(cfg.DebugLogPath()); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: failed to enable debug logging:", err)
		}
	}
	logger := debug.Component("cli")

	gen, err := provider.NewBuilder(cfg, debug.Component("provider")).Build()
	if err != nil {
		if generation {
			return nil, fmt.Errorf("building generator: %w", err)
		}
		buildErr := err
		gen = provider.GeneratorFunc(func(context.Context, provider.Request) (string, error) {
			return "", buildErr
		})
	}

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var store session.Store
	switch cfg.Options.Store {
	case config.StoreFile:
		store, err = session.NewFileStore(cfg.SessionsDir())
		if err != nil {
			_ = database.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("opening session directory: %w", err)
		}
	default:
		store = session.NewSQLiteStore(database.Conn())
	}

	hub := pubsub.NewHub()
	recorder := analytics.NewRecorder(database.Conn(), debug.Component("analytics"))
	recorder.Start(context.WithoutCancel(cmd.Context()), hub)

	sessions := session.NewService(store, hub.Session, debug.Component("session"))
	run := runner.New(runner.Options{
		Workers: cfg.Generation.Workers,
		Logger:  debug.Component("runner"),
	})
	presets := preset.NewDirResolver(cfg.PresetsDir())

	eng, err := engine.New(engine.Options{
		Sessions:   sessions,
		Characters: character.NewDirResolver(cfg.CharactersDir()),
		Presets:    presets,
		Generator:  gen,
		Runner:     run,
		Hub:        hub,
		Logger:     debug.Component("engine"),
	})
	if err != nil {
		hub.Shutdown()
		recorder.Wait()
		_ = database.Close() //nolint:errcheck // already failing
		return nil, err
	}

	logger.Debug("app ready", "store", cfg.Options.Store, "data_dir", cfg.DataDir(), "workers", cfg.Generation.Workers)

	return &app{
		cfg:      cfg,
		db:       database,
		hub:      hub,
		runner:   run,
		sessions: sessions,
		engine:   eng,
		recorder: recorder,
		presets:  presets,
		logger:   logger,
	}, nil
}

// Close lets scheduled runs finish unless ctx was cancelled, then stops
// the runner, flushes events into analytics and closes the database.
func (a *app) Close(ctx context.Context) error {
	if ctx.Err() == nil && a.runner.Active() > 0 {
		if err := a.runner.Drain(ctx); err != nil {
			a.logger.Warn("runs interrupted", "error", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	runErr := a.runner.Shutdown(stopCtx)

	a.logger.Debug("hub metrics", "brokers", a.hub.DebugString())
	a.hub.Shutdown()
	a.recorder.Wait()

	dbErr := a.db.Close()
	debug.Disable()
	return errors.Join(runErr, dbErr)
}

// withApp opens the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, generation bool, fn func(*app) error) (err error) {
	a, err := openApp(cmd, generation)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(cmd.Context()); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}
