package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/voiceops/internal/client"
	"github.com/mark3labs/voiceops/internal/config"
	ierr "github.com/mark3labs/voiceops/internal/errors"
	"github.com/mark3labs/voiceops/internal/executor"
	"github.com/mark3labs/voiceops/internal/health"
	"github.com/mark3labs/voiceops/internal/hooks"
	"github.com/mark3labs/voiceops/internal/model"
	"github.com/mark3labs/voiceops/internal/nats"
	"github.com/mark3labs/voiceops/internal/store"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
)

// RuntimeConfig holds configuration for a Runtime.
type RuntimeConfig struct {
	SessionName string         // Slugged session name
	App         *config.Config // Loaded application config
	WorkDir     string         // Working directory for hooks
	Backend     *client.Client // Optional, built from App.APIURL when nil
}

// Runtime assembles the engine and everything it depends on: backend
// client, embedded journal, reconciler, health monitor and hooks.
type Runtime struct {
	cfg RuntimeConfig

	client     *client.Client
	ns         *natsserver.Server // Embedded NATS server (nil without journal)
	nc         *natsgo.Conn
	natsDir    string
	journal    *store.Journal
	follower   *store.Follower
	reconciler *store.Reconciler
	monitor    *health.Monitor
	engine     *Engine

	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewRuntime validates cfg and creates a Runtime. Call Start before use.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("missing application config")
	}
	if err := cfg.App.Validate(); err != nil {
		return nil, err
	}
	if cfg.SessionName == "" {
		cfg.SessionName = cfg.App.Session
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.WorkDir = wd
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

// Start brings up every component.
func (r *Runtime) Start() error {
	log.Info("Starting runtime for session '%s'", r.cfg.SessionName)
	app := r.cfg.App

	r.client = r.cfg.Backend
	if r.client == nil {
		r.client = client.New(client.Config{BaseURL: app.APIURL, Timeout: app.RequestTimeout})
	}

	var journal store.Publisher
	var feed store.Feed
	if app.Journal {
		log.Debug("Starting journal")
		j, err := r.startJournal()
		if err != nil {
			log.Error("Failed to start journal: %v", err)
			_ = r.Stop()
			return fmt.Errorf("failed to start journal: %w", err)
		}
		f, err := j.Follow(r.ctx, r.cfg.SessionName)
		if err != nil {
			_ = r.Stop()
			return fmt.Errorf("failed to follow journal: %w", err)
		}
		r.journal = j
		r.follower = f
		journal = j
		feed = f
	}

	r.reconciler = store.NewReconciler(store.Config{
		Session: r.cfg.SessionName,
		Journal: journal,
		Feed:    feed,
	})

	hookPath := app.HooksFile
	if hookPath == "" {
		hookPath = hooks.ConfigFileName
	}
	hookCfg, err := hooks.LoadConfig(hookPath)
	if err != nil {
		_ = r.Stop()
		return err
	}

	policy, err := executor.ParsePolicy(app.FailurePolicy)
	if err != nil {
		_ = r.Stop()
		return err
	}
	coordinator := executor.New(executor.Config{
		Executor: r.client,
		Policy:   policy,
		OnStep: func(o model.ActionOutcome) {
			log.Debug("Step %d (%s) success=%t", o.Step, o.Type, o.Success)
		},
	})
	log.Debug("Failure policy: %s", coordinator.Policy())

	r.monitor = health.New(r.client, app.RetryDelay)

	r.engine = NewEngine(EngineConfig{
		Session:           r.cfg.SessionName,
		Pipeline:          r.client,
		Executor:          coordinator,
		Recorder:          r.reconciler,
		Transcriber:       r.client,
		Monitor:           r.monitor,
		Hooks:             hooks.NewRunner(hookCfg, r.cfg.WorkDir),
		MaxClarifications: app.MaxClarifications,
	})

	log.Info("Runtime started")
	return nil
}

func (r *Runtime) startJournal() (*store.Journal, error) {
	dir, err := os.MkdirTemp("", "voiceops-nats-")
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS directory: %w", err)
	}
	r.natsDir = dir

	ns, err := nats.StartEmbeddedNATS(dir)
	if err != nil {
		return nil, err
	}
	r.ns = ns

	nc, err := nats.ConnectInProcess(ns)
	if err != nil {
		return nil, err
	}
	r.nc = nc

	js, err := nats.CreateJetStream(nc)
	if err != nil {
		return nil, err
	}
	stream, err := nats.SetupStream(r.ctx, js)
	if err != nil {
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}
	return store.NewJournal(js, stream), nil
}

// Engine returns the command engine. Valid after Start.
func (r *Runtime) Engine() *Engine { return r.engine }

// Monitor returns the connectivity monitor. Valid after Start.
func (r *Runtime) Monitor() *health.Monitor { return r.monitor }

// Client returns the backend client. Valid after Start.
func (r *Runtime) Client() *client.Client { return r.client }

// Stop shuts everything down in reverse order of Start.
func (r *Runtime) Stop() error {
	if r.stopped {
		return nil
	}
	r.stopped = true

	log.Info("Stopping runtime for session '%s'", r.cfg.SessionName)
	multiErr := &ierr.MultiError{}

	if r.cancel != nil {
		r.cancel()
	}
	if r.engine != nil {
		r.engine.Stop()
	}
	if r.monitor != nil {
		r.monitor.Close()
	}

	if r.follower != nil {
		r.follower.Stop()
	}
	if r.ns != nil || r.nc != nil {
		if err := nats.Shutdown(r.nc, r.ns); err != nil {
			log.Error("NATS shutdown failed: %v", err)
			multiErr.Append(fmt.Errorf("NATS shutdown failed: %w", err))
		}
		r.nc = nil
		r.ns = nil
	}
	if r.natsDir != "" {
		if err := os.RemoveAll(r.natsDir); err != nil {
			multiErr.Append(ierr.NewTransientError("remove NATS directory", err))
		}
	}

	log.Info("Runtime stopped")
	return multiErr.ErrorOrNil()
}
