// Package app wires a workspace: config, activity log, API client and engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tourdesk/internal/apiclient"
	"tourdesk/internal/config"
	"tourdesk/internal/db"
	"tourdesk/internal/engine"
	"tourdesk/internal/events"
	"tourdesk/internal/logging"
	"tourdesk/internal/migrate"
	"tourdesk/internal/repo"
)

// Overrides are flag and environment values applied on top of tourdesk.yml.
// Empty fields leave the file value alone.
type Overrides struct {
	Addr       string
	APIBaseURL string
	APISecret  string
	CSRFKey    string
	AMQPURL    string
	LogLevel   string
	Actor      string
}

type Options struct {
	Workspace string
	// ConfigPath points at a config file outside the workspace.
	ConfigPath string
	Overrides  Overrides
	// Logger replaces the one built from the config.
	Logger *zap.Logger
}

// Workspace holds the shared dependencies of every command. Close releases
// the database and the broker connection.
type Workspace struct {
	Dir       string
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Logger    *zap.Logger
	Publisher events.Publisher
	Events    events.Log
	API       *apiclient.Client
	Engine    engine.Engine
}

// LoadConfig reads the config file, falling back to defaults when the
// workspace has none, and applies overrides.
func LoadConfig(opts Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.FromFile(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(opts.Workspace)
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	apply(cfg, opts.Overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apply(cfg *config.Config, o Overrides) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Addr, o.Addr)
	set(&cfg.API.BaseURL, o.APIBaseURL)
	set(&cfg.API.ServiceTokenSecret, o.APISecret)
	set(&cfg.API.Actor, o.Actor)
	set(&cfg.Portal.CSRFKey, o.CSRFKey)
	set(&cfg.Events.AMQPURL, o.AMQPURL)
	set(&cfg.Log.Level, o.LogLevel)
}

// OpenLog opens and migrates the workspace activity log without touching
// the marketplace API.
func OpenLog(ctx context.Context, workspace string) (*sql.DB, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate activity log: %w", err)
	}
	return conn, nil
}

// Open builds a Workspace. The AMQP publisher falls back to logging when no
// broker is configured or reachable.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	if opts.Workspace == "" {
		opts.Workspace = "."
	}
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		if logger, err = logging.New(cfg.Log.Level, cfg.Log.Format); err != nil {
			return nil, err
		}
	}
	conn, err := OpenLog(ctx, opts.Workspace)
	if err != nil {
		return nil, err
	}
	client, err := apiclient.New(apiclient.Config{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.APITimeout(),
		Actor:         cfg.API.Actor,
		ServiceSecret: cfg.API.ServiceTokenSecret,
		TokenTTL:      cfg.ServiceTokenTTL(),
		Logger:        logger.Named("api"),
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	pub := events.NewPublisher(cfg.Events.AMQPURL, logger.Named("events"))
	log := events.Log{
		DB:        conn,
		Publisher: pub,
		Exchange:  cfg.Events.Exchange,
		Logger:    logger.Named("events"),
	}
	return &Workspace{
		Dir:       opts.Workspace,
		Config:    cfg,
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Logger:    logger,
		Publisher: pub,
		Events:    log,
		API:       client,
		Engine:    engine.New(client, log, cfg, logger.Named("engine")),
	}, nil
}

func (w *Workspace) Close() {
	if w.Publisher != nil {
		w.Publisher.Close()
	}
	if w.DB != nil {
		w.DB.Close()
	}
	_ = w.Logger.Sync()
}
