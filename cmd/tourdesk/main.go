package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tourdesk/internal/app"
	"tourdesk/internal/config"
	"tourdesk/internal/db"
	"tourdesk/internal/migrate"
	"tourdesk/internal/portal"
	"tourdesk/internal/repo"
	"tourdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tourdesk",
	Short: "Tourdesk portal and tooling",
	Long: `Tourdesk serves the admin, vendor and public screens of a tour and
activity marketplace on top of its REST API.
- Portal: bookings, refunds, invoices, discounts, availability calendars,
  packages and media, rendered on the server.
- JSON API: calendar grids, availability merges, invoice totals, status
  tables and package normalization under /api/v0.
- Activity log: every portal action is stored in .tourdesk/tourdesk.db and
  fanned out to AMQP and webhooks; view it with 'tourdesk log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

// initConfig loads <workspace>/.env before viper reads the environment, so
// TOURDESK_* values in the file behave like exported variables.
func initConfig() {
	workspace := viper.GetString("workspace")
	if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	viper.SetEnvPrefix("TOURDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (default <workspace>/tourdesk.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "actor recorded in the activity log and service tokens")
	flags.String("api-base-url", "", "marketplace API base url")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "api-base-url", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(totalsCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(packageCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

// options collects flag and environment overrides. Secrets only come from
// the environment (TOURDESK_API_SECRET, TOURDESK_CSRF_KEY, TOURDESK_AMQP_URL).
func options() app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Overrides: app.Overrides{
			Addr:       viper.GetString("addr"),
			APIBaseURL: viper.GetString("api-base-url"),
			APISecret:  viper.GetString("api-secret"),
			CSRFKey:    viper.GetString("csrf-key"),
			AMQPURL:    viper.GetString("amqp-url"),
			LogLevel:   viper.GetString("log-level"),
			Actor:      viper.GetString("actor-id"),
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal, JSON API and webhook dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := app.Open(ctx, options())
			if err != nil {
				return err
			}
			defer ws.Close()
			cfg := ws.Config

			apiHandler, err := server.New(server.Config{
				Engine:         ws.Engine,
				Events:         ws.Repo,
				BasePath:       cfg.Server.APIBasePath,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Logger:         ws.Logger.Named("api"),
			})
			if err != nil {
				return err
			}
			portalHandler, err := portal.New(portal.Config{
				Engine:        ws.Engine,
				Title:         cfg.Portal.Title,
				CSRFKey:       cfg.Portal.CSRFKey,
				SecureCookies: cfg.Portal.SecureCookies,
				PageSize:      cfg.Portal.PageSize,
				Logger:        ws.Logger.Named("portal"),
			})
			if err != nil {
				return err
			}
			root := chi.NewRouter()
			root.Handle("/docs", apiHandler)
			root.Handle(cfg.Server.APIBasePath+"/*", apiHandler)
			root.Mount("/", portalHandler)

			dispatcher := server.NewWebhookDispatcher(ws.Repo, cfg.Webhooks, ws.Logger.Named("webhooks"))
			runCtx, stop := context.WithCancel(ctx)
			defer stop()
			go dispatcher.Run(runCtx)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: root, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-runCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			ws.Logger.Info("serving",
				zap.String("addr", cfg.Server.Addr),
				zap.String("api", cfg.Server.APIBasePath),
				zap.String("marketplace_api", ws.API.BaseURL()),
			)
			fmt.Printf("Serving Tourdesk on http://%s (API at %s, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.APIBasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Inspect the activity log"}
	logc.AddCommand(logTailCmd())
	logc.AddCommand(logInfoCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&f.ActorID, "actor", "", "actor filter")
	return cmd
}

func logInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the activity log location, schema version and latest event",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				version, err := migrate.Version(ctx, r.DB)
				if err != nil {
					return err
				}
				latest, err := migrate.Latest()
				if err != nil {
					return err
				}
				lastID, err := r.LatestEventID(ctx)
				if err != nil {
					return err
				}
				info := map[string]any{
					"path":           db.Path(workspace),
					"schema_version": version,
					"latest_schema":  latest,
					"latest_event":   lastID,
				}
				if viper.GetBool("json") {
					return printJSON(info)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRows([]table.Row{
					{"Database", info["path"]},
					{"Schema", fmt.Sprintf("%d of %d", version, latest)},
					{"Latest event", lastID},
				})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Create and inspect tourdesk.yml",
		Long:  "tourdesk.yml lives in the workspace and holds the server address, marketplace API connection, portal settings, invoice tax rates, logging, AMQP and webhooks. Flags and TOURDESK_* variables override it.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force, secrets bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default tourdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(viper.GetString("api-base-url"))), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			if secrets {
				envPath := filepath.Join(workspace, ".env")
				if err := setEnvValue(envPath, "TOURDESK_CSRF_KEY", newCSRFKey()); err != nil {
					return err
				}
				fmt.Println("wrote TOURDESK_CSRF_KEY to", envPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().BoolVar(&secrets, "with-secrets", false, "generate a CSRF key into .env")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(options())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.LoadConfig(options())
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := app.OpenLog(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// setEnvValue sets key in a dotenv file, keeping the other entries.
func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}

// newCSRFKey returns 32 random hex characters, the key length gorilla/csrf
// expects.
func newCSRFKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
