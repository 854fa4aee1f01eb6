package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cwkhub/internal/app"
	"cwkhub/internal/config"
	"cwkhub/internal/db"
	"cwkhub/internal/engine"
	"cwkhub/internal/migrate"
	"cwkhub/internal/repo"
	"cwkhub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cwk",
	Short: "CWK Hub CLI",
	Long: `CWK Hub keeps a coding school's timetable and books honest.
- Compulsory blocks: organisation-wide meetings (Monday team meeting, bi-weekly Thursday
  educators meeting) that nothing may be booked over.
- Sessions: scheduled class meetings with a lead educator and optional assistants.
- Coaching invites: one-off slots offered to an educator; rejected when they clash with a
  block, a session or another live invite.
- Enrolments: a learner may not join a class whose sessions overlap another active class.
- Finance: invoices, payments and expenses roll up into monthly summaries and debtor lists.
- Event log: every change is recorded, view with 'cwk log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		if err := loadDotEnv(workspace); err != nil {
			return err
		}
		setupLogging()
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CWKHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.Bool("json", false, "output JSON")
	pf.String("actor-id", "local-user", "actor identifier")
	pf.String("org", "", "organisation id (defaults to the only one stored)")
	for _, name := range []string{"workspace", "json", "actor-id", "org"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(termCmd())
	rootCmd.AddCommand(classCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(enrollmentCmd())
	rootCmd.AddCommand(attendanceCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(expenseCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(secretCmd())
}

// loadDotEnv reads <workspace>/.env without overriding the real environment.
func loadDotEnv(workspace string) error {
	path := envPath(workspace)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func envPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

func setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the organisation config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the organisation config stored in the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default cwkhub.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			orgID := viper.GetString("org")
			if orgID == "" {
				orgID = app.DefaultOrgID
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	var filePath string
	imp := &cobra.Command{
		Use:   "import",
		Short: "Import organisation config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			if filePath == "" {
				filePath = config.Path(viper.GetString("workspace"))
			}
			parsed, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.ImportConfig(ctx, parsed, actorID()); err != nil {
					return err
				}
				return printJSONOrTable(parsed)
			})
		},
	}
	imp.Flags().StringVar(&filePath, "file", "", "path to YAML config (default <workspace>/cwkhub.yml)")
	cfg.AddCommand(imp)
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authCfg := server.AuthConfig{
					JWTSecret:              viper.GetString("jwt-secret"),
					AllowLegacyActorHeader: legacyHeader,
					EnableDevLogin:         devLogin,
				}
				if authCfg.JWTSecret == "" && !legacyHeader {
					return fmt.Errorf("CWKHUB_JWT_SECRET is required for bearer auth (run 'cwk secret init')")
				}
				logger := slog.Default()
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: logger})
				if err != nil {
					return err
				}
				if d := server.NewWebhookDispatcher(e, logger); d != nil {
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving CWK Hub API", "addr", addr, "base_path", basePath, "org", e.Config.Organisation.ID, "webhooks", len(e.Config.Webhooks))
				fmt.Printf("Serving CWK Hub API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&legacyHeader, "allow-actor-header", false, "accept X-Actor-Id without credentials (local use only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}

func secretCmd() *cobra.Command {
	sec := &cobra.Command{Use: "secret", Short: "Manage the API signing secret"}
	sec.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Generate CWKHUB_JWT_SECRET into <workspace>/.env",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := envPath(viper.GetString("workspace"))
			env := map[string]string{}
			if existing, err := godotenv.Read(path); err == nil {
				env = existing
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if env["CWKHUB_JWT_SECRET"] != "" {
				fmt.Println("secret already set in", path)
				return nil
			}
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			env["CWKHUB_JWT_SECRET"] = hex.EncodeToString(buf)
			if err := godotenv.Write(env, path); err != nil {
				return err
			}
			fmt.Println("wrote CWKHUB_JWT_SECRET to", path)
			return nil
		},
	})
	return sec
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, actorID(), name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": plain})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	keys.AddCommand(create)
	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return keys
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor")
				for _, evt := range events {
					tw.AppendRow(row(evt.ID, evt.TS, evt.Type, evt.EntityKind+"/"+evt.EntityID, evt.ActorID))
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVarP(&f.Limit, "n", "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	lg.AddCommand(tail)
	return lg
}

// --- helpers ---

func actorID() string {
	return viper.GetString("actor-id")
}

func openDB(ctx context.Context) (repo.Repo, func(), error) {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return repo.Repo{}, nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return repo.Repo{}, nil, err
	}
	return repo.Repo{DB: conn}, func() { conn.Close() }, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	r, done, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer done()
	cfg, err := app.ResolveConfig(ctx, viper.GetString("org"), r)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(r.DB, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	r, done, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer done()
	return fn(ctx, r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
