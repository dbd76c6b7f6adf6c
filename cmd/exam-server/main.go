package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/eyeexam/internal/config"
	"github.com/ehr/eyeexam/internal/domain/cart"
	"github.com/ehr/eyeexam/internal/domain/snapshot"
	"github.com/ehr/eyeexam/internal/domain/subrecord"
	"github.com/ehr/eyeexam/internal/platform/db"
	"github.com/ehr/eyeexam/internal/platform/lock"
	"github.com/ehr/eyeexam/internal/platform/middleware"
	"github.com/ehr/eyeexam/internal/platform/report"
	"github.com/ehr/eyeexam/internal/platform/resume"
	"github.com/ehr/eyeexam/internal/platform/telemetry"
)

const (
	serviceName    = "exam-server"
	requestTimeout = 30 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "exam-server",
		Short:        "Eye examination API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clinicCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(recordsCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// newLocker picks the Redis locker when REDIS_URL is set. The returned close
// func is never nil.
func newLocker(cfg *config.Config) (lock.Locker, func() error, error) {
	if cfg.RedisURL == "" {
		return lock.NewLocal(), func() error { return nil }, nil
	}
	l, client, err := lock.NewRedisFromURL(cfg.RedisURL, cfg.LockTTL)
	if err != nil {
		return nil, nil, err
	}
	return l, client.Close, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the examination API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to a clinic schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			clinic, dir := clinicAndDir(cmd, cfg)
			target, _ := cmd.Flags().GetInt("to")

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := db.SchemaName(clinic)
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, dir).UpTo(ctx, schema, target)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().Int("to", 0, "Stop after this version (0 applies everything)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status for a clinic schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			clinic, dir := clinicAndDir(cmd, cfg)

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			schema := db.SchemaName(clinic)
			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), schema, statuses)
			return nil
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("clinic", "", "Clinic identifier (defaults to DEFAULT_CLINIC)")
		c.Flags().String("dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")
		cmd.AddCommand(c)
	}
	return cmd
}

func clinicAndDir(cmd *cobra.Command, cfg *config.Config) (string, string) {
	clinic, _ := cmd.Flags().GetString("clinic")
	if clinic == "" {
		clinic = cfg.DefaultClinic
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	return clinic, dir
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	tw.Flush()
}

func clinicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Manage clinics",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a clinic schema and migrate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating clinic schema: %s\n", db.SchemaName(name))
			if err := db.CreateClinicSchema(ctx, pool, name, cfg.MigrationsDir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Clinic created.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Clinic identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

// remoteSource builds a snapshot source against BACKEND_URL, preferring the
// consolidated endpoint.
func remoteSource(cfg *config.Config, clinic string, logger zerolog.Logger) *snapshot.Source {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	header := http.Header{}
	var opts []subrecord.RemoteOption
	if clinic != "" {
		header.Set(db.ClinicHeader, clinic)
		opts = append(opts, subrecord.WithHeader(db.ClinicHeader, clinic))
	}

	var resources []subrecord.Resource
	for _, k := range subrecord.Kinds() {
		resources = append(resources, subrecord.NewRemote(k, cfg.BackendURL, client, opts...))
	}
	agg := snapshot.NewAggregator(resources, logger)
	return snapshot.NewSource(agg, snapshot.NewConsolidated(cfg.BackendURL, client, header), logger)
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a visit's examination report from the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			visitArg, _ := cmd.Flags().GetString("visit")
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")
			clinic, _ := cmd.Flags().GetString("clinic")

			format = strings.ToLower(format)
			if format != "json" && format != "html" && format != "xlsx" {
				return fmt.Errorf("unknown format %q (want json, html or xlsx)", format)
			}
			visitID, err := uuid.Parse(visitArg)
			if err != nil {
				return fmt.Errorf("--visit must be a uuid: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())

			snap, err := snapshot.Fetch(cmd.Context(), remoteSource(cfg, clinic, logger), visitID)
			if err != nil {
				return fmt.Errorf("build snapshot: %w", err)
			}

			var body []byte
			switch format {
			case "json":
				body, err = json.MarshalIndent(map[string]interface{}{
					"visit_id":      visitID,
					"missing_kinds": snap.Missing,
					"sections":      report.RenderInteractive(snap),
				}, "", "  ")
			case "html":
				var s string
				s, err = report.RenderPrintable(snap)
				body = []byte(s)
			case "xlsx":
				body, err = report.RenderWorkbook(snap)
			}
			if err != nil {
				return fmt.Errorf("render %s: %w", format, err)
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			return os.WriteFile(out, body, 0o644)
		},
	}
	cmd.Flags().String("visit", "", "Visit (consultation) id")
	cmd.Flags().String("format", "json", "Output format: json, html or xlsx")
	cmd.Flags().String("out", "", "Output file (defaults to stdout)")
	cmd.Flags().String("clinic", "", "Clinic identifier sent to the backend")
	_ = cmd.MarkFlagRequired("visit")
	return cmd
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Browse sub-records held by the backend",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List one kind of sub-record for a visit",
		RunE: func(cmd *cobra.Command, args []string) error {
			kindName, _ := cmd.Flags().GetString("kind")
			visitArg, _ := cmd.Flags().GetString("visit")
			page, _ := cmd.Flags().GetInt("page")
			search, _ := cmd.Flags().GetString("search")
			clinic, _ := cmd.Flags().GetString("clinic")

			kind, ok := subrecord.KindByName(kindName)
			if !ok {
				return fmt.Errorf("unknown kind %q", kindName)
			}
			visitID, err := uuid.Parse(visitArg)
			if err != nil {
				return fmt.Errorf("--visit must be a uuid: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var opts []subrecord.RemoteOption
			if clinic != "" {
				opts = append(opts, subrecord.WithHeader(db.ClinicHeader, clinic))
			}
			remote := subrecord.NewRemote(kind, cfg.BackendURL, &http.Client{Timeout: cfg.HTTPTimeout}, opts...)

			view, err := browse(cmd.Context(), remote, visitID, page, search)
			if err != nil {
				return err
			}
			printPage(cmd.OutOrStdout(), view.Page)
			return nil
		},
	}
	listCmd.Flags().String("kind", "", "Sub-record kind, e.g. complaint")
	listCmd.Flags().String("visit", "", "Visit (consultation) id")
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().String("search", "", "Search term")
	listCmd.Flags().String("clinic", "", "Clinic identifier sent to the backend")
	_ = listCmd.MarkFlagRequired("kind")
	_ = listCmd.MarkFlagRequired("visit")

	cmd.AddCommand(listCmd)
	return cmd
}

// browse loads one page through a Browser. A search always starts at page 1.
func browse(ctx context.Context, res subrecord.Resource, visitID uuid.UUID, page int, search string) (subrecord.View, error) {
	if search == "" {
		b := subrecord.NewBrowser(res, visitID)
		err := b.GoTo(ctx, page)
		return b.View(), err
	}

	settled := make(chan subrecord.View, 1)
	b := subrecord.NewBrowser(res, visitID,
		subrecord.WithDebounce(0),
		subrecord.OnChange(func(v subrecord.View) { settled <- v }),
	)
	defer b.Stop()
	b.Search(ctx, search)

	select {
	case v := <-settled:
		return v, v.Err
	case <-ctx.Done():
		return subrecord.View{}, ctx.Err()
	}
}

func printPage(w io.Writer, page *subrecord.Page) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED AT\tCREATED BY")
	for _, r := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.CreatedBy)
	}
	tw.Flush()
	fmt.Fprintf(w, "page %d of %d (%d total)\n", page.Page, page.LastPage, page.Total)
}

// registerRoutes mounts every sub-record kind plus the snapshot, report,
// resume-token and order checkout endpoints on api.
func registerRoutes(api *echo.Group, repo subrecord.Repository, locker lock.Locker, signer *resume.Signer, logger zerolog.Logger) {
	resources := make([]subrecord.Resource, 0, len(subrecord.Kinds()))
	for _, k := range subrecord.Kinds() {
		svc := subrecord.NewService(k, repo, locker, logger)
		subrecord.NewHandler(svc).RegisterRoutes(api)
		resources = append(resources, svc)
	}

	agg := snapshot.NewAggregator(resources, logger)
	snapshot.NewHandler(agg).RegisterRoutes(api)
	report.NewHandler(agg, logger).RegisterRoutes(api)
	resume.NewHandler(signer).RegisterRoutes(api)
	cart.NewHandler().RegisterRoutes(api)
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return fmt.Errorf("lock backend: %w", err)
	}
	defer closeLocker()

	signer, err := resume.NewSigner(cfg.ResumeSecret(), cfg.ResumeTokenTTL)
	if err != nil {
		return err
	}

	telemetry.Setup()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware(serviceName))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader, db.ClinicHeader, subrecord.CreatorHeader},
	}))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", db.HealthHandler(pool))

	api := e.Group("/api/v1", db.ClinicMiddleware(pool, cfg.DefaultClinic))
	registerRoutes(api, subrecord.NewRepo(pool), locker, signer, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
