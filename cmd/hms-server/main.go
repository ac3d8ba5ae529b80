package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/config"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/domain/scheduling"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/auth"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/db"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/hipaa"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/middleware"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/telemetry"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/internal/platform/validate"
	"github.com/LeeDev428/marcher-hospital-management-system-sub001/pkg/httputil"
)

const version = "0.1.0"

// retentionTimeout bounds a single scheduled audit sweep.
const retentionTimeout = 5 * time.Minute

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital scheduling API server",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load env file %s: %w", envFile, err)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before reading config")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(auditCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// loadConfig reads and validates configuration for every subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
	})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir := migrationsDir(cmd, cfg)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) from %s.\n", count, dir)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsDir(cmd, cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsDir(cmd *cobra.Command, cfg *config.Config) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.MigrationsDir
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Maintain the audit log",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit rows older than AUDIT_RETENTION_DAYS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			job := hipaa.NewRetentionJob(hipaa.NewAuditLogger(pool), cfg.AuditRetentionDays, logger)
			n, err := job.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d audit row(s) recorded before %s.\n",
				n, job.Cutoff().Format(time.RFC3339))
			return nil
		},
	})
	return cmd
}

// newLogger writes JSON lines, or console output in development, at the
// configured level. An unknown LOG_LEVEL falls back to info.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg, os.Stdout)

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		metrics = telemetry.New()
		metrics.RegisterPool(pool)
	}

	// Scheduling
	schedRepo := scheduling.NewScheduleRepoPG(pool)
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	engineOpts := []scheduling.EngineOption{scheduling.WithSlotInterval(cfg.SlotIntervalMinutes)}
	if metrics != nil {
		engineOpts = append(engineOpts, scheduling.WithObserver(metrics))
	}
	engine := scheduling.NewEngine(schedRepo, apptRepo, engineOpts...)
	schedSvc := scheduling.NewService(schedRepo, apptRepo, engine, db.NewTxManager(pool))

	// Audit log and retention
	auditLogger := hipaa.NewAuditLogger(pool)
	retention, err := hipaa.NewRetentionJob(auditLogger, cfg.AuditRetentionDays, logger).
		Schedule(cfg.AuditCleanupSchedule, retentionTimeout)
	if err != nil {
		logger.Error().Err(err).Msg("failed to schedule audit retention")
		return err
	}
	retention.Start()
	defer func() { <-retention.Stop().Done() }()
	logger.Info().
		Str("schedule", cfg.AuditCleanupSchedule).
		Int("retention_days", cfg.AuditRetentionDays).
		Msg("audit retention scheduled")

	e := newRouter(routerDeps{
		cfg:        cfg,
		logger:     logger,
		scheduling: scheduling.NewHandler(schedSvc, logger),
		metrics:    metrics,
		audit:      auditLogger,
		dbHealth:   db.HealthHandler(pool),
	})

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

type routerDeps struct {
	cfg        *config.Config
	logger     zerolog.Logger
	scheduling *scheduling.Handler
	metrics    *telemetry.Metrics // nil disables /metrics
	audit      middleware.AuditRecorder
	dbHealth   echo.HandlerFunc // nil disables /health/db
}

func newRouter(d routerDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httputil.ErrorHandler
	e.Validator = validate.New()

	// Global middleware. Recovery sits inside Logger so panics are logged
	// with their final status.
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.SecurityHeaders())
	if d.metrics != nil {
		e.Use(d.metrics.Middleware())
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(d.cfg.RequestTimeout))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if d.dbHealth != nil {
		e.GET("/health/db", d.dbHealth)
	}
	if d.metrics != nil {
		e.GET("/metrics", d.metrics.Handler())
	}

	// API
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: d.cfg.RateLimitRPS,
		BurstSize:         d.cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	var authMW echo.MiddlewareFunc
	if d.cfg.DevAuth() {
		d.logger.Warn().Msg("development auth enabled: every request runs as admin")
		authMW = auth.DevAuthMiddleware()
	} else {
		authMW = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     d.cfg.AuthIssuer,
			Audience:   d.cfg.AuthAudience,
			SigningKey: []byte(d.cfg.AuthSigningKey),
		})
	}

	apiV1 := e.Group("/api/v1",
		middleware.RateLimit(rateLimitCfg),
		authMW,
		middleware.Audit(d.logger, d.audit),
	)
	if d.scheduling != nil {
		d.scheduling.RegisterRoutes(apiV1)
	}

	return e
}
