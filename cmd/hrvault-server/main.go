package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hrvault/hrvault/internal/config"
	"github.com/hrvault/hrvault/internal/domain/files"
	"github.com/hrvault/hrvault/internal/domain/identity"
	"github.com/hrvault/hrvault/internal/heartrate"
	"github.com/hrvault/hrvault/internal/platform/auth"
	"github.com/hrvault/hrvault/internal/platform/blobstore"
	"github.com/hrvault/hrvault/internal/platform/db"
	"github.com/hrvault/hrvault/internal/platform/events"
	"github.com/hrvault/hrvault/internal/platform/metrics"
	"github.com/hrvault/hrvault/internal/platform/middleware"
)

// multipartSlack is the allowance for multipart framing on top of
// MAX_UPLOAD_BYTES.
const multipartSlack = 64 << 10

func main() {
	rootCmd := &cobra.Command{
		Use:   "hrvault-server",
		Short: "Heart-rate export API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(extractCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// extractCmd prints the normalized record of an export on disk, the same
// record an upload of that file would store.
func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <export.json>",
		Short: "Print the normalized heart-rate record of an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := heartrate.ExtractFile(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
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

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if cfg.EventsEnabled() {
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	return events.NewNopPublisher(logger)
}

// serverDeps are the collaborators newServer wires into handlers.
type serverDeps struct {
	persons     identity.PersonRepository
	userTypes   identity.UserTypeRepository
	files       files.FileRepository
	blobs       blobstore.BlobStore
	publisher   events.Publisher
	revocations *auth.TokenRevocationStore
	dbHealth    echo.HandlerFunc
}

func newServer(cfg *config.Config, logger zerolog.Logger, d serverDeps) *echo.Echo {
	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret: []byte(cfg.JWTSecretKey),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.MaxUploadBytes + multipartSlack))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(auth.JWTMiddleware(tokens, d.revocations, auth.AuthSkipper))
	e.Use(middleware.Audit(logger, middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		metrics.RecordDataAccess(entry.Resource, entry.Action)
		return nil
	})))

	// Public endpoints
	e.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
	})
	e.GET("/health/db", d.dbHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group("")

	identitySvc := identity.NewService(d.persons, d.userTypes, auth.NewBcryptHasher(cfg.BcryptCost), tokens, d.revocations)
	identity.NewHandler(identitySvc).RegisterRoutes(api, middleware.RateLimit(middleware.DefaultAuthRateLimit()))

	filesSvc := files.NewService(d.files, identitySvc, d.blobs, d.publisher, logger, cfg.MaxUploadBytes)
	files.NewHandler(filesSvc).RegisterRoutes(api)

	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	blobs, err := blobstore.NewFileBlobStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("failed to open upload directory")
	}

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing event publisher")
		}
	}()
	if cfg.EventsEnabled() {
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing upload events")
	}

	revocations := auth.NewTokenRevocationStore(5 * time.Minute)
	defer revocations.Close()

	e := newServer(cfg, logger, serverDeps{
		persons:     identity.NewPersonRepoPG(pool),
		userTypes:   identity.NewUserTypeRepoPG(pool),
		files:       files.NewFileRepoPG(pool),
		blobs:       blobs,
		publisher:   publisher,
		revocations: revocations,
		dbHealth:    db.HealthHandler(pool),
	})

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
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
