package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/therapy/therapy/internal/config"
	"github.com/therapy/therapy/internal/domain/billing"
	"github.com/therapy/therapy/internal/domain/clinical"
	"github.com/therapy/therapy/internal/domain/identity"
	"github.com/therapy/therapy/internal/domain/scheduling"
	"github.com/therapy/therapy/internal/platform/auth"
	"github.com/therapy/therapy/internal/platform/cache"
	"github.com/therapy/therapy/internal/platform/db"
	"github.com/therapy/therapy/internal/platform/hipaa"
	"github.com/therapy/therapy/internal/platform/metrics"
	"github.com/therapy/therapy/internal/platform/middleware"
	"github.com/therapy/therapy/migrations"
)

const requestTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "therapy-server",
		Short: "Therapy practice API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
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

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
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
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationsFS(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a practitioner account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := auth.NewService(auth.NewUserRepoPG(pool), nil, newLogger())
			u, err := svc.Register(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Created user %d (%s)\n", u.ID, u.Email)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Initial password (min 8 characters)")
	cmd.AddCommand(createCmd)
	return cmd
}

// resolveSigningKey returns JWT_SECRET, or a random key in development so
// tokens issued by this process still validate.
func resolveSigningKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), false, nil
	}
	if !cfg.IsDev() {
		return nil, false, fmt.Errorf("JWT_SECRET must be set when ENV=%q", cfg.Env)
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}

// services are the domain services mounted under /api/v1.
type services struct {
	auth       *auth.Service
	identity   *identity.Service
	clinical   *clinical.Service
	scheduling *scheduling.Service
	billing    *billing.Service
}

func newServices(pool *pgxpool.Pool, rdb *redis.Client, enc hipaa.FieldEncryptor, tokens *auth.TokenIssuer, statsTTL time.Duration, bm *metrics.BillingMetrics, logger zerolog.Logger) *services {
	patients := identity.NewService(identity.NewPatientRepo(pool))
	notes := clinical.NewNoteRepo(pool, enc)

	// A nil *pgxpool.Pool must not become a non-nil Beginner.
	var tx db.Beginner
	if pool != nil {
		tx = pool
	}

	return &services{
		auth:       auth.NewService(auth.NewUserRepoPG(pool), tokens, logger),
		identity:   patients,
		clinical:   clinical.NewService(notes, patients, logger),
		scheduling: scheduling.NewService(scheduling.NewAppointmentRepo(pool), notes, patients, tx, bm, logger),
		billing: billing.NewService(billing.NewPaymentRepo(pool), patients, tx,
			cache.New(rdb, "therapy:stats", statsTTL), bm, logger),
	}
}

func mountAPI(api *echo.Group, s *services) {
	auth.NewHandler(s.auth).RegisterRoutes(api)
	identity.NewHandler(s.identity).RegisterRoutes(api)
	clinical.NewHandler(s.clinical).RegisterRoutes(api)
	scheduling.NewHandler(s.scheduling).RegisterRoutes(api)
	billing.NewHandler(s.billing).RegisterRoutes(api)
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	signingKey, generated, err := resolveSigningKey(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("signing key")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set, using a random key; tokens will not survive a restart")
	}

	encSvc, err := hipaa.NewEncryptionService(cfg.HIPAAEncryptionKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise note encryption")
	}

	// Postgres and Redis are independent; connect to both at once.
	ctx := context.Background()
	var (
		pool *pgxpool.Pool
		rdb  *redis.Client
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pool, err = db.NewPool(gctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		return err
	})
	g.Go(func() error {
		var err error
		rdb, err = cache.NewRedisClient(gctx, cfg.RedisURL, logger)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to backing services")
	}
	defer pool.Close()
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Info().Msg("REDIS_URL not set, statistics cache disabled")
	}
	logger.Info().Msg("connected to database")

	reg := prometheus.DefaultRegisterer
	httpMetrics := metrics.NewHTTPMetrics(reg)
	billingMetrics := metrics.NewBillingMetrics(reg)

	tokens := auth.NewTokenIssuer(signingKey, cfg.JWTIssuer, cfg.TokenTTL())
	svcs := newServices(pool, rdb, encSvc.Encryptor(), tokens, cfg.StatsCacheTTL, billingMetrics, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics(httpMetrics))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	jwtCfg := tokens.Config()
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.Audit(logger))
	apiV1.Use(middleware.RequestTimeout(requestTimeout))

	mountAPI(apiV1, svcs)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	var checks []db.Check
	if rdb != nil {
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	e.GET("/health/db", db.HealthHandler(pool, checks...))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
