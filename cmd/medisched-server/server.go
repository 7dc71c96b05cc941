package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/medisched/medisched/internal/config"
	"github.com/medisched/medisched/internal/domain/doctor"
	"github.com/medisched/medisched/internal/domain/medicalrecord"
	"github.com/medisched/medisched/internal/domain/patient"
	"github.com/medisched/medisched/internal/domain/scheduling"
	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/internal/platform/db"
	"github.com/medisched/medisched/internal/platform/logging"
	"github.com/medisched/medisched/internal/platform/metrics"
	"github.com/medisched/medisched/internal/platform/middleware"
	"github.com/medisched/medisched/internal/platform/notification"
)

const (
	version         = "0.1.0"
	maxBodySize     = "1M"
	shutdownTimeout = 10 * time.Second
)

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Dev:        cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	loc, _ := cfg.Location()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	limiter, closeLimiter := newLimiter(ctx, cfg, logger)
	defer closeLimiter()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	e := newRouter(cfg, pool, limiter, m, loc, logger)

	var sweeper *scheduling.Sweeper
	if cfg.ReminderSweepEnabled {
		sweeper = newSweeper(cfg, pool, m, loc, logger)
		if err := sweeper.Start(cfg.ReminderSweepCron); err != nil {
			logger.Fatal().Err(err).Msg("failed to start reminder sweeper")
		}
		logger.Info().Str("spec", cfg.ReminderSweepCron).Msg("reminder sweeper started")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newLimiter shares buckets through Redis when REDIS_URL is set and falls
// back to per-process buckets when it is not or Redis is unreachable.
func newLimiter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (middleware.Limiter, func()) {
	rl := rateLimitConfig(cfg)
	if cfg.RedisURL == "" {
		return middleware.NewMemoryLimiter(rl), func() {}
	}
	client, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory rate limiting")
		return middleware.NewMemoryLimiter(rl), func() {}
	}
	return middleware.NewRedisLimiter(client, rl), func() { _ = client.Close() }
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		return middleware.DefaultRateLimitConfig()
	}
	return rl
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	jc := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		Skipper:  auth.AuthSkipper,
	}
	switch cfg.ResolvedAuthMode() {
	case config.AuthModeExternal:
		// Empty means discover it from the issuer.
		jc.JWKSURL = cfg.AuthJWKSURL
	default:
		jc.SigningKey = []byte(cfg.AuthSigningKey)
	}
	return jc
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jc := jwtConfig(cfg)
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		return auth.DevAuthMiddleware(jc)
	}
	return auth.JWTMiddleware(jc)
}

func newRouter(cfg *config.Config, pool *pgxpool.Pool, limiter middleware.Limiter, m *metrics.Metrics, loc *time.Location, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(authMiddleware(cfg))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg), limiter, logger))
	if cfg.RequestTimeout > 0 {
		apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	apiV1.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	apiV1.Use(auth.ResolveActor(scheduling.NewProfileResolverPG(pool)))
	apiV1.Use(middleware.Audit(logger, nil))

	registerDomains(apiV1, pool, m, loc, logger)
	return e
}

// registerDomains builds every domain service on pool and mounts its routes.
func registerDomains(api *echo.Group, pool db.Pool, m *metrics.Metrics, loc *time.Location, logger zerolog.Logger) {
	tx := db.NewTxRunner(pool)

	doctorSvc := doctor.NewService(doctor.NewSpecializationRepoPG(pool), doctor.NewDoctorRepoPG(pool), tx, logger)
	doctor.NewHandler(doctorSvc).RegisterRoutes(api)

	patientSvc := patient.NewService(patient.NewPatientRepoPG(pool), patient.NewProviderRepoPG(pool), patient.NewInsuranceRepoPG(pool), tx, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	schedSvc := scheduling.NewService(scheduling.Deps{
		Appointments: scheduling.NewAppointmentRepoPG(pool),
		Types:        scheduling.NewAppointmentTypeRepoPG(pool),
		Reminders:    scheduling.NewReminderRepoPG(pool),
		Availability: scheduling.NewAvailabilityRepoPG(pool),
		TimeOff:      scheduling.NewTimeOffRepoPG(pool),
		Directory:    scheduling.NewDirectoryPG(pool),
		Tx:           tx,
		Location:     loc,
		Logger:       logger,
		Metrics:      m,
	})
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)

	recordSvc := medicalrecord.NewService(medicalrecord.Deps{
		Records:      medicalrecord.NewRecordRepoPG(pool),
		Access:       medicalrecord.NewAccessRepoPG(pool),
		Appointments: medicalrecord.NewAppointmentReaderPG(pool),
		Tx:           tx,
		Location:     loc,
		Logger:       logger,
		Metrics:      m,
	})
	medicalrecord.NewHandler(recordSvc).RegisterRoutes(api)
}

// newNotifier delivers e-mail over SMTP when configured. SMS always goes to
// the log since no SMS gateway is wired.
func newNotifier(cfg *config.Config, logger zerolog.Logger) *notification.Dispatcher {
	logSender := notification.NewLogSender(logger)
	if !cfg.SMTPEnabled() {
		return notification.NewDispatcher(logSender, logSender)
	}
	smtp := notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	return notification.NewDispatcher(smtp, logSender)
}

func newSweeper(cfg *config.Config, pool *pgxpool.Pool, m *metrics.Metrics, loc *time.Location, logger zerolog.Logger) *scheduling.Sweeper {
	return scheduling.NewSweeper(scheduling.SweeperConfig{
		Reminders:    scheduling.NewReminderRepoPG(pool),
		Appointments: scheduling.NewAppointmentRepoPG(pool),
		Directory:    scheduling.NewDirectoryPG(pool),
		Notifier:     newNotifier(cfg, logger),
		Tenants:      db.NewTenantConns(pool),
		Location:     loc,
		Logger:       logger,
		Metrics:      m,
	})
}
