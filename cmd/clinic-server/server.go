package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
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

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/assessment"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/campaign"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/metrics"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/reporting"
	"github.com/clinic/clinic/internal/platform/websocket"
)

const version = "0.1.0"

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	rdb, err := newRedis(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()
	logger.Info().Msg("connected to redis")

	e := newServer(cfg, logger, prometheus.DefaultRegisterer)
	hub := websocket.NewHub(logger, cfg.CORSOrigins)
	registerRoutes(e, cfg, logger, pool, rdb, hub, loc)

	go func() {
		if err := campaign.RelayProgress(ctx, rdb, hub, logger); err != nil {
			logger.Error().Err(err).Msg("campaign progress relay stopped")
		}
	}()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with the global middleware stack and
// the public endpoints that need no database.
func newServer(cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.NewHTTPMetrics(reg).Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", "X-Clinic-ID"},
		ExposeHeaders: []string{"Link", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if g, ok := reg.(prometheus.Gatherer); ok {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware(cfg.DefaultClinic)
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	})
}

func registerRoutes(e *echo.Echo, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool,
	rdb *redis.Client, hub *websocket.Hub, loc *time.Location) {
	e.GET("/health/db", db.HealthHandler(pool, db.DependencyCheck{
		Name: "redis",
		Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}))

	authMW := authMiddleware(cfg)
	clinicMW := db.ClinicMiddleware(pool, cfg.DefaultClinic)

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	auditMetrics := metrics.NewAuditMetrics(nil)
	auditMW := middleware.Audit(logger, middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		auditMetrics.ObserveWrite(entry.Resource, entry.Action, entry.Forced)
		return nil
	}))

	apiV1 := e.Group("/api/v1", authMW, middleware.RateLimit(rateLimitCfg), clinicMW, auditMW)
	ws := e.Group("/ws", authMW, clinicMW)

	// Billing
	billingSvc := billing.NewService(
		billing.NewServiceRepoPG(pool),
		billing.NewPriceTableRepoPG(pool),
		billing.NewPaymentMethodRepoPG(pool),
		logger,
	)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	// Scheduling
	schedulingSvc := scheduling.NewService(
		scheduling.NewAppointmentRepoPG(pool),
		scheduling.NewAvailabilityRepoPG(pool),
		scheduling.NewHolidayRepoPG(pool),
		billingSvc,
		auth.NewPasswordVerifier(auth.NewPGCredentialStore(pool)),
		scheduling.Options{
			Location:       loc,
			MaxOccurrences: cfg.RecurrenceMaxOccurrences,
			Logger:         logger,
			Metrics:        metrics.NewBookingMetrics(nil),
		},
	)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)

	// Patients
	patientSvc := patient.NewService(patient.NewRepoPG(pool), logger)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Campaigns
	campaignSvc := campaign.NewService(
		campaign.NewRepoPG(pool),
		campaign.NewRedisQueue(rdb, cfg.DefaultClinic),
		patientSvc,
		logger,
	)
	campaignHandler := campaign.NewHandler(campaignSvc, hub, cfg.CampaignPollInterval, cfg.CampaignMaxWait)
	campaignHandler.RegisterRoutes(apiV1)
	campaignHandler.RegisterStreamRoutes(ws)

	// Assessments
	assessmentSvc := assessment.NewService(
		assessment.NewTemplateRepoPG(pool),
		assessment.NewResponseRepoPG(pool),
		logger,
	)
	assessment.NewHandler(assessmentSvc).RegisterRoutes(apiV1)

	// Reports
	reporting.NewHandler(reporting.NewReporter(pool, loc)).RegisterRoutes(apiV1)
}

func printMigrationStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
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
