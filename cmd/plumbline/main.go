package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/plumbline/plumbline/pkg/api"
	"github.com/plumbline/plumbline/pkg/audit"
	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/authz"
	"github.com/plumbline/plumbline/pkg/billing"
	"github.com/plumbline/plumbline/pkg/config"
	"github.com/plumbline/plumbline/pkg/middleware"
	"github.com/plumbline/plumbline/pkg/observability"
	"github.com/plumbline/plumbline/pkg/orgs"
	"github.com/plumbline/plumbline/pkg/projects"
	"github.com/plumbline/plumbline/pkg/session"
	"github.com/plumbline/plumbline/pkg/storage/postgres"
	"github.com/plumbline/plumbline/pkg/username"
)

const orgCacheTTL = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting Plumbline API server")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	// Database
	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		return err
	}
	defer cm.Close()

	if err := postgres.RunMigrations(ctx, cm.Primary()); err != nil {
		return err
	}
	logger.Info("Database migrations applied")

	// Redis and sessions
	redisClient, err := session.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	sessions := session.NewStore(redisClient, cfg.Session)

	// Metrics
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	// Tracing
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}

	// Domain services
	users := auth.NewUserStore(cm.Primary(), auth.NewPasswordHasher(0))
	orgService := orgs.NewPostgresService(cm.Primary(), sessions)
	orgService.SetReadPool(cm)
	billingService := billing.NewPostgresService(cm.Primary())
	limits := orgs.NewLimitPolicy(orgService, billingService, logger)
	orgService.SetLimitPolicy(limits)
	gate := authz.NewMembershipGate(orgService, metrics)
	usernames := username.NewAllocator(username.NewPostgresStore(cm.Primary()))
	projectService := projects.NewPostgresService(cm.Primary())
	projectService.SetReadPool(cm)
	auditor := audit.NewDBRecorder(cm.Primary(), logger)

	// HTTP layer
	sessionMW := middleware.NewSessionMiddleware(sessions, users, logger)
	orgMW := middleware.NewOrgContextMiddleware(orgService, orgCacheTTL)
	var rateLimit *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimit = middleware.NewRateLimitMiddleware(redisClient, cfg.RateLimit, logger)
	}

	server := api.NewServer(api.Deps{
		Logger:        logger,
		Sessions:      sessions,
		Users:         users,
		Orgs:          orgService,
		Limits:        limits,
		Gate:          gate,
		Usernames:     usernames,
		Projects:      projectService,
		Auditor:       auditor,
		InvitationTTL: cfg.Invitations.TTL,
		SessionMW:     sessionMW,
		OrgMW:         orgMW,
		RateLimit:     rateLimit,
	})

	var handler http.Handler = server
	if metrics != nil {
		handler = metrics.MetricsMiddleware(handler)
	}
	if providers != nil {
		handler = otelhttp.NewHandler(handler, "plumbline.api")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for k8s probes
	healthChecker := observability.NewHealthChecker(cm.Primary(), redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	if metrics != nil {
		go reportPoolStats(ctx, cm, sessions, metrics)
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(sm.WaitForShutdown)

	return g.Wait()
}

// reportPoolStats refreshes connection pool and session gauges
func reportPoolStats(ctx context.Context, cm *postgres.ConnectionManager, sessions *session.Store, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.ReportPoolStats(metrics)
			if count, err := sessions.CountActive(ctx); err == nil {
				metrics.ActiveSessionsTotal.Set(float64(count))
			}
		}
	}
}
