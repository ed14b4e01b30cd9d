package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/plumbline/plumbline/pkg/audit"
	"github.com/plumbline/plumbline/pkg/config"
	"github.com/plumbline/plumbline/pkg/observability"
	"github.com/plumbline/plumbline/pkg/orgs"
	"github.com/plumbline/plumbline/pkg/session"
	"github.com/plumbline/plumbline/pkg/storage/postgres"
)

var (
	sweepSchedule  = flag.String("sweep-schedule", "30 * * * *", "Cron schedule for the expired invitation sweep")
	rollupSchedule = flag.String("rollup-schedule", "5 0 * * *", "Cron schedule for the daily usage rollup")
	runOnce        = flag.Bool("run-once", false, "Run one sweep and rollup, then exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer cm.Close()

	redisClient, err := session.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisClient.Close()
	sessions := session.NewStore(redisClient, cfg.Session)

	orgService := orgs.NewPostgresService(cm.Primary(), sessions)
	aggregator := audit.NewUsageAggregator(cm.Primary(), sessions)

	sweep := func() {
		deleted, err := orgService.DeleteExpiredInvitations(context.Background())
		if err != nil {
			logger.WithError(err).Error("Invitation sweep failed")
			return
		}
		if deleted > 0 {
			logger.WithField("deleted", deleted).Info("Removed expired invitations")
		}
	}

	rollup := func() {
		snapshot, err := aggregator.Rollup(context.Background(), time.Now().UTC())
		if err != nil {
			logger.WithError(err).Error("Usage rollup failed")
			return
		}
		logger.WithFields(map[string]interface{}{
			"organizations": snapshot.Organizations,
			"users":         snapshot.Users,
			"memberships":   snapshot.Memberships,
		}).Info("Recorded usage rollup")
	}

	if *runOnce {
		sweep()
		rollup()
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(*sweepSchedule, sweep); err != nil {
		logger.WithError(err).Errorf("Invalid sweep schedule %q", *sweepSchedule)
		os.Exit(1)
	}
	if _, err := c.AddFunc(*rollupSchedule, rollup); err != nil {
		logger.WithError(err).Errorf("Invalid rollup schedule %q", *rollupSchedule)
		os.Exit(1)
	}
	c.Start()
	logger.Infof("Janitor started, sweep schedule %q, rollup schedule %q", *sweepSchedule, *rollupSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down janitor")
	<-c.Stop().Done()
}
