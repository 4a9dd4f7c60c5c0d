package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/hostbackup/internal/activity"
	"github.com/edvin/hostbackup/internal/app"
	"github.com/edvin/hostbackup/internal/config"
	"github.com/edvin/hostbackup/internal/db"
	"github.com/edvin/hostbackup/internal/logging"
	"github.com/edvin/hostbackup/internal/metrics"
	"github.com/edvin/hostbackup/internal/store"
	"github.com/edvin/hostbackup/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(cfg.DatabaseURL, ""); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate log store")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to log store")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterPgxPoolMetrics(reg, pool)

	svc, err := app.NewServices(cfg, logger, store.NewPostgres(pool), app.Options{
		Metrics: metrics.NewBackup(reg),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up backup services")
	}
	logger.Info().Int("projects", len(svc.Projects.IDs())).Msg("loaded project configuration")

	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	dialOpts := temporalclient.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	w := worker.New(tc, cfg.TemporalTaskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ActivityErrorInterceptor{}},
	})

	w.RegisterActivity(activity.NewBackup(svc.Orchestrator, svc.Coordinator, svc.Scheduler, svc.Projects))

	w.RegisterWorkflow(workflow.ProjectBackupWorkflow)
	w.RegisterWorkflow(workflow.BackupAllProjectsWorkflow)
	w.RegisterWorkflow(workflow.RestoreWorkflow)
	w.RegisterWorkflow(workflow.QuarterlyComplianceWorkflow)

	registerCronSchedules(ctx, tc, cfg, logger)

	metricsServer := metrics.NewServer(cfg.MetricsListenAddr, reg)
	go func() {
		logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	if err := w.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start worker")
	}
	logger.Info().Str("task_queue", cfg.TemporalTaskQueue).Msg("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)
	cancel()
}

type cronSchedule struct {
	id       string
	cron     string
	workflow interface{}
	args     []interface{}
}

func registerCronSchedules(ctx context.Context, tc temporalclient.Client, cfg *config.Config, logger zerolog.Logger) {
	schedules := []cronSchedule{
		{
			id:       "backup-all-projects-cron",
			cron:     cfg.BackupCron,
			workflow: workflow.BackupAllProjectsWorkflow,
		},
		{
			id:       "quarterly-compliance-cron",
			cron:     cfg.ComplianceCron,
			workflow: workflow.QuarterlyComplianceWorkflow,
			args:     []interface{}{""},
		},
	}

	scheduleClient := tc.ScheduleClient()

	for _, s := range schedules {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				Args:      s.args,
				TaskQueue: cfg.TemporalTaskQueue,
			},
		})
		switch {
		case err == nil:
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		case strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already registered"):
			logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
		default:
			logger.Fatal().Err(err).Str("id", s.id).Msg("failed to create cron schedule")
		}
	}
}
