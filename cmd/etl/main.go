package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/starlift/starlift/internal/pipeline"
	"github.com/starlift/starlift/internal/source"
	"github.com/starlift/starlift/pkg/config"
	"github.com/starlift/starlift/pkg/db"
	"github.com/starlift/starlift/pkg/enums"
	"github.com/starlift/starlift/pkg/instance"
	"github.com/starlift/starlift/pkg/logger"
	"github.com/starlift/starlift/pkg/metrics"
	"github.com/starlift/starlift/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "etl"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	batchPath := flag.String("batch", "", "path to the batch JSON file")
	flag.Parse()
	if *batchPath == "" && flag.NArg() > 0 {
		*batchPath = flag.Arg(0)
	}
	if *batchPath == "" {
		logg.Error(context.Background(), "a batch file is required: etl -batch <path>", nil)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "etl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap warehouse connection", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing warehouse connection", err)
		}
	}()

	// Redis accelerates key lookups and stores run reports; the engine
	// degrades to warehouse-only operation when it is unreachable.
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Warn(ctx, "redis unavailable, running without cache mirror: "+err.Error())
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}()
	}

	batch, err := source.LoadBatchFile(*batchPath)
	if err != nil {
		logg.Error(ctx, "failed to load batch file", err)
		os.Exit(1)
	}

	engine, err := pipeline.New(cfg, dbClient.DB(), redisClient,
		logg, metrics.NewPipelineMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		logg.Error(ctx, "failed to build pipeline", err)
		os.Exit(1)
	}

	report, runErr := engine.Run(ctx, batch)
	logReport(ctx, logg, report)
	if runErr != nil || report.Status == enums.RunStatusFailed {
		os.Exit(1)
	}
}

func logReport(ctx context.Context, logg *logger.Logger, report *pipeline.Report) {
	fields := map[string]any{
		"run_id":       report.RunID,
		"batch_id":     report.BatchID,
		"status":       report.Status.String(),
		"stage":        report.Stage.String(),
		"deduplicated": report.Deduplicated,
		"rejections":   len(report.Rejections),
		"duration":     report.FinishedAt.Sub(report.StartedAt).String(),
	}
	for entity, counts := range report.Entities {
		fields[entity.String()+"_loaded"] = counts.Loaded
		fields[entity.String()+"_rejected"] = counts.Rejected
		fields[entity.String()+"_failed"] = counts.Failed
	}
	if report.Quality != nil {
		fields["quality_score"] = fmt.Sprintf("%.3f", report.Quality.Score)
		fields["quality_findings"] = len(report.Quality.Findings)
	}
	logg.Info(logg.WithFields(ctx, fields), "run report")
}
