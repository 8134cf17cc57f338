package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/lineage-engine/config"
	"github.com/feichai0017/lineage-engine/internal/lineage"
	"github.com/feichai0017/lineage-engine/pkg/logger"
	"github.com/feichai0017/lineage-engine/pkg/worker"
)

func main() {
	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	lineageService, err := lineage.GetService(log)
	if err != nil {
		log.Error("Failed to create lineage service", logger.Error(err))
		os.Exit(1)
	}

	engineCfg := config.GetEngineConfig()
	redisCfg := config.GetRedisConfig()
	workerCfg := &worker.Config{
		RedisAddr:   redisCfg.Addr,
		RedisDB:     redisCfg.DB,
		Concurrency: engineCfg.Worker.Concurrency,
		Queues:      engineCfg.Worker.Queues,
	}

	lineageWorker, err := worker.NewLineageWorker(workerCfg, lineageService, log)
	if err != nil {
		log.Error("Failed to create lineage worker", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := lineageWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	lineageWorker.Stop()
	log.Info("Worker stopped")
}
