package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/lineage-engine/internal/lineage"
	"github.com/feichai0017/lineage-engine/pkg/logger"
	"github.com/feichai0017/lineage-engine/pkg/queue"
)

type LineageWorker struct {
	BaseWorker
	service lineage.LineageManager
}

func NewLineageWorker(cfg *Config, service lineage.LineageManager, logger logger.Logger) (*LineageWorker, error) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &LineageWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   logger,
			stopChan: make(chan struct{}),
		},
		service: service,
	}

	w.registerHandlers()
	return w, nil
}

func (w *LineageWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeLineageDetect, w.handleLineageDetect)
}

func (w *LineageWorker) handleLineageDetect(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %w", err)
	}

	w.logger.Info("Processing detection task",
		logger.String("taskId", task.ID),
		logger.String("documentId", task.DocumentID),
	)

	if task.ID == "" || task.DocumentID == "" {
		w.logger.Error("Invalid task data",
			logger.String("taskId", task.ID),
			logger.String("documentId", task.DocumentID),
		)
		return fmt.Errorf("invalid task data: missing required fields")
	}

	return w.service.HandleDetectTask(ctx, &task)
}

func (w *LineageWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}
