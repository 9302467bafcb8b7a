package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	kerrors "github.com/adverant/nexus/fileprocess-worker/internal/errors"
	"github.com/adverant/nexus/fileprocess-worker/internal/logging"
	"github.com/adverant/nexus/fileprocess-worker/internal/pipeline"
	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// extractTaskType is the asynq task type this worker pool registers,
// adapted from the teacher's "process-document" task (internal/queue/consumer.go).
const extractTaskType = "extract-document"

// TaskPayload is the asynq task payload: a single extraction request. It
// deliberately does not carry an ExtractionConfig — hooks and validators are
// Go closures and cannot cross an asynq payload boundary, so every enqueued
// task runs under the pool's own DefaultConfig (set at construction time).
type TaskPayload struct {
	Path string `json:"path,omitempty"`
	Data []byte `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`
}

// AsyncWorkerPool is the asynq-backed async facade over the orchestrator,
// the same client/server/mux shape as the teacher's Consumer
// (internal/queue/consumer.go), generalized from a fixed document-processing
// job into a generic single-item extraction task.
type AsyncWorkerPool struct {
	client      *asynq.Client
	server      *asynq.Server
	mux         *asynq.ServeMux
	extractor   Extractor
	log         *logging.Logger
	timeout     time.Duration
	concurrency int
	defaultCfg  value.ExtractionConfig
}

// WorkerPoolConfig configures an AsyncWorkerPool.
type WorkerPoolConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	ProcessingTimeout time.Duration // default 5 minutes, mirrors the teacher's default
	DefaultConfig     value.ExtractionConfig
}

// NewAsyncWorkerPool parses the Redis URL and wires an asynq client/server
// pair around extractor, the same construction sequence as
// queue.NewConsumer.
func NewAsyncWorkerPool(cfg WorkerPoolConfig, extractor Extractor, log *logging.Logger) (*AsyncWorkerPool, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "extract"
	}
	if cfg.ProcessingTimeout == 0 {
		cfg.ProcessingTimeout = 5 * time.Minute
	}
	if log == nil {
		log = logging.NewLogger("batch.worker")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.QueueName: 10,
			"default":     1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(5*(1<<uint(n))) * time.Second
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task processing error", "type", task.Type(), "err", err)
		}),
	})

	mux := asynq.NewServeMux()
	pool := &AsyncWorkerPool{
		client:      client,
		server:      server,
		mux:         mux,
		extractor:   extractor,
		log:         log,
		timeout:     cfg.ProcessingTimeout,
		concurrency: cfg.Concurrency,
		defaultCfg:  cfg.DefaultConfig,
	}
	mux.HandleFunc(extractTaskType, pool.handleExtract)
	return pool, nil
}

// Enqueue submits a single extraction task, returning immediately; the
// result is not observable through this call (asynq is fire-and-forget by
// design, matching the teacher's job-queue model) — callers that need the
// result use the in-process Runner instead.
func (p *AsyncWorkerPool) Enqueue(ctx context.Context, payload TaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return kerrors.NewSystemError("marshal task payload", err)
	}
	_, err = p.client.EnqueueContext(ctx, asynq.NewTask(extractTaskType, body))
	if err != nil {
		return kerrors.NewSystemError("enqueue extract task", err)
	}
	return nil
}

// Start runs the asynq server in a background goroutine (mirrors
// queue.Consumer.Start).
func (p *AsyncWorkerPool) Start() error {
	p.log.Info("starting async extraction worker pool", "concurrency", p.concurrency)
	go func() {
		if err := p.server.Run(p.mux); err != nil {
			p.log.Error("async worker pool stopped with error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server and closes the client (mirrors
// queue.Consumer.Stop).
func (p *AsyncWorkerPool) Stop() error {
	p.log.Info("stopping async extraction worker pool")
	p.server.Shutdown()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close asynq client: %w", err)
	}
	return nil
}

func (p *AsyncWorkerPool) handleExtract(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %w", err)
	}

	processCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	in := pipeline.Input{Path: payload.Path, Bytes: payload.Data, MIME: payload.MIME}
	_, err := p.extractor.Extract(processCtx, in, p.defaultCfg)
	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			timeoutErr := kerrors.NewTimeoutError(extractTaskType, p.timeout, err)
			return fmt.Errorf("extraction timed out: %w", timeoutErr)
		}
		return fmt.Errorf("extraction failed: %w", err)
	}
	return nil
}
