// Package executor runs task records to completion. It owns the retry
// policy, the watchdog timeout, cancellation of in-flight work, and every
// terminal status transition for tasks it executes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fentz26/warble/internal/cache"
	"github.com/fentz26/warble/internal/metrics"
	"github.com/fentz26/warble/internal/models"
	"github.com/fentz26/warble/internal/store"
	"github.com/fentz26/warble/internal/twitter"
	"github.com/fentz26/warble/internal/workflow"
)

// errMissingParam marks request parameters that can never succeed. Wrapped
// errors short-circuit the retry loop.
var errMissingParam = errors.New("missing or invalid parameter")

// errUnknownWorkflow marks a run_workflow record whose definition is not
// registered.
var errUnknownWorkflow = errors.New("unknown workflow")

// Config defines the executor configuration.
type Config struct {
	// MaxRetries is the total number of attempts per collaborator operation.
	MaxRetries int `yaml:"max_retries"`
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// WatchdogTimeout bounds the wall-clock time of a single task.
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	// MaxConcurrent bounds the number of tasks running at once.
	MaxConcurrent int64 `yaml:"max_concurrent"`
	// MaxTweetsPerRequest caps page sizes requested from the collaborator.
	MaxTweetsPerRequest int `yaml:"max_tweets_per_request"`
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:          3,
		RetryDelay:          time.Second,
		WatchdogTimeout:     5 * time.Minute,
		MaxConcurrent:       5,
		MaxTweetsPerRequest: 100,
	}
}

type handlerFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// Executor dispatches task records to their handlers.
type Executor struct {
	store    *store.Store
	registry *workflow.Registry
	client   twitter.Client
	cache    cache.Cache
	metrics  *metrics.Collector
	config   *Config
	logger   *zap.Logger

	handlers map[models.TaskType]handlerFunc

	sem *semaphore.Weighted

	// cancels maps running task IDs to their context cancel functions.
	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an executor. cfg may be nil for defaults; cache may be nil to
// disable caching; metrics may be nil to disable instrumentation.
func New(s *store.Store, reg *workflow.Registry, client twitter.Client, c cache.Cache, m *metrics.Collector, cfg *Config, logger *zap.Logger) *Executor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.NewNoop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Executor{
		store:    s,
		registry: reg,
		client:   client,
		cache:    c,
		metrics:  m,
		config:   cfg,
		logger:   logger,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		cancels:  make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.handlers = map[models.TaskType]handlerFunc{
		models.TypeSearchTweets:     e.handleSearchTweets,
		models.TypeGetUserTimeline:  e.handleGetUserTimeline,
		models.TypeCreateTweet:      e.handleCreateTweet,
		models.TypeLikeTweet:        e.handleLikeTweet,
		models.TypeRetweet:          e.handleRetweet,
		models.TypeFollowUser:       e.handleFollowUser,
		models.TypeGetTrends:        e.handleGetTrends,
		models.TypeAnalyzeSentiment: e.handleAnalyzeSentiment,
		models.TypeMonitorUser:      e.handleMonitorUser,
		models.TypeGetUserInfo:      e.handleGetUserInfo,
		models.TypeGetTweetByID:     e.handleGetTweetByID,
		models.TypeGetFollowers:     e.handleGetFollowers,
		models.TypeGetFollowing:     e.handleGetFollowing,
	}
	return e
}

// Dispatch runs a pending task asynchronously. The call returns immediately;
// the task waits for a concurrency slot if all are taken.
func (e *Executor) Dispatch(id string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			// Shutting down before the task got a slot; it stays pending.
			return
		}
		defer e.sem.Release(1)
		e.run(e.ctx, id)
	}()
}

// ExecuteSync runs a pending task on the caller's goroutine and returns the
// finished record. Caller cancellation cancels the task.
func (e *Executor) ExecuteSync(ctx context.Context, id string) (*models.TaskRecord, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	e.wg.Add(1)
	defer e.wg.Done()
	e.run(ctx, id)
	return e.store.Get(id)
}

// Cancel signals a running task to stop. Returns false if the task is not
// currently running here; the caller handles pending and terminal records.
func (e *Executor) Cancel(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, ok := e.cancels[id]
	if !ok {
		return false
	}
	cancel()
	return true
}

// ActiveCount returns the number of tasks currently executing.
func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cancels)
}

// Stop cancels all running tasks and waits for them to settle.
func (e *Executor) Stop() {
	e.cancel()
	e.wg.Wait()
	e.logger.Info("executor stopped")
}

// run drives one record through its lifecycle: running, then exactly one
// terminal state.
func (e *Executor) run(parent context.Context, id string) {
	rec, err := e.store.MarkRunning(id)
	if err != nil {
		// Cancelled while pending, or deleted. Nothing to do.
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrInvalidTransition) {
			e.logger.Error("marking task running failed", zap.String("task_id", id), zap.Error(err))
		}
		return
	}

	taskType := string(rec.Request.Type)
	e.metrics.TaskStarted()
	start := time.Now()

	taskCtx, cancel := context.WithTimeout(parent, e.config.WatchdogTimeout)
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, id)
		e.mu.Unlock()
		cancel()
	}()

	e.logger.Info("task started",
		zap.String("task_id", id),
		zap.String("type", taskType))

	result, err := e.execute(taskCtx, rec)

	switch {
	case err == nil:
		if _, uerr := e.store.MarkCompleted(id, result); uerr != nil {
			e.logger.Error("completing task failed", zap.String("task_id", id), zap.Error(uerr))
		}
		e.metrics.TaskFinished(taskType, "completed", time.Since(start))
		e.logger.Info("task completed",
			zap.String("task_id", id),
			zap.String("type", taskType),
			zap.Duration("took", time.Since(start)))

	case errors.Is(err, context.Canceled) || taskCtx.Err() == context.Canceled:
		// Cancelled via the API or daemon shutdown. The record may already
		// be cancelled; that rejection is expected.
		if _, uerr := e.store.MarkCancelled(id); uerr != nil && !errors.Is(uerr, store.ErrInvalidTransition) {
			e.logger.Error("cancelling task failed", zap.String("task_id", id), zap.Error(uerr))
		}
		e.metrics.TaskFinished(taskType, "cancelled", time.Since(start))
		e.logger.Info("task cancelled", zap.String("task_id", id))

	case errors.Is(err, context.DeadlineExceeded):
		msg := fmt.Sprintf("timed out after %s", e.config.WatchdogTimeout)
		if _, uerr := e.store.MarkFailed(id, msg); uerr != nil {
			e.logger.Error("failing task failed", zap.String("task_id", id), zap.Error(uerr))
		}
		e.metrics.TaskFinished(taskType, "failed", time.Since(start))
		e.logger.Warn("task timed out",
			zap.String("task_id", id),
			zap.Duration("watchdog", e.config.WatchdogTimeout))

	default:
		if _, uerr := e.store.MarkFailed(id, err.Error()); uerr != nil {
			e.logger.Error("failing task failed", zap.String("task_id", id), zap.Error(uerr))
		}
		e.metrics.TaskFinished(taskType, "failed", time.Since(start))
		e.logger.Warn("task failed",
			zap.String("task_id", id),
			zap.String("type", taskType),
			zap.Error(err))
	}
}

// execute resolves the record to a handler and runs it. A handler panic is
// converted into an error so the record still reaches a terminal state.
func (e *Executor) execute(ctx context.Context, rec *models.TaskRecord) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panicked: %v", r)
			e.logger.Error("handler panic",
				zap.String("task_id", rec.ID),
				zap.String("type", string(rec.Request.Type)),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	if rec.Request.Type == models.TypeRunWorkflow {
		return e.runWorkflow(ctx, rec)
	}

	handler, ok := e.handlers[rec.Request.Type]
	if !ok {
		return nil, fmt.Errorf("unknown task type: %s", rec.Request.Type)
	}
	return e.withRetry(ctx, string(rec.Request.Type), func(ctx context.Context) (map[string]any, error) {
		return handler(ctx, rec.Request.Parameters)
	})
}

// withRetry runs fn up to MaxRetries times total, pausing RetryDelay between
// attempts. Permanent failures and context ends stop the loop immediately.
func (e *Executor) withRetry(ctx context.Context, op string, fn func(context.Context) (map[string]any, error)) (map[string]any, error) {
	var lastErr error
	for attempt := 1; attempt <= e.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("operation recovered",
					zap.String("operation", op),
					zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if isPermanent(err) {
			return nil, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		e.metrics.RetryObserved()
		if attempt < e.config.MaxRetries {
			e.logger.Warn("operation failed, will retry",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", e.config.MaxRetries),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.config.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", e.config.MaxRetries, lastErr)
}

// isPermanent reports whether retrying cannot help: bad credentials, bad
// input, or a workflow that does not exist.
func isPermanent(err error) bool {
	return twitter.IsPermanent(err) ||
		errors.Is(err, errMissingParam) ||
		errors.Is(err, errUnknownWorkflow)
}
