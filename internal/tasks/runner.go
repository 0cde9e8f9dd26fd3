// Package tasks runs listing fetches in the background. A fetch is marked
// pending before it starts, settled when it finishes, and its request URI is
// published so a subscriber can re-read the listing.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/logging"
	"github.com/dl-alexandre/ecmdocs/internal/metrics"
	"github.com/dl-alexandre/ecmdocs/internal/pending"
	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/google/uuid"
)

// ErrDeferred is returned by a fetch that cannot finish yet. The scope stays
// pending and nothing is published until Resume or Settle is called.
var ErrDeferred = errors.New("fetch deferred")

// Publisher receives change notifications
type Publisher interface {
	Publish(uri string)
}

// FetchFunc performs remote I/O and fills the cache as a side effect
type FetchFunc func(ctx context.Context) error

// Task identifies one background fetch
type Task struct {
	URI     string
	Key     string
	Routine string
}

func (t Task) key() string {
	if t.Key != "" {
		return t.Key
	}
	return t.URI
}

// Options configures a Runner
type Options struct {
	// Timeout bounds a single run of a fetch; zero means no limit
	Timeout time.Duration
	Logger  logging.Logger
}

// Runner executes fetches off the calling goroutine
type Runner struct {
	tracker  *pending.Tracker
	notifier Publisher
	logger   logging.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewRunner creates a runner settling into tracker and publishing to notifier
func NewRunner(tracker *pending.Tracker, notifier Publisher, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Runner{
		tracker:  tracker,
		notifier: notifier,
		logger:   logger,
		timeout:  opts.Timeout,
	}
}

// Start marks the task's scope pending and runs fetch in a new goroutine.
// It returns false without running anything when the scope is already
// pending or settled.
func (r *Runner) Start(task Task, fetch FetchFunc) bool {
	if !r.tracker.Begin(task.key()) {
		return false
	}
	metrics.RecordTaskStarted(task.Routine)
	r.launch(task, fetch)
	return true
}

// Resume runs fetch again for a task that returned ErrDeferred
func (r *Runner) Resume(task Task, fetch FetchFunc) {
	if r.tracker.Status(task.key()) != pending.Pending {
		r.logger.Warn("Resume ignored, scope is not pending",
			logging.F("requestUri", task.URI),
			logging.F("routine", task.Routine),
		)
		return
	}
	metrics.RecordTaskResumed()
	r.launch(task, fetch)
}

// Settle ends a deferred task with err without running it again
func (r *Runner) Settle(task Task, err error) {
	if !r.tracker.End(task.key(), err) {
		return
	}
	// the deferred run already left the in-flight gauge
	metrics.RecordTaskResumed()
	metrics.RecordTaskSettled(task.Routine, err, 0)
	r.logger.Info("Background fetch settled without running",
		logging.F("requestUri", task.URI),
		logging.F("routine", task.Routine),
		logging.F("error", errString(err)),
	)
	r.notifier.Publish(task.URI)
}

func (r *Runner) launch(task Task, fetch FetchFunc) {
	traceID := uuid.New().String()
	logger := r.logger.WithTraceID(traceID)
	logger.Debug("Background fetch starting",
		logging.F("requestUri", task.URI),
		logging.F("scope", task.key()),
		logging.F("routine", task.Routine),
	)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		start := time.Now()
		ctx := logging.ContextWithTraceID(context.Background(), traceID)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		err := run(ctx, fetch)
		duration := time.Since(start)

		if errors.Is(err, ErrDeferred) {
			metrics.RecordTaskDeferred(task.Routine)
			logger.Info("Background fetch deferred",
				logging.F("requestUri", task.URI),
				logging.F("routine", task.Routine),
				logging.F("duration_ms", duration.Milliseconds()),
			)
			return
		}

		r.tracker.End(task.key(), err)
		metrics.RecordTaskSettled(task.Routine, err, duration)
		if err != nil {
			logger.Warn("Background fetch failed",
				logging.F("requestUri", task.URI),
				logging.F("routine", task.Routine),
				logging.F("duration_ms", duration.Milliseconds()),
				logging.F("error", err.Error()),
			)
		} else {
			logger.Info("Background fetch completed",
				logging.F("requestUri", task.URI),
				logging.F("routine", task.Routine),
				logging.F("duration_ms", duration.Milliseconds()),
			)
		}
		r.notifier.Publish(task.URI)
	}()
}

// run converts a panicking fetch into an error so the scope still settles
func run(ctx context.Context, fetch FetchFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = utils.NewAppError(utils.NewCLIError(utils.ErrCodeInternalError,
				fmt.Sprintf("fetch panicked: %v", p)).Build())
		}
	}()
	return fetch(ctx)
}

// Wait blocks until every launched fetch has returned
func (r *Runner) Wait() {
	r.wg.Wait()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
