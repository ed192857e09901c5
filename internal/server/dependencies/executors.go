package dependencies

import (
	"context"
	"reflect"

	"github.com/zhenzou/executors"

	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
)

type ErrorHandler struct{}

func (h *ErrorHandler) CatchError(runnable executors.Runnable, err error) {
	log.Error(context.Background(), "scheduled job failed", log.Cause(err))
}

type RejectionHandler struct{}

func (h *RejectionHandler) RejectExecution(runnable executors.Runnable, e executors.Executor) error {
	log.Warn(context.Background(), "scheduled job rejected", log.String("runnable", reflect.ValueOf(runnable).String()))
	return nil
}

// NewExecutors runs the background jobs. Matching runs are rare and heavy, so
// the pool is small.
func NewExecutors() executors.ScheduledExecutor {
	return executors.NewPoolScheduleExecutor(
		executors.WithMaxConcurrent(4),
		executors.WithMaxBlockingTasks(16),
		executors.WithErrorHandler(&ErrorHandler{}),
		executors.WithRejectionHandler(&RejectionHandler{}),
	)
}
