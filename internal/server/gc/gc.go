// Package gc removes expired data: soft-deleted documents past their
// retention and match pairs nobody answered in time.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/matching"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/biz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/tracing"
)

const cleanupReason = "gc-cleanup"

// defaultBatchSize bounds the documents removed per transaction.
var defaultBatchSize = 500

type Config struct {
	CRON string `json:"cron" yaml:"cron" conf:"cron"`
	// Retention is how long soft-deleted documents are kept.
	Retention time.Duration `json:"retention" yaml:"retention" conf:"retention"`
	// PendingTTL expires pending match pairs older than this. Zero disables it.
	PendingTTL time.Duration `json:"pending_ttl" yaml:"pending_ttl" conf:"pending_ttl"`
	BatchSize  int           `json:"batch_size" yaml:"batch_size" conf:"batch_size"`
}

type Worker struct {
	Service    *biz.Service
	Executor   executors.ScheduledExecutor
	Config     Config
	Clock      rls.Clock
	CancelFunc context.CancelFunc
}

type Params struct {
	fx.In

	Config   Config
	Service  *biz.Service
	Executor executors.ScheduledExecutor
	Clock    rls.Clock `optional:"true"`
}

func NewWorker(params Params) *Worker {
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Worker{
		Service:  params.Service,
		Executor: params.Executor,
		Config:   params.Config,
		Clock:    clock,
	}
}

func (w *Worker) batchSize() int {
	if w.Config.BatchSize > 0 {
		return w.Config.BatchSize
	}

	return defaultBatchSize
}

// deleteInBatches calls deleteFunc until it removes nothing.
func (w *Worker) deleteInBatches(ctx context.Context, deleteFunc func() (int, error)) (int, error) {
	totalDeleted := 0

	for {
		deleted, err := deleteFunc()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to delete batch: %w", err)
		}

		if deleted == 0 {
			break
		}

		totalDeleted += deleted
		log.Debug(ctx, "deleted batch of documents", log.Int("batch_size", deleted), log.Int("total_deleted", totalDeleted))

		if deleted < w.batchSize() {
			break
		}
	}

	return totalDeleted, nil
}

func (w *Worker) Start(ctx context.Context) error {
	if w.Config.CRON == "" {
		log.Info(ctx, "gc worker disabled")
		return nil
	}

	cancelFunc, err := w.Executor.ScheduleFuncAtCronRate(
		w.runCleanup,
		executors.CRONRule{Expr: w.Config.CRON},
	)
	if err != nil {
		return err
	}

	w.CancelFunc = cancelFunc

	log.Info(ctx, "gc worker started", log.String("cron", w.Config.CRON), log.Duration("retention", w.Config.Retention))

	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	if w.CancelFunc != nil {
		w.CancelFunc()
	}

	return nil
}

func (w *Worker) runCleanup(ctx context.Context) {
	ctx = tracing.StartRun(ctx)

	if _, err := w.Cleanup(ctx); err != nil {
		log.Error(ctx, "gc cleanup failed", log.Cause(err))
	}
}

// Result reports what one cleanup pass removed or changed.
type Result struct {
	Purged  map[rls.ResourceType]int
	Expired int
}

// Cleanup runs one pass as the system principal.
func (w *Worker) Cleanup(ctx context.Context) (Result, error) {
	return biz.ExecuteAsSystem(ctx, cleanupReason, func(ctx context.Context, system authz.Principal) (Result, error) {
		result := Result{Purged: map[rls.ResourceType]int{}}
		now := w.Clock()

		if w.Config.Retention > 0 {
			cutoff := now.Add(-w.Config.Retention)

			for _, rt := range w.Service.Catalogue().Types() {
				purged, err := w.deleteInBatches(ctx, func() (int, error) {
					return w.Service.Purge(ctx, system, rt, cutoff, w.batchSize())
				})
				if err != nil {
					log.Error(ctx, "failed to purge documents", log.String("resource", rt.String()), log.Cause(err))
					return result, err
				}

				if purged > 0 {
					result.Purged[rt] = purged
					log.Info(ctx, "purged soft-deleted documents", log.String("resource", rt.String()), log.Int("count", purged))
				}
			}
		}

		if w.Config.PendingTTL > 0 {
			expired, err := w.expirePendingPairs(ctx, system, now.Add(-w.Config.PendingTTL))
			if err != nil {
				return result, err
			}

			result.Expired = expired
		}

		return result, nil
	})
}

// expirePendingPairs marks pending match pairs created before cutoff as expired.
func (w *Worker) expirePendingPairs(ctx context.Context, system authz.Principal, cutoff time.Time) (int, error) {
	pairs, err := w.Service.Find(ctx, system, matching.TypeMatchPair, query.And(
		query.Eq(matching.FieldStatus, matching.StatusPending),
		query.Lte(objects.FieldCreatedAt, cutoff),
	))
	if err != nil {
		return 0, err
	}

	expired := 0

	for _, pair := range pairs {
		_, err := w.Service.Update(ctx, system, matching.TypeMatchPair, pair.ID(), objects.Document{
			matching.FieldStatus: matching.StatusExpired,
		})
		if err != nil {
			if biz.IsNotFound(err) {
				continue
			}

			return expired, err
		}

		expired++
	}

	if expired > 0 {
		log.Info(ctx, "expired pending match pairs", log.Int("count", expired))
	}

	return expired, nil
}
