package biz

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
	"github.com/zhenzou/executors"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/matching"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
	"github.com/charm-corp/ai-value-matching-sub001/internal/tracing"
)

const matchingJobReason = "matching-job"

type MatchingConfig struct {
	Enabled bool   `conf:"enabled" yaml:"enabled" json:"enabled"`
	Cron    string `conf:"cron" yaml:"cron" json:"cron"`
	// Threshold is the lowest score that creates a match pair.
	Threshold   float64 `conf:"threshold" yaml:"threshold" json:"threshold"`
	Concurrency int     `conf:"concurrency" yaml:"concurrency" json:"concurrency"`
}

// Scorer rates the compatibility of two profiles from 0 to 100.
type Scorer interface {
	Score(a, b objects.Document) (score float64, breakdown map[string]float64)
}

// ValueOverlapScorer scores the overlap of the profiles' value tags.
type ValueOverlapScorer struct{}

func (ValueOverlapScorer) Score(a, b objects.Document) (float64, map[string]float64) {
	left := lo.Uniq(tags(a))
	right := lo.Uniq(tags(b))

	union := len(lo.Union(left, right))
	if union == 0 {
		return 0, map[string]float64{"values": 0}
	}

	score := 100 * float64(len(lo.Intersect(left, right))) / float64(union)

	return score, map[string]float64{"values": score}
}

func tags(doc objects.Document) []string {
	v, _ := doc.Get(matching.FieldValues)

	items, ok := v.([]any)
	if !ok {
		if strs, ok := v.([]string); ok {
			return strs
		}

		return nil
	}

	return lo.FilterMap(items, func(item any, _ int) (string, bool) {
		s, ok := item.(string)
		return s, ok && s != ""
	})
}

type MatchingJobParams struct {
	fx.In

	Config   MatchingConfig
	Service  *Service
	Executor executors.ScheduledExecutor
	Scorer   Scorer `optional:"true"`
}

// MatchingJob pairs compatible profiles in the background. It is the one
// component that acts as the system principal.
type MatchingJob struct {
	config   MatchingConfig
	service  *Service
	executor executors.ScheduledExecutor
	scorer   Scorer
}

func NewMatchingJob(params MatchingJobParams) *MatchingJob {
	scorer := params.Scorer
	if scorer == nil {
		scorer = ValueOverlapScorer{}
	}

	return &MatchingJob{
		config:   params.Config,
		service:  params.Service,
		executor: params.Executor,
		scorer:   scorer,
	}
}

// Start schedules the job on its cron expression.
func (job *MatchingJob) Start(ctx context.Context) error {
	if !job.config.Enabled {
		return nil
	}

	_, err := job.executor.ScheduleFuncAtCronRate(
		job.run,
		executors.CRONRule{Expr: job.config.Cron},
	)
	if err != nil {
		return fmt.Errorf("schedule matching job: %w", err)
	}

	log.Info(ctx, "matching job scheduled", log.String("cron", job.config.Cron))

	return nil
}

func (job *MatchingJob) run(ctx context.Context) {
	ctx = tracing.StartRun(ctx)

	created, err := job.Run(ctx)
	if err != nil {
		log.Error(ctx, "matching job failed", log.Cause(err))
		return
	}

	log.Info(ctx, "matching job finished", log.Int("created", created))
}

type candidate struct {
	a, b      objects.ID
	score     float64
	breakdown map[string]float64
}

func pairKey(a, b objects.ID) string {
	ids := []string{a.String(), b.String()}
	slices.Sort(ids)

	return ids[0] + "|" + ids[1]
}

// Run scores every pair of active profiles without a match pair and records
// the pairs above the threshold. It returns the number of pairs created.
func (job *MatchingJob) Run(ctx context.Context) (int, error) {
	return ExecuteAsSystem(ctx, matchingJobReason, func(ctx context.Context, system authz.Principal) (int, error) {
		profiles, err := job.service.Find(ctx, system, matching.TypeProfile, query.And(
			query.Ne(matching.FieldActive, false),
			query.Ne(matching.FieldDeleted, true),
		))
		if err != nil {
			return 0, err
		}

		pairs, err := job.service.Find(ctx, system, matching.TypeMatchPair, query.All())
		if err != nil {
			return 0, err
		}

		existing := lo.SliceToMap(pairs, func(pair objects.Document) (string, struct{}) {
			a, _ := pair.IDField(matching.FieldUserA)
			b, _ := pair.IDField(matching.FieldUserB)

			return pairKey(a, b), struct{}{}
		})

		found, err := job.score(ctx, profiles, existing)
		if err != nil {
			return 0, err
		}

		created := 0

		for _, c := range found {
			if err := job.record(ctx, system, c); err != nil {
				if IsConflict(err) {
					continue
				}

				return created, err
			}

			created++
		}

		return created, nil
	})
}

// score rates the candidate pairs concurrently.
func (job *MatchingJob) score(ctx context.Context, profiles []objects.Document, existing map[string]struct{}) ([]candidate, error) {
	var (
		mu    sync.Mutex
		found []candidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(job.config.Concurrency, 1))

	for i, a := range profiles {
		for _, b := range profiles[i+1:] {
			userA, okA := a.IDField(matching.FieldUserID)
			userB, okB := b.IDField(matching.FieldUserID)

			if !okA || !okB || userA == userB {
				continue
			}

			if _, ok := existing[pairKey(userA, userB)]; ok {
				continue
			}

			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}

				score, breakdown := job.scorer.Score(a, b)
				if score < job.config.Threshold {
					return nil
				}

				mu.Lock()
				found = append(found, candidate{a: userA, b: userB, score: score, breakdown: breakdown})
				mu.Unlock()

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Best pairs first, ties in a stable order.
	slices.SortFunc(found, func(x, y candidate) int {
		return cmp.Or(
			cmp.Compare(y.score, x.score),
			cmp.Compare(pairKey(x.a, x.b), pairKey(y.a, y.b)),
		)
	})

	return found, nil
}

// record creates the match pair and bumps both match counters in one
// transaction.
func (job *MatchingJob) record(ctx context.Context, system authz.Principal, c candidate) error {
	return job.service.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := job.service.Create(ctx, system, matching.TypeMatchPair, objects.Document{
			matching.FieldUserA:     c.a,
			matching.FieldUserB:     c.b,
			matching.FieldStatus:    matching.StatusPending,
			matching.FieldScore:     c.score,
			matching.FieldBreakdown: c.breakdown,
		})
		if err != nil {
			return err
		}

		for _, user := range []objects.ID{c.a, c.b} {
			if err := job.bumpMatchCount(ctx, system, user); err != nil {
				return err
			}
		}

		return nil
	})
}

func (job *MatchingJob) bumpMatchCount(ctx context.Context, system authz.Principal, user objects.ID) error {
	profiles, err := job.service.Find(ctx, system, matching.TypeProfile, query.And(
		query.Eq(matching.FieldUserID, user),
		query.Ne(matching.FieldDeleted, true),
	), docstore.WithLimit(1))
	if err != nil {
		return err
	}

	if len(profiles) == 0 {
		return fmt.Errorf("profile of %s: %w", user, ErrNotFound)
	}

	profile := profiles[0]
	count, _ := profile.Float(matching.FieldMatchCount)

	_, err = job.service.Update(ctx, system, matching.TypeProfile, profile.ID(), objects.Document{
		matching.FieldMatchCount: count + 1,
	})

	return err
}
