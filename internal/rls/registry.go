package rls

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/metrics"
)

// Clock returns the current time. Policies comparing timestamps read it
// through Now.
type Clock func() time.Time

type clockKey struct{}

// Now returns the evaluating registry's clock reading, or the wall clock
// outside an evaluation.
func Now(ctx context.Context) time.Time {
	if c, ok := ctx.Value(clockKey{}).(Clock); ok && c != nil {
		return c()
	}

	return time.Now()
}

type policyKey struct {
	rt ResourceType
	op Operation
}

// Registry maps (resource type, operation) to a policy. It is built at start up,
// frozen, and then only read.
type Registry struct {
	mu       sync.RWMutex
	types    map[ResourceType]struct{}
	policies map[policyKey]Policy
	strict   map[policyKey]bool
	frozen   bool

	clock    Clock
	recorder *metrics.Recorder
}

type Option func(*options)

type options struct {
	clock    Clock
	recorder *metrics.Recorder
}

// WithClock sets the clock used by time boxed rules.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRecorder sets where decisions and redactions are counted.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if o.recorder == nil {
		o.recorder = metrics.Default()
	}

	return o
}

func NewRegistry(opts ...Option) *Registry {
	o := buildOptions(opts)

	return &Registry{
		types:    make(map[ResourceType]struct{}),
		policies: make(map[policyKey]Policy),
		strict:   make(map[policyKey]bool),
		clock:    o.clock,
		recorder: o.recorder,
	}
}

// Declare adds rt to the closed set of resource types.
func (r *Registry) Declare(rt ResourceType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}

	if rt == "" {
		return errors.New("rls: empty resource type")
	}

	r.types[rt] = struct{}{}

	return nil
}

// Register sets the policy of (rt, op). Admin and system principals bypass it.
func (r *Registry) Register(rt ResourceType, op Operation, rules ...Rule) error {
	return r.register(rt, op, false, rules)
}

// RegisterStrict sets a policy the admin/system bypass does not apply to, so
// the rules alone decide for every principal.
func (r *Registry) RegisterStrict(rt ResourceType, op Operation, rules ...Rule) error {
	return r.register(rt, op, true, rules)
}

func (r *Registry) register(rt ResourceType, op Operation, strict bool, rules []Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}

	if _, ok := r.types[rt]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, rt)
	}

	if !op.Valid() {
		return fmt.Errorf("rls: invalid operation %s for %s", op, rt)
	}

	key := policyKey{rt, op}
	r.policies[key] = append(Policy(nil), rules...)
	r.strict[key] = strict

	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

func (r *Registry) Declared(rt ResourceType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.types[rt]

	return ok
}

func (r *Registry) Now() time.Time {
	return r.clock()
}

// Evaluate decides whether p may perform op on subject. Privileged principals
// pass unless the policy is strict. A missing policy denies. A rule failure
// denies and is returned wrapped with ErrEvaluation.
func (r *Registry) Evaluate(ctx context.Context, rt ResourceType, op Operation, p authz.Principal, subject Subject) (bool, error) {
	r.mu.RLock()
	_, declared := r.types[rt]
	key := policyKey{rt, op}
	policy, registered := r.policies[key]
	strict := r.strict[key]
	r.mu.RUnlock()

	if !declared {
		r.record(ctx, rt, op, "error")
		return false, fmt.Errorf("%w: %w: %s", ErrEvaluation, ErrUnknownResource, rt)
	}

	if p.IsPrivileged() && !strict {
		r.record(ctx, rt, op, "allow")
		return true, nil
	}

	if !registered {
		r.record(ctx, rt, op, "deny")
		log.Debug(ctx, "rls: no policy registered",
			log.String("resource", rt.String()),
			log.String("operation", op.String()),
			log.String("principal", p.String()),
		)

		return false, nil
	}

	subject.Type = rt
	subject.Op = op

	decision := policy.Eval(context.WithValue(ctx, clockKey{}, r.clock), p, subject)

	switch {
	case errors.Is(decision, ErrEvaluation):
		r.record(ctx, rt, op, "error")
		log.Warn(ctx, "rls: policy evaluation failed",
			log.String("resource", rt.String()),
			log.String("operation", op.String()),
			log.String("principal", p.String()),
			log.Cause(decision),
		)

		return false, decision
	case errors.Is(decision, Allow):
		r.record(ctx, rt, op, "allow")
		return true, nil
	default:
		r.record(ctx, rt, op, "deny")

		if log.DebugEnabled(ctx) {
			log.Debug(ctx, "rls: policy denied",
				log.String("resource", rt.String()),
				log.String("operation", op.String()),
				log.String("principal", p.String()),
				log.String("reason", decision.Error()),
			)
		}

		return false, nil
	}
}

func (r *Registry) record(ctx context.Context, rt ResourceType, op Operation, decision string) {
	r.recorder.RecordDecision(ctx, rt.String(), op.String(), decision)
}

// Registered lists the operations with a policy for rt.
func (r *Registry) Registered(rt ResourceType) []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Filter(AllOperations(), func(op Operation, _ int) bool {
		_, ok := r.policies[policyKey{rt, op}]
		return ok
	})
}
