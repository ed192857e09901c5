package rls

import (
	"context"
	"errors"
	"fmt"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
)

// Rule decides on a single aspect of an access check.
type Rule interface {
	EvalRule(ctx context.Context, p authz.Principal, s Subject) error
}

// RuleFunc adapts an ordinary function to a Rule.
type RuleFunc func(ctx context.Context, p authz.Principal, s Subject) error

func (f RuleFunc) EvalRule(ctx context.Context, p authz.Principal, s Subject) error {
	return f(ctx, p, s)
}

// Policy is an ordered rule chain.
type Policy []Rule

// Eval runs the chain. It returns an error wrapping Allow or Deny, or an
// ErrEvaluation error when a rule failed.
func (policy Policy) Eval(ctx context.Context, p authz.Principal, s Subject) error {
	for _, rule := range policy {
		switch decision := rule.EvalRule(ctx, p, s); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow), errors.Is(decision, Deny):
			return decision
		default:
			return fmt.Errorf("%w: %w", ErrEvaluation, decision)
		}
	}

	return Denyf("no rule allowed %s %s", s.Op, s.Type)
}
