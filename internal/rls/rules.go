package rls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
)

// AllowPrivileged allows admin and system principals.
func AllowPrivileged() Rule {
	return RuleFunc(func(_ context.Context, p authz.Principal, _ Subject) error {
		if p.IsPrivileged() {
			return Allowf("%s is privileged", p)
		}

		return Skip
	})
}

// AllowSystem allows the system principal only.
func AllowSystem() Rule {
	return RuleFunc(func(_ context.Context, p authz.Principal, _ Subject) error {
		if p.IsSystem() {
			return Allow
		}

		return Skip
	})
}

// DenyAnonymous denies principals without an authenticated subject.
func DenyAnonymous() Rule {
	return RuleFunc(func(_ context.Context, p authz.Principal, _ Subject) error {
		if !p.IsAuthenticated() {
			return Denyf("unauthenticated principal")
		}

		return Skip
	})
}

// AlwaysDeny terminates the chain with a deny.
func AlwaysDeny() Rule {
	return RuleFunc(func(context.Context, authz.Principal, Subject) error {
		return Deny
	})
}

// AllowOwner allows the principal referenced by field of the subject document.
func AllowOwner(field string) Rule {
	return RuleFunc(func(_ context.Context, p authz.Principal, s Subject) error {
		owner, ok := s.Doc().IDField(field)
		if ok && p.Is(owner) {
			return Allowf("%s owns %s", p, s.Type)
		}

		return Skip
	})
}

// AllowOwnerOrUnset is the create time form of AllowOwner: the payload may
// name the principal as owner or leave the field for the pre-create hook.
func AllowOwnerOrUnset(field string) Rule {
	return RuleFunc(func(_ context.Context, p authz.Principal, s Subject) error {
		if _, set := s.Doc().Get(field); !set {
			if p.IsAuthenticated() {
				return Allowf("%s becomes owner of new %s", p, s.Type)
			}

			return Skip
		}

		owner, ok := s.Doc().IDField(field)
		if ok && p.Is(owner) {
			return Allowf("%s owns new %s", p, s.Type)
		}

		return Skip
	})
}

// AllowParticipant allows the principal referenced by any of fields.
func AllowParticipant(fields ...string) Rule {
	return RuleFunc(func(_ context.Context, p authz.Principal, s Subject) error {
		doc := s.Doc()

		for _, field := range fields {
			if id, ok := doc.IDField(field); ok && p.Is(id) {
				return Allowf("%s participates in %s via %s", p, s.Type, field)
			}
		}

		return Skip
	})
}

// AllowMember allows principals listed in the id set at field.
func AllowMember(field string) Rule {
	return RuleFunc(func(_ context.Context, p authz.Principal, s Subject) error {
		for _, id := range s.Doc().IDs(field) {
			if p.Is(id) {
				return Allowf("%s is a member of %s", p, s.Type)
			}
		}

		return Skip
	})
}

// HasPermission allows principals holding perm.
func HasPermission(perm string) Rule {
	return RuleFunc(func(_ context.Context, p authz.Principal, _ Subject) error {
		if p.HasPermission(perm) {
			return Allowf("%s holds %s", p, perm)
		}

		return Skip
	})
}

// AllowWhen allows when check reports true. Lookup failures are returned as is
// and end the evaluation as a failure.
func AllowWhen(name string, check func(ctx context.Context, p authz.Principal, s Subject) (bool, error)) Rule {
	return RuleFunc(func(ctx context.Context, p authz.Principal, s Subject) error {
		ok, err := check(ctx, p, s)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if ok {
			return Allowf("%s", name)
		}

		return Skip
	})
}

// Within limits rule to the window following the timestamp at field of the
// subject document. Unless rule allows inside the window the chain ends with
// a deny.
func Within(field string, window time.Duration, rule Rule) Rule {
	return RuleFunc(func(ctx context.Context, p authz.Principal, s Subject) error {
		at, ok := s.Doc().Time(field)
		if !ok {
			return Denyf("%s has no %s timestamp", s.Type, field)
		}

		if elapsed := Now(ctx).Sub(at); elapsed > window {
			return Denyf("%s window of %s elapsed %s ago", s.Op, window, elapsed-window)
		}

		decision := rule.EvalRule(ctx, p, s)
		if decision != nil && !isDecision(decision) {
			return decision
		}

		if errors.Is(decision, Allow) {
			return decision
		}

		return Denyf("%s not allowed within window", s.Op)
	})
}
