package rls

import (
	"errors"
	"fmt"
)

// Rule decisions.
var (
	Allow = errors.New("rls: allow rule")
	Deny  = errors.New("rls: deny rule")
	Skip  = errors.New("rls: skip rule")
)

var (
	// ErrEvaluation marks a policy that could not be evaluated, for example
	// because a relationship lookup failed. The decision is always deny.
	ErrEvaluation      = errors.New("rls: policy evaluation failed")
	ErrUnknownResource = errors.New("rls: unknown resource type")
	ErrFrozen          = errors.New("rls: registry is frozen")
)

// Allowf returns a formatted Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

func isDecision(err error) bool {
	return errors.Is(err, Allow) || errors.Is(err, Deny) || errors.Is(err, Skip)
}
