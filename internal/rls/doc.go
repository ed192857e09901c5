// Package rls is the row-level security engine: a registry of per resource
// policies, the filter builder that narrows list queries, and the redactor that
// strips fields before documents leave the engine.
//
// Policies are chains of rules. Rules return Allow, Deny or Skip (optionally
// wrapped with Allowf/Denyf/Skipf). The first Allow or Deny wins, Skip moves on,
// and a chain that runs out denies. Any other error is an evaluation failure and
// denies as well, but is reported as ErrEvaluation so callers can tell it apart
// from a normal refusal.
package rls
