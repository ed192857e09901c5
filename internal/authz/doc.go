// Package authz defines the principal every engine call is made on behalf of
// and the audited escalation to the system principal.
//
// Core concepts:
//
//   - Principal: an immutable identity value (subject, role, permissions) built
//     once per request by the authentication adapter. It is always passed as an
//     argument and never looked up from ambient state.
//
//   - System escalation: RunAsSystem hands a freshly built system principal to a
//     closure. Nothing is mutated or restored, so concurrent callers cannot observe
//     each other's privileges. Every escalation is audited.
//
// Usage rules:
//
//  1. Only background jobs and internal maintenance may call RunAsSystem.
//  2. Reasons must be stable strings for audit aggregation.
//  3. Never store a Principal in a long lived struct field.
package authz
