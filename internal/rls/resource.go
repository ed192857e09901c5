package rls

import (
	"fmt"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

// ResourceType names a protected entity class. The set is closed: a type must
// be declared in a Catalogue before anything can be registered for it.
type ResourceType string

func (rt ResourceType) String() string {
	return string(rt)
}

type Operation int

const (
	OpRead Operation = iota
	OpCreate
	OpUpdate
	OpDelete
)

func AllOperations() []Operation {
	return []Operation{OpRead, OpCreate, OpUpdate, OpDelete}
}

func (op Operation) Valid() bool {
	return op >= OpRead && op <= OpDelete
}

func (op Operation) String() string {
	switch op {
	case OpRead:
		return "read"
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("operation(%d)", int(op))
	}
}

// Subject is what a policy decides on. Current is the stored document and is
// nil on create; Proposed is the incoming payload and is nil on read and delete.
type Subject struct {
	Type     ResourceType
	Op       Operation
	Current  objects.Document
	Proposed objects.Document
}

// Doc returns the document the decision is about: the proposed data on create,
// the stored instance otherwise.
func (s Subject) Doc() objects.Document {
	if s.Op == OpCreate {
		return s.Proposed
	}

	return s.Current
}
