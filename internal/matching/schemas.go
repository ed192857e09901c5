package matching

import (
	"embed"
	"fmt"
	"path"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/hashicorp/go-multierror"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/pkg/xjson"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[rls.ResourceType]string{
	TypeProfile:      "profile.json",
	TypeMatchPair:    "match_pair.json",
	TypeConversation: "conversation.json",
	TypeMessage:      "message.json",
	TypeAssessment:   "assessment.json",
}

// Schema returns the raw JSON schema of a resource type.
func Schema(rt rls.ResourceType) ([]byte, error) {
	name, ok := schemaFiles[rt]
	if !ok {
		return nil, fmt.Errorf("no schema for %s", rt)
	}

	return schemaFS.ReadFile(path.Join("schemas", name))
}

// validator checks payloads against the type's schema plus the checks a
// schema cannot express.
type validator struct {
	create *jsonschema.Resolved
	update *jsonschema.Resolved
	check  func(op rls.Operation, doc objects.Document) error
}

func newValidator(rt rls.ResourceType, check func(op rls.Operation, doc objects.Document) error) (*validator, error) {
	raw, err := Schema(rt)
	if err != nil {
		return nil, err
	}

	create, err := xjson.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", rt, err)
	}

	update, err := xjson.CompilePartial(raw)
	if err != nil {
		return nil, fmt.Errorf("compile %s update schema: %w", rt, err)
	}

	return &validator{create: create, update: update, check: check}, nil
}

func (v *validator) Validate(op rls.Operation, doc objects.Document) error {
	instance, err := xjson.Normalize(doc)
	if err != nil {
		return fmt.Errorf("payload is not JSON: %w", err)
	}

	schema := v.create
	if op == rls.OpUpdate {
		schema = v.update
	}

	var errs *multierror.Error

	if err := schema.Validate(instance); err != nil {
		errs = multierror.Append(errs, err)
	}

	if v.check != nil {
		if err := v.check(op, doc); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

func checkMatchPair(_ rls.Operation, doc objects.Document) error {
	a, okA := doc.IDField(FieldUserA)
	b, okB := doc.IDField(FieldUserB)

	if okA && okB && a == b {
		return fmt.Errorf("a match pair needs two different users, got %s twice", a)
	}

	return nil
}

func checkConversation(_ rls.Operation, doc objects.Document) error {
	if !doc.Has(FieldParticipantIDs) {
		return nil
	}

	if ids := doc.IDs(FieldParticipantIDs); len(ids) < 2 {
		return fmt.Errorf("a conversation needs at least two participants, got %d", len(ids))
	}

	return nil
}
