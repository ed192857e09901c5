package objects

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// ID identifies a principal or a document. The zero value is the empty ID.
type ID string

// NewID returns a random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// NameID returns the ID derived from parts. Equal parts give equal IDs.
func NameID(parts ...string) ID {
	return ID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(parts, "\x00"))).String())
}

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

// Equal reports whether both IDs are set and identical.
// Two empty IDs are never equal, so a missing owner never matches a missing subject.
func (id ID) Equal(other ID) bool {
	return id != "" && id == other
}

// ToID converts a stored value into an ID.
func ToID(v any) (ID, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case ID:
		return val, val != ""
	case string:
		return ID(val), val != ""
	case fmt.Stringer:
		s := val.String()
		return ID(s), s != ""
	default:
		s, err := cast.ToStringE(v)
		if err != nil || s == "" {
			return "", false
		}

		return ID(s), true
	}
}

// ToIDs converts a stored list value into IDs, skipping empty entries.
func ToIDs(v any) []ID {
	switch val := v.(type) {
	case nil:
		return nil
	case []ID:
		out := make([]ID, 0, len(val))
		for _, id := range val {
			if !id.IsZero() {
				out = append(out, id)
			}
		}

		return out
	case []string:
		out := make([]ID, 0, len(val))
		for _, s := range val {
			if s != "" {
				out = append(out, ID(s))
			}
		}

		return out
	case []any:
		out := make([]ID, 0, len(val))
		for _, item := range val {
			if id, ok := ToID(item); ok {
				out = append(out, id)
			}
		}

		return out
	default:
		if id, ok := ToID(v); ok {
			return []ID{id}
		}

		return nil
	}
}

// IDStrings converts ids into plain strings, e.g. for query values.
func IDStrings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}

	return out
}
