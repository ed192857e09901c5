package authz

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

// Role is the coarse privilege class of a principal.
type Role int

const (
	RoleAnonymous Role = iota
	RoleUser
	RoleModerator
	RoleAdmin
	RoleSystem
)

func (r Role) String() string {
	switch r {
	case RoleAnonymous:
		return "anonymous"
	case RoleUser:
		return "user"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	case RoleSystem:
		return "system"
	default:
		return "unknown"
	}
}

// ParseRole maps the role names issued by the authentication adapter.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "anonymous", "guest":
		return RoleAnonymous, nil
	case "user":
		return RoleUser, nil
	case "moderator":
		return RoleModerator, nil
	case "admin":
		return RoleAdmin, nil
	case "system":
		return RoleSystem, nil
	default:
		return RoleAnonymous, fmt.Errorf("authz: unknown role %q", s)
	}
}

// Permission levels by role.
const (
	LevelAnonymous = 0
	LevelUser      = 10
	LevelModerator = 50
	LevelAdmin     = 90
	LevelSystem    = 100
)

func (r Role) level() int {
	switch r {
	case RoleUser:
		return LevelUser
	case RoleModerator:
		return LevelModerator
	case RoleAdmin:
		return LevelAdmin
	case RoleSystem:
		return LevelSystem
	default:
		return LevelAnonymous
	}
}

// TokenType records how the principal was authenticated.
type TokenType int

const (
	TokenTypeNone TokenType = iota
	TokenTypeAccess
	TokenTypeRefresh
	TokenTypeInternal
)

func (t TokenType) String() string {
	switch t {
	case TokenTypeAccess:
		return "access"
	case TokenTypeRefresh:
		return "refresh"
	case TokenTypeInternal:
		return "internal"
	default:
		return "none"
	}
}

// PermissionAll grants every permission.
const PermissionAll = "all"

// Principal is the identity an operation runs as. It is a value: copies never
// share mutable state. The zero value is an anonymous principal.
type Principal struct {
	subjectID   objects.ID
	role        Role
	permissions []string
	tokenType   TokenType
	createdAt   time.Time
}

// NewPrincipal builds a principal. Anonymous principals never carry a subject.
func NewPrincipal(subjectID objects.ID, role Role, permissions ...string) Principal {
	if role == RoleAnonymous {
		subjectID = ""
	}

	perms := slices.Clone(permissions)
	perms = slices.DeleteFunc(perms, func(s string) bool { return s == "" })
	slices.Sort(perms)
	perms = slices.Compact(perms)

	if role == RoleSystem && !slices.Contains(perms, PermissionAll) {
		perms = append(perms, PermissionAll)
		slices.Sort(perms)
	}

	tokenType := TokenTypeAccess
	if role == RoleAnonymous {
		tokenType = TokenTypeNone
	}

	return Principal{
		subjectID:   subjectID,
		role:        role,
		permissions: perms,
		tokenType:   tokenType,
		createdAt:   time.Now(),
	}
}

// Anonymous returns the principal of an unauthenticated caller.
func Anonymous() Principal {
	return NewPrincipal("", RoleAnonymous)
}

// WithTokenType returns a copy of p authenticated by t.
func (p Principal) WithTokenType(t TokenType) Principal {
	p.permissions = slices.Clone(p.permissions)
	p.tokenType = t

	return p
}

func (p Principal) SubjectID() (objects.ID, bool) {
	return p.subjectID, !p.subjectID.IsZero()
}

func (p Principal) Role() Role {
	return p.role
}

// Permissions returns a copy of the sorted permission set.
func (p Principal) Permissions() []string {
	return slices.Clone(p.permissions)
}

func (p Principal) HasPermission(perm string) bool {
	_, found := slices.BinarySearch(p.permissions, perm)
	if found {
		return true
	}

	_, all := slices.BinarySearch(p.permissions, PermissionAll)

	return all
}

func (p Principal) PermissionLevel() int {
	return p.role.level()
}

func (p Principal) TokenType() TokenType {
	return p.tokenType
}

func (p Principal) CreatedAt() time.Time {
	return p.createdAt
}

func (p Principal) IsAdmin() bool {
	return p.role == RoleAdmin
}

func (p Principal) IsSystem() bool {
	return p.role == RoleSystem
}

// IsPrivileged reports whether the coarse admin/system bypass applies.
func (p Principal) IsPrivileged() bool {
	return p.IsAdmin() || p.IsSystem()
}

func (p Principal) IsAnonymous() bool {
	return p.role == RoleAnonymous
}

// IsAuthenticated reports whether p is a system principal or carries a subject.
func (p Principal) IsAuthenticated() bool {
	if p.IsSystem() {
		return true
	}

	return p.role != RoleAnonymous && !p.subjectID.IsZero()
}

// Is reports whether p acts as the subject id.
func (p Principal) Is(id objects.ID) bool {
	return p.subjectID.Equal(id)
}

// String returns the audit form of the principal.
func (p Principal) String() string {
	switch p.role {
	case RoleAnonymous:
		return "anonymous"
	case RoleSystem:
		return "system"
	}

	if p.subjectID.IsZero() {
		return p.role.String() + ":unknown"
	}

	return p.role.String() + ":" + p.subjectID.String()
}
