package roles

import "time"

// Role kinds. SYSTEM roles are seeded at startup and protected from
// deletion; CUSTOM roles are fully administrator-managed.
const (
	KindSystem = "SYSTEM"
	KindCustom = "CUSTOM"
)

// Role names seeded at startup.
const (
	NameViewer      = "VIEWER"
	NameResponder   = "RESPONDER"
	NameManager     = "MANAGER"
	NameAdmin       = "ADMIN"
	NameSystemAdmin = "SYSTEM_ADMIN"
)

// Role maps a unique name to a set of permissions. A role with Unrestricted
// set resolves to the entire permission catalog regardless of its enumerated
// permission set; the flag replaces comparing against a well-known name so a
// rename cannot silently drop the override.
type Role struct {
	ID           int64
	Name         string
	Description  string
	Kind         string
	Unrestricted bool
	Permissions  []string
	// ParentRoles is carried for wire compatibility with older records but
	// participates in no resolution logic.
	ParentRoles []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
