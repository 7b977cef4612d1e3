package groups

import "time"

// Group bundles users under a shared set of role names. MemberUserRefs holds
// stable user references (not storage ids); each referenced user carries the
// group id in its GroupRefs set. RoleNames may reference roles that no longer
// exist; such names resolve to zero permissions and are never an error.
type Group struct {
	ID             int64
	Name           string
	Description    string
	MemberUserRefs []string
	RoleNames      []string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UpdateParams carries the mutable group attributes for partial updates.
type UpdateParams struct {
	Description *string
	Active      *bool
}
