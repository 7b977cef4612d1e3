package users

import "time"

// User represents a user account as consumed by the access control engine.
// Roles attach to a user either directly (DirectRoleNames) or through the
// groups referenced by GroupRefs. The pair (group.MemberUserRefs,
// user.GroupRefs) forms a bidirectional relationship kept consistent by the
// membership synchronizer.
type User struct {
	ID                     int64
	UserRef                string
	Email                  string
	Name                   string
	PasswordHash           string
	IsActive               bool
	ChangePasswordRequired bool
	DirectRoleNames        []string
	GroupRefs              []int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
