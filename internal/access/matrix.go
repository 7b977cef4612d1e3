package access

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opsrelay/opsrelay/internal/groups"
	"github.com/opsrelay/opsrelay/internal/permissions"
	"github.com/opsrelay/opsrelay/internal/roles"
	"github.com/opsrelay/opsrelay/internal/users"
)

// PermissionEntry describes one catalog permission.
type PermissionEntry struct {
	ID          string `json:"id"`
	Area        string `json:"area"`
	Description string `json:"description"`
}

// RoleEntry describes one role, its granted permissions and how widely it is
// referenced: UserCount counts users holding it directly, GroupCount counts
// groups granting it.
type RoleEntry struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Unrestricted bool     `json:"unrestricted"`
	Permissions  []string `json:"permissions"`
	UserCount    int      `json:"userCount"`
	GroupCount   int      `json:"groupCount"`
}

// UserEntry describes one user's effective access. Roles is the effective
// union; DirectRoles and GroupRoles split it by origin, and GroupNames lists
// every resolvable group the user belongs to (inactive ones included, though
// they contribute no roles).
type UserEntry struct {
	UserRef     string   `json:"userRef"`
	Active      bool     `json:"active"`
	Roles       []string `json:"roles"`
	DirectRoles []string `json:"directRoles"`
	GroupRoles  []string `json:"groupRoles"`
	GroupNames  []string `json:"groupNames"`
	Permissions []string `json:"permissions"`
}

// GroupEntry describes one group's role grants.
type GroupEntry struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Active      bool     `json:"active"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	MemberCount int      `json:"memberCount"`
}

// Matrix is the full permission matrix: the catalog plus the resolved access
// of every role, group and user at generation time.
type Matrix struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Permissions []PermissionEntry `json:"permissions"`
	Roles       []RoleEntry       `json:"roles"`
	Groups      []GroupEntry      `json:"groups"`
	Users       []UserEntry       `json:"users"`
}

// BuildMatrix assembles the matrix. The three collections are loaded
// concurrently; per-user resolution then runs over the in-memory snapshot so
// a matrix of N users costs three list queries, not N lookups. Dangling role
// and group references contribute nothing, mirroring single-user resolution.
func (r *Resolver) BuildMatrix(ctx context.Context) (Matrix, error) {
	var (
		allUsers  []users.User
		allGroups []groups.Group
		allRoles  []roles.Role
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		allUsers, err = r.users.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		allGroups, err = r.groups.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		allRoles, err = r.roles.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Matrix{}, err
	}

	roleByName := make(map[string]roles.Role, len(allRoles))
	for _, role := range allRoles {
		roleByName[role.Name] = role
	}
	groupByID := make(map[int64]groups.Group, len(allGroups))
	for _, group := range allGroups {
		groupByID[group.ID] = group
	}

	matrix := Matrix{GeneratedAt: time.Now().UTC()}

	for _, p := range permissions.All() {
		matrix.Permissions = append(matrix.Permissions, PermissionEntry{
			ID:          p,
			Area:        permissions.Area(p),
			Description: permissions.Describe(p),
		})
	}

	directHolders := make(map[string]int)
	for _, user := range allUsers {
		for _, n := range user.DirectRoleNames {
			directHolders[n]++
		}
	}
	grantingGroups := make(map[string]int)
	for _, group := range allGroups {
		for _, n := range group.RoleNames {
			grantingGroups[n]++
		}
	}

	for _, role := range allRoles {
		matrix.Roles = append(matrix.Roles, RoleEntry{
			Name:         role.Name,
			Kind:         role.Kind,
			Unrestricted: role.Unrestricted,
			Permissions:  permissionUnion([]roles.Role{role}),
			UserCount:    directHolders[role.Name],
			GroupCount:   grantingGroups[role.Name],
		})
	}
	sort.Slice(matrix.Roles, func(i, j int) bool { return matrix.Roles[i].Name < matrix.Roles[j].Name })

	for _, group := range allGroups {
		names := sortedCopy(group.RoleNames)
		matrix.Groups = append(matrix.Groups, GroupEntry{
			ID:          group.ID,
			Name:        group.Name,
			Active:      group.Active,
			Roles:       names,
			Permissions: permissionUnion(lookupRoles(roleByName, names)),
			MemberCount: len(group.MemberUserRefs),
		})
	}

	for _, user := range allUsers {
		names := make(map[string]struct{})
		for _, n := range user.DirectRoleNames {
			names[n] = struct{}{}
		}
		fromGroups := make(map[string]struct{})
		groupNames := make([]string, 0, len(user.GroupRefs))
		for _, id := range user.GroupRefs {
			group, ok := groupByID[id]
			if !ok {
				continue
			}
			groupNames = append(groupNames, group.Name)
			if !group.Active {
				continue
			}
			for _, n := range group.RoleNames {
				names[n] = struct{}{}
				fromGroups[n] = struct{}{}
			}
		}
		sort.Strings(groupNames)
		effective := make([]string, 0, len(names))
		for n := range names {
			effective = append(effective, n)
		}
		sort.Strings(effective)
		groupRoles := make([]string, 0, len(fromGroups))
		for n := range fromGroups {
			groupRoles = append(groupRoles, n)
		}
		sort.Strings(groupRoles)
		matrix.Users = append(matrix.Users, UserEntry{
			UserRef:     user.UserRef,
			Active:      user.IsActive,
			Roles:       effective,
			DirectRoles: sortedCopy(user.DirectRoleNames),
			GroupRoles:  groupRoles,
			GroupNames:  groupNames,
			Permissions: permissionUnion(lookupRoles(roleByName, effective)),
		})
	}

	return matrix, nil
}

func lookupRoles(byName map[string]roles.Role, names []string) []roles.Role {
	out := make([]roles.Role, 0, len(names))
	for _, n := range names {
		if role, ok := byName[n]; ok {
			out = append(out, role)
		}
	}
	return out
}

func sortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}
