package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/opsrelay/opsrelay/internal/audit"
	"github.com/opsrelay/opsrelay/internal/shared"
)

// Service is the group store. Membership writes go through the Synchronizer
// so both collections stay linked; everything else is direct repository work.
type Service struct {
	repo    RepositoryPort
	sync    *Synchronizer
	auditor *audit.Emitter
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, sync *Synchronizer, auditor *audit.Emitter, logger *slog.Logger) *Service {
	return &Service{repo: repo, sync: sync, auditor: auditor, logger: logger}
}

// CreateParams carries the attributes for a new group.
type CreateParams struct {
	Name           string
	Description    string
	MemberUserRefs []string
	RoleNames      []string
}

// Create registers a new group. Initial members are linked through the
// synchronizer after the record exists; unknown member references are logged
// and skipped rather than failing the whole creation. Duplicate names fail
// with ErrConflict.
func (s *Service) Create(ctx context.Context, actor string, params CreateParams) (Group, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: group name required", shared.ErrValidation)
	}
	group, err := s.repo.Insert(ctx, Group{
		Name:        name,
		Description: strings.TrimSpace(params.Description),
		RoleNames:   dedupe(params.RoleNames),
		Active:      true,
	})
	if err != nil {
		return Group{}, err
	}
	for _, ref := range dedupe(params.MemberUserRefs) {
		if err := s.sync.AddMember(ctx, group.ID, ref); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				if s.logger != nil {
					s.logger.Warn("skipping unknown initial member",
						slog.String("group", group.Name),
						slog.String("user_ref", ref))
				}
				continue
			}
			return Group{}, err
		}
	}
	s.auditor.Emit(ctx, actor, "group.created", "group", strconv.FormatInt(group.ID, 10), map[string]any{"name": group.Name})
	return s.repo.Get(ctx, group.ID)
}

// Get fetches a group by id.
func (s *Service) Get(ctx context.Context, id int64) (Group, error) {
	return s.repo.Get(ctx, id)
}

// List returns every group.
func (s *Service) List(ctx context.Context) ([]Group, error) {
	return s.repo.List(ctx)
}

// Update applies a partial update to mutable group attributes. Membership and
// role assignments have their own operations.
func (s *Service) Update(ctx context.Context, actor string, id int64, patch UpdateParams) (Group, error) {
	group, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return Group{}, err
	}
	s.auditor.Emit(ctx, actor, "group.updated", "group", strconv.FormatInt(id, 10), nil)
	return group, nil
}

// Delete removes the group and strips its id from every member's group
// reference set.
func (s *Service) Delete(ctx context.Context, actor string, id int64) error {
	deleted, err := s.repo.DeleteWithMemberCleanup(ctx, id)
	if err != nil {
		return err
	}
	s.auditor.Emit(ctx, actor, "group.deleted", "group", strconv.FormatInt(id, 10), map[string]any{
		"name":    deleted.Name,
		"members": len(deleted.MemberUserRefs),
	})
	return nil
}

// AddMember links a user to the group on both sides.
func (s *Service) AddMember(ctx context.Context, actor string, id int64, userRef string) error {
	if err := s.sync.AddMember(ctx, id, userRef); err != nil {
		return err
	}
	s.auditor.Emit(ctx, actor, "group.member_added", "group", strconv.FormatInt(id, 10), map[string]any{"user_ref": userRef})
	return nil
}

// RemoveMember unlinks a user from the group on both sides.
func (s *Service) RemoveMember(ctx context.Context, actor string, id int64, userRef string) error {
	if err := s.sync.RemoveMember(ctx, id, userRef); err != nil {
		return err
	}
	s.auditor.Emit(ctx, actor, "group.member_removed", "group", strconv.FormatInt(id, 10), map[string]any{"user_ref": userRef})
	return nil
}

// AssignRole attaches a role name to the group. The name is stored as given;
// it does not have to resolve to a registered role. Audited only when the
// record actually changed.
func (s *Service) AssignRole(ctx context.Context, actor string, id int64, roleName string) error {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	changed, err := s.repo.AddRoleName(ctx, id, roleName)
	if err != nil {
		return err
	}
	if changed {
		s.auditor.Emit(ctx, actor, "group.role_assigned", "group", strconv.FormatInt(id, 10), map[string]any{"role": roleName})
	}
	return nil
}

// RemoveRole detaches a role name from the group. Removing an absent name is
// a no-op.
func (s *Service) RemoveRole(ctx context.Context, actor string, id int64, roleName string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	changed, err := s.repo.RemoveRoleName(ctx, id, roleName)
	if err != nil {
		return err
	}
	if changed {
		s.auditor.Emit(ctx, actor, "group.role_removed", "group", strconv.FormatInt(id, 10), map[string]any{"role": roleName})
	}
	return nil
}

// Reconcile runs the membership repair pass and reports how many links it
// fixed.
func (s *Service) Reconcile(ctx context.Context, actor string) (int, error) {
	repaired, err := s.sync.Reconcile(ctx)
	if err != nil {
		return repaired, err
	}
	if repaired > 0 {
		s.auditor.Emit(ctx, actor, "group.memberships_reconciled", "group", "", map[string]any{"repaired": repaired})
	}
	return repaired, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
