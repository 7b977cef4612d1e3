package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opsrelay/opsrelay/internal/shared"
)

// UserDirectory is the user-collection surface the synchronizer needs. The
// users package implements it.
type UserDirectory interface {
	ExistsByRef(ctx context.Context, ref string) (bool, error)
	AddGroupRef(ctx context.Context, ref string, groupID int64) (bool, error)
	RemoveGroupRef(ctx context.Context, ref string, groupID int64) (bool, error)
	ListGroupRefs(ctx context.Context) (map[string][]int64, error)
}

// Synchronizer maintains the bidirectional membership invariant: a group
// lists a user's reference exactly when that user references the group.
// The two collections are written without cross-document transactions, group
// side first (the group is the owning side); a partial failure leaves an
// asymmetry Reconcile can detect and heal, never data loss.
type Synchronizer struct {
	groups RepositoryPort
	users  UserDirectory
	logger *slog.Logger
}

// NewSynchronizer builds a Synchronizer.
func NewSynchronizer(groups RepositoryPort, users UserDirectory, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{groups: groups, users: users, logger: logger}
}

// AddMember links the user to the group on both sides as one logical
// operation. Fails with ErrNotFound if either record is missing. Re-applying
// the call has no additional effect.
func (s *Synchronizer) AddMember(ctx context.Context, groupID int64, userRef string) error {
	if _, err := s.groups.Get(ctx, groupID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: group %d", shared.ErrNotFound, groupID)
		}
		return err
	}
	exists, err := s.users.ExistsByRef(ctx, userRef)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: user %s", shared.ErrNotFound, userRef)
	}

	if _, err := s.groups.AddMemberRef(ctx, groupID, userRef); err != nil {
		return err
	}
	if _, err := s.users.AddGroupRef(ctx, userRef, groupID); err != nil {
		// Group side is already written; the reconciliation pass heals the
		// missing back-reference.
		if s.logger != nil {
			s.logger.Warn("member back-reference write failed",
				slog.Int64("group_id", groupID),
				slog.String("user_ref", userRef),
				slog.Any("error", err))
		}
		return err
	}
	return nil
}

// RemoveMember unlinks the user from the group on both sides. Removing an
// absent member is a no-op, not an error.
func (s *Synchronizer) RemoveMember(ctx context.Context, groupID int64, userRef string) error {
	if _, err := s.groups.Get(ctx, groupID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: group %d", shared.ErrNotFound, groupID)
		}
		return err
	}
	if _, err := s.groups.RemoveMemberRef(ctx, groupID, userRef); err != nil {
		return err
	}
	if _, err := s.users.RemoveGroupRef(ctx, userRef, groupID); err != nil {
		if s.logger != nil {
			s.logger.Warn("member back-reference removal failed",
				slog.Int64("group_id", groupID),
				slog.String("user_ref", userRef),
				slog.Any("error", err))
		}
		return err
	}
	return nil
}

// Reconcile is the idempotent full-scan repair pass. For every group member
// it ensures the user's back-reference exists; it then prunes user
// back-references that point at missing groups or at groups that no longer
// list the user. Member references without a corresponding user are logged
// and skipped. Returns the number of repaired links. Running it twice with
// no intervening writes repairs zero links the second time.
func (s *Synchronizer) Reconcile(ctx context.Context) (int, error) {
	repaired := 0

	all, err := s.groups.List(ctx)
	if err != nil {
		return repaired, err
	}
	membership := make(map[int64]map[string]struct{}, len(all))
	for _, g := range all {
		members := make(map[string]struct{}, len(g.MemberUserRefs))
		for _, ref := range g.MemberUserRefs {
			members[ref] = struct{}{}
		}
		membership[g.ID] = members
	}

	for _, g := range all {
		for _, ref := range g.MemberUserRefs {
			if err := ctx.Err(); err != nil {
				return repaired, err
			}
			exists, err := s.users.ExistsByRef(ctx, ref)
			if err != nil {
				return repaired, err
			}
			if !exists {
				if s.logger != nil {
					s.logger.Warn("group references unknown user",
						slog.String("group", g.Name),
						slog.String("user_ref", ref))
				}
				continue
			}
			changed, err := s.users.AddGroupRef(ctx, ref, g.ID)
			if err != nil {
				return repaired, err
			}
			if changed {
				repaired++
				if s.logger != nil {
					s.logger.Info("repaired missing back-reference",
						slog.String("group", g.Name),
						slog.String("user_ref", ref))
				}
			}
		}
	}

	refsByUser, err := s.users.ListGroupRefs(ctx)
	if err != nil {
		return repaired, err
	}
	for ref, groupIDs := range refsByUser {
		for _, id := range groupIDs {
			if err := ctx.Err(); err != nil {
				return repaired, err
			}
			members, groupExists := membership[id]
			if groupExists {
				if _, isMember := members[ref]; isMember {
					continue
				}
			}
			changed, err := s.users.RemoveGroupRef(ctx, ref, id)
			if err != nil {
				return repaired, err
			}
			if changed {
				repaired++
				if s.logger != nil {
					s.logger.Info("pruned stale group reference",
						slog.String("user_ref", ref),
						slog.Int64("group_id", id))
				}
			}
		}
	}

	return repaired, nil
}
