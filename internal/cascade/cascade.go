// Package cascade applies the soft-delete side effects of removing an
// organization or a user. Callers run these inside store.InTx so every step
// commits or rolls back together; authorization is checked by the caller.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	orgentity "github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

// DeleteOrganization soft deletes every live user of org and then org itself,
// stamping both with the same actor and time. It returns the number of users
// deleted.
func DeleteOrganization(ctx context.Context, tx store.Tx, org *orgentity.Organization, actorID string, at time.Time) (int64, error) {
	n, err := tx.Users().SoftDeleteByOrganization(ctx, org.ID, actorID, at)
	if err != nil {
		return 0, fmt.Errorf("soft delete users of %s: %w", org.ID, err)
	}
	actor, ts := actorID, at
	org.IsDeleted = true
	org.DeletedBy = &actor
	org.DeletedAt = &ts
	org.UpdatedBy = &actor
	org.UpdatedAt = at
	if err := tx.Organizations().Update(ctx, org); err != nil {
		return 0, fmt.Errorf("soft delete organization %s: %w", org.ID, err)
	}
	return n, nil
}

// UserResult describes what DeleteUser changed besides the user row.
type UserResult struct {
	RemovedFrom []string `json:"removedFrom"`
	// Transferred maps organization id to its new owner.
	Transferred map[string]string `json:"transferred"`
	// Orphaned lists organizations left without an owner and deactivated.
	Orphaned []string `json:"orphaned"`
}

// DeleteUser soft deletes target, drops it from every member list and hands
// each organization it owned to another active admin member, or deactivates
// the organization and clears its owner when there is none.
func DeleteUser(ctx context.Context, tx store.Tx, target *userentity.User, actorID string, at time.Time) (UserResult, error) {
	res := UserResult{Transferred: map[string]string{}}

	actor, ts := actorID, at
	target.IsDeleted = true
	target.IsActive = false
	target.DeletedBy = &actor
	target.DeletedAt = &ts
	target.UpdatedBy = &actor
	target.UpdatedAt = at
	if err := tx.Users().Update(ctx, target); err != nil {
		return res, fmt.Errorf("soft delete user %s: %w", target.ID, err)
	}

	// soft deleted organizations are included so no member row outlives the user
	memberOf, err := tx.Organizations().ListWithMember(ctx, target.ID, store.IncludeDeleted())
	if err != nil {
		return res, fmt.Errorf("list memberships of %s: %w", target.ID, err)
	}
	for _, org := range memberOf {
		if err := tx.Organizations().RemoveMember(ctx, org.ID, target.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return res, fmt.Errorf("remove %s from %s: %w", target.ID, org.ID, err)
		}
		res.RemovedFrom = append(res.RemovedFrom, org.ID)
	}

	owned, err := tx.Organizations().ListOwnedBy(ctx, target.ID)
	if err != nil {
		return res, fmt.Errorf("list organizations owned by %s: %w", target.ID, err)
	}
	for i := range owned {
		org := &owned[i]
		heir, err := successor(ctx, tx, org, target.ID)
		if err != nil {
			return res, err
		}
		if heir != "" {
			org.OwnerID = &heir
			res.Transferred[org.ID] = heir
		} else {
			org.OwnerID = nil
			org.Status = orgentity.StatusInactive
			res.Orphaned = append(res.Orphaned, org.ID)
		}
		org.UpdatedBy = &actor
		org.UpdatedAt = at
		if err := tx.Organizations().Update(ctx, org); err != nil {
			return res, fmt.Errorf("reassign owner of %s: %w", org.ID, err)
		}
	}
	return res, nil
}

// successor picks the first active admin member, in member order, whose user
// is still live.
func successor(ctx context.Context, tx store.Tx, org *orgentity.Organization, leaving string) (string, error) {
	for _, m := range org.Members {
		if m.UserID == leaving || !m.IsActive || m.Role != userentity.RoleAdmin {
			continue
		}
		u, err := tx.Users().GetByID(ctx, m.UserID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("load member %s: %w", m.UserID, err)
		}
		if !u.IsActive {
			continue
		}
		return u.ID, nil
	}
	return "", nil
}
