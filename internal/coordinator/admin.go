package coordinator

import (
	"context"

	"eeglab/pkg/domain"
)

// ChangeUserRole switches another user's role between Admin and
// Researcher. Admin-only, confirmed like the destructive actions, and
// self-demotion is refused so a lab cannot lock itself out.
func (c *Coordinator) ChangeUserRole(ctx context.Context, userID string, role domain.Role, confirmed bool) State {
	c.mu.Lock()
	user := c.state.CurrentUser
	if user == nil || user.Role != domain.RoleAdmin || !confirmed || c.state.ActionLoading {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	if userID == user.ID {
		c.state.Notice = "You cannot change your own role."
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	if role != domain.RoleAdmin && role != domain.RoleResearcher {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.ActionLoading = true
	c.state.Notice = ""
	c.mu.Unlock()

	err := c.store.UpdateUserRole(userID, role)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ActionLoading = false
	if c.gen != gen {
		return c.snapshotLocked()
	}
	if err != nil {
		c.logger.Error("update role failed", "error", err, "user_id", userID)
		c.state.Notice = "Could not change the role."
		return c.snapshotLocked()
	}
	if err := c.refreshLocked(); err != nil {
		c.logger.Error("refresh after role change failed", "error", err)
		c.state.Notice = "Could not refresh users."
		return c.snapshotLocked()
	}
	return c.snapshotLocked()
}

// GenerateInvite mints a fresh single-use Researcher invite code and puts
// it in the state for the admin to copy. Admin-only.
func (c *Coordinator) GenerateInvite(ctx context.Context) State {
	c.mu.Lock()
	user := c.state.CurrentUser
	if user == nil || user.Role != domain.RoleAdmin || c.state.ActionLoading {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.ActionLoading = true
	c.state.Notice = ""
	c.mu.Unlock()

	inv, err := c.gate.Generate()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ActionLoading = false
	if c.gen != gen {
		return c.snapshotLocked()
	}
	if err != nil {
		c.logger.Error("generate invite failed", "error", err)
		c.state.Notice = "Could not generate an invite code."
		return c.snapshotLocked()
	}
	c.state.GeneratedInvite = inv.Code
	return c.snapshotLocked()
}
