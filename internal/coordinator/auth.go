package coordinator

import (
	"strings"

	"eeglab/internal/util"
	"eeglab/pkg/auth"
	"eeglab/pkg/domain"
)

// Login signs a user in. On success the state moves to the dashboard with
// the user's experiments loaded; on failure a notice explains why and the
// login screen stays up. The caller mints a session token when the
// returned state carries a CurrentUser.
func (c *Coordinator) Login(email, password string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Notice = ""

	user, ok, err := c.store.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		c.logger.Error("login lookup failed", "error", err)
		c.state.Notice = "Login failed. Try again."
		return c.snapshotLocked()
	}
	if !ok {
		c.state.Notice = "Email not found."
		return c.snapshotLocked()
	}
	if user.PasswordHash != "" && !auth.CheckPassword(password, user.PasswordHash) {
		c.state.Notice = "Invalid email or password."
		return c.snapshotLocked()
	}
	c.signInLocked(user)
	return c.snapshotLocked()
}

// Register validates the invite code, creates the account with the role
// the code grants, and signs the new user in.
func (c *Coordinator) Register(name, email, password, inviteCode string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Notice = ""

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		c.state.Notice = "Name, email and password are required."
		return c.snapshotLocked()
	}

	if _, exists, err := c.store.GetUserByEmail(email); err != nil {
		c.logger.Error("register lookup failed", "error", err)
		c.state.Notice = "Registration failed. Try again."
		return c.snapshotLocked()
	} else if exists {
		c.state.Notice = "An account with this email already exists."
		return c.snapshotLocked()
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		c.logger.Error("password hashing failed", "error", err)
		c.state.Notice = "Registration failed. Try again."
		return c.snapshotLocked()
	}

	// Single-use codes burn on redemption, so the invite is consumed only
	// after every rejectable input has been checked.
	role, ok, err := c.gate.ValidateAndConsume(inviteCode)
	if err != nil {
		c.logger.Error("invite validation failed", "error", err)
		c.state.Notice = "Registration failed. Try again."
		return c.snapshotLocked()
	}
	if !ok {
		c.state.Notice = "Invalid invite code."
		return c.snapshotLocked()
	}
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    c.now().UTC(),
	}
	if err := c.store.SaveUser(user); err != nil {
		c.logger.Error("save user failed", "error", err)
		c.state.Notice = "Registration failed. Try again."
		return c.snapshotLocked()
	}
	c.signInLocked(user)
	return c.snapshotLocked()
}

// Resume rebuilds the signed-in state from a persisted session, landing on
// the dashboard.
func (c *Coordinator) Resume(user domain.User) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signInLocked(user)
	return c.snapshotLocked()
}

// Logout drops everything and returns to the login screen. The caller
// revokes the session token.
func (c *Coordinator) Logout() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{
		View:        ViewLogin,
		Experiments: []domain.Experiment{},
	}
	c.gen++
	return c.snapshotLocked()
}

func (c *Coordinator) signInLocked(user domain.User) {
	// The hash stays in the store; snapshots never carry it.
	user.PasswordHash = ""
	c.state.CurrentUser = &user
	err := c.loadExperimentsLocked()
	c.navigateLocked(ViewDashboard)
	if err != nil {
		c.logger.Error("load experiments failed", "error", err)
		c.state.Notice = "Could not load experiments."
	}
}
