package store

import "eeglab/pkg/domain"

// Store defines persistence operations for users, experiments, sessions and
// invite codes. Not-found conditions are reported through the bool results
// so callers can distinguish "no matching row" from a query failure.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UpdateUserRole(id string, role domain.Role) error

	// experiments
	SaveExperiment(domain.Experiment) error
	// UpdateExperiment writes the experiment's scalar fields (start date is
	// immutable and never rewritten) and upserts every session in
	// Experiment.Sessions keyed by session id. Stored sessions absent from
	// the submitted list are left untouched; removal is DeleteSession.
	UpdateExperiment(domain.Experiment) error
	// ListExperiments scopes results to the actor: Admins see every
	// experiment, everyone else only their own. Ordered by start date,
	// most recent first; sessions inside each experiment likewise.
	ListExperiments(actor domain.User) ([]domain.Experiment, error)
	GetExperiment(id string) (domain.Experiment, bool, error)
	// DeleteExperiment cascades to the experiment's sessions.
	DeleteExperiment(id string) error
	DeleteSession(id string) error

	// invites
	SaveInvite(domain.Invite) error
	GetInvite(code string) (domain.Invite, bool, error)
	DeleteInvite(code string) error
}

// SessionStore persists the logged-in user's identity between visits.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
