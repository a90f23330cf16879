package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"eeglab/pkg/domain"
)

// MemoryStore is an in-memory Store used in tests and for local runs
// without Postgres. All returned values are deep copies so callers cannot
// mutate stored state through shared slices.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]domain.User
	userOrder   []string
	experiments map[string]domain.Experiment
	sessions    map[string]domain.Session
	invites     map[string]domain.Invite

	// FailSessionSave, when set, makes the session-upsert half of
	// UpdateExperiment fail for the given session id. Tests use it to
	// exercise rollback behavior.
	FailSessionSave string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		experiments: make(map[string]domain.Experiment),
		sessions:    make(map[string]domain.Session),
		invites:     make(map[string]domain.Invite),
	}
}

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.userOrder = append(s.userOrder, u.ID)
	}
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) ListUsers() ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		res = append(res, s.users[id])
	}
	return res, nil
}

func (s *MemoryStore) UpdateUserRole(id string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	u.Role = role
	s.users[id] = u
	return nil
}

func (s *MemoryStore) SaveExperiment(e domain.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range e.Sessions {
		s.sessions[sess.ID] = copySession(sess)
	}
	exp := e
	exp.Sessions = nil
	s.experiments[e.ID] = exp
	return nil
}

func (s *MemoryStore) UpdateExperiment(e domain.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.experiments[e.ID]
	if !ok {
		return fmt.Errorf("experiment %s not found", e.ID)
	}

	// Stage everything first so a session failure leaves the experiment
	// untouched, mirroring the transactional SQL path.
	staged := make(map[string]domain.Session, len(e.Sessions))
	for _, sess := range e.Sessions {
		if s.FailSessionSave != "" && s.FailSessionSave == sess.ID {
			return fmt.Errorf("save session %s: injected failure", sess.ID)
		}
		staged[sess.ID] = copySession(sess)
	}

	stored.Title = e.Title
	stored.Description = e.Description
	stored.Status = e.Status
	s.experiments[e.ID] = stored
	for id, sess := range staged {
		s.sessions[id] = sess
	}
	return nil
}

func (s *MemoryStore) ListExperiments(actor domain.User) ([]domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.Experiment, 0, len(s.experiments))
	for _, e := range s.experiments {
		if actor.Role != domain.RoleAdmin && e.UserID != actor.ID {
			continue
		}
		res = append(res, s.experimentWithSessionsLocked(e))
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].StartDate != res[j].StartDate {
			return res[i].StartDate > res[j].StartDate
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *MemoryStore) GetExperiment(id string) (domain.Experiment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experiments[id]
	if !ok {
		return domain.Experiment{}, false, nil
	}
	return s.experimentWithSessionsLocked(e), true, nil
}

func (s *MemoryStore) DeleteExperiment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, sess := range s.sessions {
		if sess.ExperimentID == id {
			delete(s.sessions, sid)
		}
	}
	delete(s.experiments, id)
	return nil
}

func (s *MemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) SaveInvite(i domain.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[i.Code] = i
	return nil
}

func (s *MemoryStore) GetInvite(code string) (domain.Invite, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.invites[code]
	return i, ok, nil
}

func (s *MemoryStore) DeleteInvite(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invites, code)
	return nil
}

func (s *MemoryStore) experimentWithSessionsLocked(e domain.Experiment) domain.Experiment {
	exp := e
	exp.Sessions = []domain.Session{}
	for _, sess := range s.sessions {
		if sess.ExperimentID == e.ID {
			exp.Sessions = append(exp.Sessions, copySession(sess))
		}
	}
	sort.SliceStable(exp.Sessions, func(i, j int) bool {
		if exp.Sessions[i].Date != exp.Sessions[j].Date {
			return exp.Sessions[i].Date > exp.Sessions[j].Date
		}
		return exp.Sessions[i].ID < exp.Sessions[j].ID
	})
	return exp
}

func copySession(s domain.Session) domain.Session {
	c := s
	if s.Photos != nil {
		c.Photos = append([]string(nil), s.Photos...)
	}
	return c
}
