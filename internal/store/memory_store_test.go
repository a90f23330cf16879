package store

import (
	"testing"
	"time"

	"eeglab/pkg/domain"
)

func seedUser(t *testing.T, s *MemoryStore, id, email string, role domain.Role) domain.User {
	t.Helper()
	u := domain.User{ID: id, Email: email, Name: "User " + id, Role: role, CreatedAt: time.Now().UTC()}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save user %s: %v", id, err)
	}
	return u
}

func TestGetUserByEmailCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "u-1", "Ada@Lab.example", domain.RoleAdmin)

	got, ok, err := s.GetUserByEmail("ada@lab.example")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !ok || got.ID != "u-1" {
		t.Fatalf("expected u-1, got ok=%v user=%+v", ok, got)
	}

	_, ok, err = s.GetUserByEmail("nobody@lab.example")
	if err != nil {
		t.Fatalf("get missing user: %v", err)
	}
	if ok {
		t.Fatal("expected not found for unknown email")
	}
}

func TestListUsersInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "u-1", "a@lab.example", domain.RoleAdmin)
	seedUser(t, s, "u-2", "b@lab.example", domain.RoleResearcher)
	seedUser(t, s, "u-3", "c@lab.example", domain.RoleResearcher)

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	for i, want := range []string{"u-1", "u-2", "u-3"} {
		if users[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, users[i].ID)
		}
	}
}

func TestUpdateUserRole(t *testing.T) {
	s := NewMemoryStore()
	seedUser(t, s, "u-1", "a@lab.example", domain.RoleResearcher)

	if err := s.UpdateUserRole("u-1", domain.RoleAdmin); err != nil {
		t.Fatalf("update role: %v", err)
	}
	got, _, _ := s.GetUserByID("u-1")
	if got.Role != domain.RoleAdmin {
		t.Fatalf("expected Admin, got %s", got.Role)
	}

	if err := s.UpdateUserRole("missing", domain.RoleAdmin); err == nil {
		t.Fatal("expected error updating unknown user")
	}
}

func TestListExperimentsScopedAndOrdered(t *testing.T) {
	s := NewMemoryStore()
	admin := seedUser(t, s, "u-admin", "admin@lab.example", domain.RoleAdmin)
	res := seedUser(t, s, "u-res", "res@lab.example", domain.RoleResearcher)

	exps := []domain.Experiment{
		{ID: "e-1", UserID: res.ID, Title: "Sleep Study", StartDate: "2025-01-10", Status: domain.StatusOngoing},
		{ID: "e-2", UserID: admin.ID, Title: "Memory Study", StartDate: "2025-03-01", Status: domain.StatusPlanning},
		{ID: "e-3", UserID: res.ID, Title: "Attention Study", StartDate: "2025-02-15", Status: domain.StatusCompleted},
	}
	for _, e := range exps {
		if err := s.SaveExperiment(e); err != nil {
			t.Fatalf("save experiment %s: %v", e.ID, err)
		}
	}

	all, err := s.ListExperiments(admin)
	if err != nil {
		t.Fatalf("list as admin: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("admin expected 3 experiments, got %d", len(all))
	}
	for i, want := range []string{"e-2", "e-3", "e-1"} {
		if all[i].ID != want {
			t.Fatalf("admin position %d: expected %s, got %s", i, want, all[i].ID)
		}
	}

	own, err := s.ListExperiments(res)
	if err != nil {
		t.Fatalf("list as researcher: %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("researcher expected 2 experiments, got %d", len(own))
	}
	for _, e := range own {
		if e.UserID != res.ID {
			t.Fatalf("researcher saw foreign experiment %s owned by %s", e.ID, e.UserID)
		}
	}
}

func TestGetExperimentSessionsMostRecentFirst(t *testing.T) {
	s := NewMemoryStore()
	exp := domain.Experiment{
		ID: "e-1", UserID: "u-1", Title: "Sleep Study",
		StartDate: "2025-01-10", Status: domain.StatusOngoing,
		Sessions: []domain.Session{
			{ID: "s-1", ExperimentID: "e-1", SubjectID: "SUBJ-01", Date: "2025-01-11"},
			{ID: "s-2", ExperimentID: "e-1", SubjectID: "SUBJ-02", Date: "2025-01-20"},
			{ID: "s-3", ExperimentID: "e-1", SubjectID: "SUBJ-03", Date: "2025-01-15"},
		},
	}
	if err := s.SaveExperiment(exp); err != nil {
		t.Fatalf("save experiment: %v", err)
	}

	got, ok, err := s.GetExperiment("e-1")
	if err != nil || !ok {
		t.Fatalf("get experiment: ok=%v err=%v", ok, err)
	}
	for i, want := range []string{"s-2", "s-3", "s-1"} {
		if got.Sessions[i].ID != want {
			t.Fatalf("session position %d: expected %s, got %s", i, want, got.Sessions[i].ID)
		}
	}
}

func TestUpdateExperimentUpsertsSessions(t *testing.T) {
	s := NewMemoryStore()
	exp := domain.Experiment{
		ID: "e-1", UserID: "u-1", Title: "Sleep Study",
		StartDate: "2025-01-10", Status: domain.StatusPlanning,
		Sessions: []domain.Session{
			{ID: "s-1", ExperimentID: "e-1", SubjectID: "SUBJ-01", Date: "2025-01-11", DurationMinutes: 30},
			{ID: "s-2", ExperimentID: "e-1", SubjectID: "SUBJ-02", Date: "2025-01-12", DurationMinutes: 30},
		},
	}
	if err := s.SaveExperiment(exp); err != nil {
		t.Fatalf("save experiment: %v", err)
	}

	// Submit a superset: one rewritten session, one new, s-2 absent.
	update := domain.Experiment{
		ID: "e-1", UserID: "u-1", Title: "Sleep Study v2",
		StartDate: "2099-12-31", Status: domain.StatusOngoing,
		Sessions: []domain.Session{
			{ID: "s-1", ExperimentID: "e-1", SubjectID: "SUBJ-01", Date: "2025-01-11", DurationMinutes: 45},
			{ID: "s-3", ExperimentID: "e-1", SubjectID: "SUBJ-03", Date: "2025-01-13", DurationMinutes: 30},
		},
	}
	if err := s.UpdateExperiment(update); err != nil {
		t.Fatalf("update experiment: %v", err)
	}

	got, _, _ := s.GetExperiment("e-1")
	if got.Title != "Sleep Study v2" || got.Status != domain.StatusOngoing {
		t.Fatalf("scalar fields not rewritten: %+v", got)
	}
	if got.StartDate != "2025-01-10" {
		t.Fatalf("start date must be immutable, got %s", got.StartDate)
	}
	if len(got.Sessions) != 3 {
		t.Fatalf("expected 3 sessions after upsert, got %d", len(got.Sessions))
	}
	byID := map[string]domain.Session{}
	for _, sess := range got.Sessions {
		byID[sess.ID] = sess
	}
	if byID["s-1"].DurationMinutes != 45 {
		t.Fatalf("s-1 not rewritten: %+v", byID["s-1"])
	}
	if _, ok := byID["s-2"]; !ok {
		t.Fatal("s-2 was absent from the update and must survive")
	}
	if _, ok := byID["s-3"]; !ok {
		t.Fatal("s-3 not inserted")
	}
}

func TestUpdateExperimentRollsBackOnSessionFailure(t *testing.T) {
	s := NewMemoryStore()
	exp := domain.Experiment{
		ID: "e-1", UserID: "u-1", Title: "Sleep Study",
		StartDate: "2025-01-10", Status: domain.StatusPlanning,
	}
	if err := s.SaveExperiment(exp); err != nil {
		t.Fatalf("save experiment: %v", err)
	}

	s.FailSessionSave = "s-bad"
	update := domain.Experiment{
		ID: "e-1", UserID: "u-1", Title: "Renamed", Status: domain.StatusOngoing,
		Sessions: []domain.Session{
			{ID: "s-ok", ExperimentID: "e-1", SubjectID: "SUBJ-01", Date: "2025-01-11"},
			{ID: "s-bad", ExperimentID: "e-1", SubjectID: "SUBJ-02", Date: "2025-01-12"},
		},
	}
	if err := s.UpdateExperiment(update); err == nil {
		t.Fatal("expected injected session failure")
	}

	got, _, _ := s.GetExperiment("e-1")
	if got.Title != "Sleep Study" || got.Status != domain.StatusPlanning {
		t.Fatalf("scalar update must roll back with the failed session, got %+v", got)
	}
	if len(got.Sessions) != 0 {
		t.Fatalf("no sessions should persist, got %d", len(got.Sessions))
	}
}

func TestDeleteExperimentCascades(t *testing.T) {
	s := NewMemoryStore()
	exp := domain.Experiment{
		ID: "e-1", UserID: "u-1", Title: "Sleep Study", StartDate: "2025-01-10",
		Sessions: []domain.Session{
			{ID: "s-1", ExperimentID: "e-1", SubjectID: "SUBJ-01", Date: "2025-01-11"},
		},
	}
	if err := s.SaveExperiment(exp); err != nil {
		t.Fatalf("save experiment: %v", err)
	}
	if err := s.DeleteExperiment("e-1"); err != nil {
		t.Fatalf("delete experiment: %v", err)
	}
	if _, ok, _ := s.GetExperiment("e-1"); ok {
		t.Fatal("experiment should be gone")
	}
	if len(s.sessions) != 0 {
		t.Fatalf("sessions should cascade, %d left", len(s.sessions))
	}
}

func TestInviteLifecycle(t *testing.T) {
	s := NewMemoryStore()
	inv := domain.Invite{Code: "INV-ABC123", Role: domain.RoleResearcher, CreatedAt: time.Now().UTC()}
	if err := s.SaveInvite(inv); err != nil {
		t.Fatalf("save invite: %v", err)
	}
	got, ok, err := s.GetInvite("INV-ABC123")
	if err != nil || !ok {
		t.Fatalf("get invite: ok=%v err=%v", ok, err)
	}
	if got.Role != domain.RoleResearcher {
		t.Fatalf("expected Researcher invite, got %s", got.Role)
	}
	if err := s.DeleteInvite("INV-ABC123"); err != nil {
		t.Fatalf("delete invite: %v", err)
	}
	if _, ok, _ := s.GetInvite("INV-ABC123"); ok {
		t.Fatal("invite should be gone after redemption")
	}
}

func TestStoredPhotosAreCopied(t *testing.T) {
	s := NewMemoryStore()
	photos := []string{"http://minio/p1.jpg"}
	exp := domain.Experiment{
		ID: "e-1", UserID: "u-1", Title: "Sleep Study", StartDate: "2025-01-10",
		Sessions: []domain.Session{
			{ID: "s-1", ExperimentID: "e-1", SubjectID: "SUBJ-01", Date: "2025-01-11", Photos: photos},
		},
	}
	if err := s.SaveExperiment(exp); err != nil {
		t.Fatalf("save experiment: %v", err)
	}
	photos[0] = "mutated"

	got, _, _ := s.GetExperiment("e-1")
	if got.Sessions[0].Photos[0] != "http://minio/p1.jpg" {
		t.Fatalf("stored photos aliased caller slice: %v", got.Sessions[0].Photos)
	}
}
