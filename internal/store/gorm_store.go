package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eeglab/pkg/domain"
)

// sessionUpsertColumns are the session fields rewritten on conflict when an
// experiment update upserts its session list.
var sessionUpsertColumns = []string{
	"subject_id", "date", "duration_minutes", "sampling_rate",
	"channel_count", "notes", "technician_name", "photos",
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &ExperimentModel{}, &SessionModel{}, &InviteModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveUser inserts a newly registered user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Create(&model).Error
}

// GetUserByEmail looks up a user by email, case-insensitively.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("lower(email) = lower(?)", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UpdateUserRole rewrites a user's role.
func (s *GormStore) UpdateUserRole(id string, role domain.Role) error {
	return s.db.Model(&UserModel{}).Where("id = ?", id).Update("role", string(role)).Error
}

// SaveExperiment inserts an experiment and any sessions it carries.
func (s *GormStore) SaveExperiment(e domain.Experiment) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := experimentToModel(e)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, sess := range e.Sessions {
			sm, err := sessionToModel(sess)
			if err != nil {
				return err
			}
			if err := tx.Create(&sm).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateExperiment rewrites the experiment's mutable scalar fields and
// upserts its submitted session list, all inside one transaction so a
// session failure rolls back the scalar update too. Start date is never
// rewritten. Sessions absent from the list are left untouched.
func (s *GormStore) UpdateExperiment(e domain.Experiment) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&ExperimentModel{}).Where("id = ?", e.ID).Updates(map[string]any{
			"title":       e.Title,
			"description": e.Description,
			"status":      string(e.Status),
		}).Error
		if err != nil {
			return err
		}
		for _, sess := range e.Sessions {
			sm, err := sessionToModel(sess)
			if err != nil {
				return err
			}
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(sessionUpsertColumns),
			}).Create(&sm).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListExperiments returns the actor's visible experiments ordered by start
// date, most recent first, with each experiment's sessions loaded most
// recent first.
func (s *GormStore) ListExperiments(actor domain.User) ([]domain.Experiment, error) {
	var models []ExperimentModel
	tx := s.db.Order("start_date DESC, id ASC")
	if actor.Role != domain.RoleAdmin {
		tx = tx.Where("user_id = ?", actor.ID)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return []domain.Experiment{}, nil
	}

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var sessModels []SessionModel
	if err := s.db.Where("experiment_id IN ?", ids).Order("date DESC, id ASC").Find(&sessModels).Error; err != nil {
		return nil, err
	}
	byExperiment := make(map[string][]domain.Session, len(ids))
	for _, sm := range sessModels {
		byExperiment[sm.ExperimentID] = append(byExperiment[sm.ExperimentID], sessionFromModel(sm))
	}

	res := make([]domain.Experiment, 0, len(models))
	for _, m := range models {
		exp := experimentFromModel(m)
		if sessions := byExperiment[m.ID]; sessions != nil {
			exp.Sessions = sessions
		}
		res = append(res, exp)
	}
	return res, nil
}

// GetExperiment retrieves one experiment with its sessions.
func (s *GormStore) GetExperiment(id string) (domain.Experiment, bool, error) {
	var model ExperimentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Experiment{}, false, nil
		}
		return domain.Experiment{}, false, err
	}
	var sessModels []SessionModel
	if err := s.db.Where("experiment_id = ?", id).Order("date DESC, id ASC").Find(&sessModels).Error; err != nil {
		return domain.Experiment{}, false, err
	}
	exp := experimentFromModel(model)
	for _, sm := range sessModels {
		exp.Sessions = append(exp.Sessions, sessionFromModel(sm))
	}
	return exp, true, nil
}

// DeleteExperiment removes an experiment and cascades to its sessions.
func (s *GormStore) DeleteExperiment(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("experiment_id = ?", id).Delete(&SessionModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&ExperimentModel{}).Error
	})
}

// DeleteSession removes a single session by id.
func (s *GormStore) DeleteSession(id string) error {
	return s.db.Where("id = ?", id).Delete(&SessionModel{}).Error
}

// SaveInvite persists a generated invite code.
func (s *GormStore) SaveInvite(i domain.Invite) error {
	model := inviteToModel(i)
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// GetInvite looks up an invite by code.
func (s *GormStore) GetInvite(code string) (domain.Invite, bool, error) {
	var model InviteModel
	if err := s.db.First(&model, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Invite{}, false, nil
		}
		return domain.Invite{}, false, err
	}
	return inviteFromModel(model), true, nil
}

// DeleteInvite removes a redeemed invite code.
func (s *GormStore) DeleteInvite(code string) error {
	return s.db.Where("code = ?", code).Delete(&InviteModel{}).Error
}
