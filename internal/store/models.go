package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"eeglab/pkg/domain"
)

// GORM models used for persistence. Table names follow the wire shapes
// users/experiments/sessions/invites rather than gorm's pluralized defaults.

type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	PasswordHash string
	Role         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type ExperimentModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index"`
	Title       string `gorm:"not null"`
	Description string
	Status      string `gorm:"not null"`
	StartDate   string `gorm:"not null;index"`
}

func (ExperimentModel) TableName() string { return "experiments" }

type SessionModel struct {
	ID              string `gorm:"primaryKey"`
	ExperimentID    string `gorm:"not null;index"`
	SubjectID       string `gorm:"not null"`
	Date            string `gorm:"not null"`
	DurationMinutes int    `gorm:"not null"`
	SamplingRate    int    `gorm:"not null"`
	ChannelCount    int    `gorm:"not null"`
	Notes           string
	TechnicianName  string
	Photos          datatypes.JSON `gorm:"type:jsonb"`
}

func (SessionModel) TableName() string { return "sessions" }

type InviteModel struct {
	Code      string    `gorm:"primaryKey"`
	Role      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (InviteModel) TableName() string { return "invites" }

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}

func experimentToModel(e domain.Experiment) ExperimentModel {
	return ExperimentModel{
		ID:          e.ID,
		UserID:      e.UserID,
		Title:       e.Title,
		Description: e.Description,
		Status:      string(e.Status),
		StartDate:   e.StartDate,
	}
}

func experimentFromModel(m ExperimentModel) domain.Experiment {
	return domain.Experiment{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		Description: m.Description,
		Status:      domain.ExperimentStatus(m.Status),
		StartDate:   m.StartDate,
		Sessions:    []domain.Session{},
	}
}

func sessionToModel(s domain.Session) (SessionModel, error) {
	var photos datatypes.JSON
	if len(s.Photos) > 0 {
		raw, err := json.Marshal(s.Photos)
		if err != nil {
			return SessionModel{}, err
		}
		photos = datatypes.JSON(raw)
	}
	return SessionModel{
		ID:              s.ID,
		ExperimentID:    s.ExperimentID,
		SubjectID:       s.SubjectID,
		Date:            s.Date,
		DurationMinutes: s.DurationMinutes,
		SamplingRate:    s.SamplingRate,
		ChannelCount:    s.ChannelCount,
		Notes:           s.Notes,
		TechnicianName:  s.TechnicianName,
		Photos:          photos,
	}, nil
}

func sessionFromModel(m SessionModel) domain.Session {
	var photos []string
	if len(m.Photos) > 0 {
		_ = json.Unmarshal(m.Photos, &photos)
	}
	return domain.Session{
		ID:              m.ID,
		ExperimentID:    m.ExperimentID,
		SubjectID:       m.SubjectID,
		Date:            m.Date,
		DurationMinutes: m.DurationMinutes,
		SamplingRate:    m.SamplingRate,
		ChannelCount:    m.ChannelCount,
		Notes:           m.Notes,
		TechnicianName:  m.TechnicianName,
		Photos:          photos,
	}
}

func inviteToModel(i domain.Invite) InviteModel {
	return InviteModel{Code: i.Code, Role: string(i.Role), CreatedAt: i.CreatedAt}
}

func inviteFromModel(m InviteModel) domain.Invite {
	return domain.Invite{Code: m.Code, Role: domain.Role(m.Role), CreatedAt: m.CreatedAt}
}
