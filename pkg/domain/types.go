package domain

import "time"

type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleResearcher Role = "Researcher"
)

type ExperimentStatus string

const (
	StatusPlanning  ExperimentStatus = "PLANNING"
	StatusOngoing   ExperimentStatus = "ONGOING"
	StatusCompleted ExperimentStatus = "COMPLETED"
	StatusArchived  ExperimentStatus = "ARCHIVED"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is a single EEG recording bound to exactly one experiment.
// Date is a calendar day in YYYY-MM-DD form; TechnicianName is captured
// from the creating user at creation time and never re-derived.
type Session struct {
	ID              string   `json:"id"`
	ExperimentID    string   `json:"experimentId"`
	SubjectID       string   `json:"subjectId"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"durationMinutes"`
	SamplingRate    int      `json:"samplingRate"`
	ChannelCount    int      `json:"channelCount"`
	Notes           string   `json:"notes"`
	TechnicianName  string   `json:"technicianName"`
	Photos          []string `json:"photos,omitempty"`
}

// Experiment owns an ordered-by-recency list of sessions. StartDate is
// assigned once at creation and immutable afterwards.
type Experiment struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	StartDate   string           `json:"startDate"`
	Status      ExperimentStatus `json:"status"`
	Sessions    []Session        `json:"sessions"`
}

// Invite grants its role to whoever redeems the code. All codes except the
// bootstrap code are single-use.
type Invite struct {
	Code      string    `json:"code"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
