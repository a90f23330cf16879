package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"eeglab/internal/invite"
	"eeglab/internal/storage"
	"eeglab/internal/store"
	"eeglab/pkg/domain"
)

// View names a screen of the client. Every transition goes through
// Navigate or one of the actions below, never by writing View directly.
type View string

const (
	ViewLogin             View = "LOGIN"
	ViewRegister          View = "REGISTER"
	ViewDashboard         View = "DASHBOARD"
	ViewExperimentDetails View = "EXPERIMENT_DETAILS"
	ViewCreateExperiment  View = "CREATE_EXPERIMENT"
	ViewEditExperiment    View = "EDIT_EXPERIMENT"
	ViewAddSession        View = "ADD_SESSION"
	ViewEditSession       View = "EDIT_SESSION"
	ViewManageUsers       View = "MANAGE_USERS"
)

// ExperimentForm is the buffered input of the create/edit experiment
// screens. It lives in State so a snapshot always shows what the screen
// would render.
type ExperimentForm struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Status      domain.ExperimentStatus `json:"status"`
}

// SessionForm is the buffered input of the add/edit session screens.
type SessionForm struct {
	SubjectID       string   `json:"subjectId"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"durationMinutes"`
	SamplingRate    int      `json:"samplingRate"`
	ChannelCount    int      `json:"channelCount"`
	Notes           string   `json:"notes"`
	ExistingPhotos  []string `json:"existingPhotos,omitempty"`
}

// State is the full client state. Handlers return a snapshot of it after
// every action so the frontend renders exactly what the server decided.
type State struct {
	Generation           uint64              `json:"generation"`
	View                 View                `json:"view"`
	CurrentUser          *domain.User        `json:"currentUser,omitempty"`
	Experiments          []domain.Experiment `json:"experiments"`
	Users                []domain.User       `json:"users,omitempty"`
	SelectedExperimentID string              `json:"selectedExperimentId,omitempty"`
	EditingSessionID     string              `json:"editingSessionId,omitempty"`
	ExperimentForm       ExperimentForm      `json:"experimentForm"`
	SessionForm          SessionForm         `json:"sessionForm"`
	AIResponse           string              `json:"aiResponse,omitempty"`
	AILoading            bool                `json:"aiLoading"`
	ActionLoading        bool                `json:"actionLoading"`
	GeneratedInvite      string              `json:"generatedInvite,omitempty"`
	Notice               string              `json:"notice,omitempty"`
}

// Advisor produces AI texts for the experiment screens. Implementations
// never fail; they degrade to fallback texts instead.
type Advisor interface {
	SuggestProtocols(ctx context.Context, e domain.Experiment) string
	SummarizeSession(ctx context.Context, e domain.Experiment, s domain.Session) string
}

// PhotoUploader stores session photos and returns their public URLs.
type PhotoUploader interface {
	UploadSessionPhotos(ctx context.Context, userID, experimentID, sessionID string, uploads []storage.PhotoUpload) ([]string, error)
}

// Deps wires a Coordinator to its collaborators.
type Deps struct {
	Store   store.Store
	Gate    *invite.Gate
	Advisor Advisor
	Photos  PhotoUploader
	Logger  *slog.Logger
	Now     func() time.Time
}

// Coordinator owns one client's state. Quick actions mutate under the
// mutex; slow ones (store round-trips, AI calls, uploads) release it for
// the I/O phase and stamp a generation token first. If the generation
// moved while they were out, the late result is discarded instead of
// clobbering whatever screen the user navigated to.
type Coordinator struct {
	mu    sync.Mutex
	state State
	gen   uint64

	store   store.Store
	gate    *invite.Gate
	advisor Advisor
	photos  PhotoUploader
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a coordinator showing the login screen.
func New(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		state: State{
			View:        ViewLogin,
			Experiments: []domain.Experiment{},
		},
		store:   deps.Store,
		gate:    deps.Gate,
		advisor: deps.Advisor,
		photos:  deps.Photos,
		logger:  logger,
		now:     now,
	}
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Navigate switches screens. Transitions carry their side effects:
// entering a create screen resets its form, returning to the dashboard
// drops the selection and any AI text, and the user-management screen is
// refused to non-Admins.
func (c *Coordinator) Navigate(view View) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navigateLocked(view)
	return c.snapshotLocked()
}

// SelectExperiment opens the details screen for one of the visible
// experiments. Unknown ids are ignored.
func (c *Coordinator) SelectExperiment(id string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.CurrentUser == nil {
		return c.snapshotLocked()
	}
	if _, ok := c.findExperimentLocked(id); !ok {
		return c.snapshotLocked()
	}
	c.state.SelectedExperimentID = id
	c.state.EditingSessionID = ""
	c.state.AIResponse = ""
	c.state.Notice = ""
	c.state.View = ViewExperimentDetails
	c.gen++
	return c.snapshotLocked()
}

// SetExperimentForm replaces the experiment form buffer.
func (c *Coordinator) SetExperimentForm(f ExperimentForm) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ExperimentForm = f
	return c.snapshotLocked()
}

// SetSessionForm replaces the session form buffer. Existing photos are
// kept server-side; the caller cannot invent new ones through the form.
func (c *Coordinator) SetSessionForm(f SessionForm) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.ExistingPhotos = c.state.SessionForm.ExistingPhotos
	c.state.SessionForm = f
	return c.snapshotLocked()
}

func (c *Coordinator) navigateLocked(view View) {
	user := c.state.CurrentUser
	if user == nil {
		if view != ViewLogin && view != ViewRegister {
			return
		}
	} else if view == ViewLogin || view == ViewRegister {
		return
	}

	switch view {
	case ViewCreateExperiment:
		c.state.ExperimentForm = ExperimentForm{Status: domain.StatusPlanning}
	case ViewAddSession:
		if c.state.SelectedExperimentID == "" {
			return
		}
		c.state.SessionForm = c.defaultSessionForm()
		c.state.EditingSessionID = ""
	case ViewDashboard:
		c.state.SelectedExperimentID = ""
		c.state.EditingSessionID = ""
		c.state.AIResponse = ""
	case ViewManageUsers:
		if user.Role != domain.RoleAdmin {
			return
		}
		users, err := c.store.ListUsers()
		if err != nil {
			c.logger.Error("list users failed", "error", err)
			c.state.Notice = "Could not load users."
			return
		}
		c.state.Users = users
	}

	c.state.View = view
	c.state.Notice = ""
	c.gen++
}

func (c *Coordinator) defaultSessionForm() SessionForm {
	return SessionForm{
		Date:            c.now().Format("2006-01-02"),
		DurationMinutes: 30,
		SamplingRate:    512,
		ChannelCount:    32,
	}
}

func (c *Coordinator) snapshotLocked() State {
	s := c.state
	s.Generation = c.gen
	return s
}

func (c *Coordinator) findExperimentLocked(id string) (domain.Experiment, bool) {
	for _, e := range c.state.Experiments {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Experiment{}, false
}

func (c *Coordinator) selectedExperimentLocked() (domain.Experiment, bool) {
	if c.state.SelectedExperimentID == "" {
		return domain.Experiment{}, false
	}
	return c.findExperimentLocked(c.state.SelectedExperimentID)
}

func canModify(u domain.User, e domain.Experiment) bool {
	return u.Role == domain.RoleAdmin || e.UserID == u.ID
}

// loadExperimentsLocked refreshes the experiment list for the signed-in
// user. Callers hold the mutex.
func (c *Coordinator) loadExperimentsLocked() error {
	if c.state.CurrentUser == nil {
		return nil
	}
	exps, err := c.store.ListExperiments(*c.state.CurrentUser)
	if err != nil {
		return err
	}
	c.state.Experiments = exps
	return nil
}

// refreshLocked reloads everything a mutation can invalidate: the
// experiment list and, for Admins, the user list.
func (c *Coordinator) refreshLocked() error {
	if err := c.loadExperimentsLocked(); err != nil {
		return err
	}
	user := c.state.CurrentUser
	if user == nil || user.Role != domain.RoleAdmin {
		return nil
	}
	users, err := c.store.ListUsers()
	if err != nil {
		return err
	}
	c.state.Users = users
	return nil
}
