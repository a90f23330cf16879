package coordinator

import (
	"context"
	"strings"

	"eeglab/internal/util"
	"eeglab/pkg/domain"
)

// CreateExperiment persists the experiment form as a new experiment owned
// by the signed-in user. New experiments always start in PLANNING with
// today as the start date. While another action is in flight the request
// is ignored.
func (c *Coordinator) CreateExperiment(ctx context.Context) State {
	c.mu.Lock()
	user := c.state.CurrentUser
	if user == nil || c.state.ActionLoading {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	form := c.state.ExperimentForm
	if strings.TrimSpace(form.Title) == "" {
		c.state.Notice = "Title is required."
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.ActionLoading = true
	c.state.Notice = ""
	actor := *user
	c.mu.Unlock()

	exp := domain.Experiment{
		ID:          util.NewID(),
		UserID:      actor.ID,
		Title:       strings.TrimSpace(form.Title),
		Description: form.Description,
		StartDate:   c.now().Format("2006-01-02"),
		Status:      domain.StatusPlanning,
		Sessions:    []domain.Session{},
	}
	err := c.store.SaveExperiment(exp)

	return c.finishAction(gen, err, "Could not create the experiment.", ViewDashboard)
}

// BeginEditExperiment loads an experiment into the form buffer and opens
// the edit screen. Only the owner or an Admin may edit.
func (c *Coordinator) BeginEditExperiment(id string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.CurrentUser
	if user == nil {
		return c.snapshotLocked()
	}
	exp, ok := c.findExperimentLocked(id)
	if !ok || !canModify(*user, exp) {
		return c.snapshotLocked()
	}
	c.state.SelectedExperimentID = exp.ID
	c.state.ExperimentForm = ExperimentForm{
		Title:       exp.Title,
		Description: exp.Description,
		Status:      exp.Status,
	}
	c.state.View = ViewEditExperiment
	c.state.Notice = ""
	c.gen++
	return c.snapshotLocked()
}

// SaveExperiment writes the experiment form back to the selected
// experiment. The start date is immutable and sessions are untouched.
func (c *Coordinator) SaveExperiment(ctx context.Context) State {
	c.mu.Lock()
	user := c.state.CurrentUser
	exp, ok := c.selectedExperimentLocked()
	if user == nil || !ok || c.state.ActionLoading || !canModify(*user, exp) {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	form := c.state.ExperimentForm
	if strings.TrimSpace(form.Title) == "" {
		c.state.Notice = "Title is required."
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.ActionLoading = true
	c.state.Notice = ""
	c.mu.Unlock()

	exp.Title = strings.TrimSpace(form.Title)
	exp.Description = form.Description
	exp.Status = form.Status
	exp.Sessions = nil
	err := c.store.UpdateExperiment(exp)

	return c.finishAction(gen, err, "Could not update the experiment.", ViewExperimentDetails)
}

// DeleteExperiment removes the selected experiment and its sessions. The
// confirmed flag is the server-side half of the "really delete?" dialog;
// without it nothing happens.
func (c *Coordinator) DeleteExperiment(ctx context.Context, confirmed bool) State {
	c.mu.Lock()
	user := c.state.CurrentUser
	exp, ok := c.selectedExperimentLocked()
	if user == nil || !ok || !confirmed || c.state.ActionLoading || !canModify(*user, exp) {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.ActionLoading = true
	c.state.Notice = ""
	c.mu.Unlock()

	err := c.store.DeleteExperiment(exp.ID)

	return c.finishAction(gen, err, "Could not delete the experiment.", ViewDashboard)
}

// finishAction is the landing phase shared by the mutating actions: clear
// the in-flight flag, drop the result if the user navigated away while the
// store call ran, otherwise report the error or refresh and move on.
func (c *Coordinator) finishAction(gen uint64, err error, failNotice string, nextView View) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ActionLoading = false
	if c.gen != gen {
		return c.snapshotLocked()
	}
	if err != nil {
		c.logger.Error("action failed", "error", err)
		c.state.Notice = failNotice
		return c.snapshotLocked()
	}
	if err := c.refreshLocked(); err != nil {
		c.logger.Error("refresh after action failed", "error", err)
		c.state.Notice = "Could not refresh experiments."
		return c.snapshotLocked()
	}
	c.navigateLocked(nextView)
	return c.snapshotLocked()
}
