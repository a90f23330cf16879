package coordinator

import (
	"context"
	"strings"

	"eeglab/internal/storage"
	"eeglab/internal/util"
	"eeglab/pkg/domain"
)

// CreateSession records a new session on the selected experiment from the
// session form, uploading any submitted photos first. The signed-in user
// is recorded as the technician.
func (c *Coordinator) CreateSession(ctx context.Context, uploads []storage.PhotoUpload) State {
	c.mu.Lock()
	user := c.state.CurrentUser
	exp, ok := c.selectedExperimentLocked()
	if user == nil || !ok || c.state.ActionLoading || !canModify(*user, exp) {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	form := c.state.SessionForm
	if strings.TrimSpace(form.SubjectID) == "" {
		c.state.Notice = "Subject ID is required."
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.ActionLoading = true
	c.state.Notice = ""
	actor := *user
	c.mu.Unlock()

	session := sessionFromForm(form, util.NewID(), exp.ID)
	session.TechnicianName = actor.Name

	urls, err := c.uploadPhotos(ctx, actor.ID, exp.ID, session.ID, uploads)
	if err != nil {
		return c.finishAction(gen, err, "Could not upload the photos.", ViewExperimentDetails)
	}
	session.Photos = urls

	exp.Sessions = []domain.Session{session}
	err = c.store.UpdateExperiment(exp)
	return c.finishAction(gen, err, "Could not save the session.", ViewExperimentDetails)
}

// BeginEditSession loads one of the selected experiment's sessions into
// the form buffer and opens the edit screen. The photo buffer is reset to
// what is actually stored, so photos staged on an abandoned form never
// leak into another session.
func (c *Coordinator) BeginEditSession(sessionID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	user := c.state.CurrentUser
	exp, ok := c.selectedExperimentLocked()
	if user == nil || !ok || !canModify(*user, exp) {
		return c.snapshotLocked()
	}
	session, found := selectSession(exp.Sessions, sessionID)
	if !found {
		return c.snapshotLocked()
	}
	c.state.EditingSessionID = session.ID
	c.state.SessionForm = SessionForm{
		SubjectID:       session.SubjectID,
		Date:            session.Date,
		DurationMinutes: session.DurationMinutes,
		SamplingRate:    session.SamplingRate,
		ChannelCount:    session.ChannelCount,
		Notes:           session.Notes,
		ExistingPhotos:  append([]string(nil), session.Photos...),
	}
	c.state.View = ViewEditSession
	c.state.Notice = ""
	c.gen++
	return c.snapshotLocked()
}

// SaveSession writes the session form back to the session being edited.
// Newly uploaded photos are appended to the ones already stored; the
// technician name stays whoever originally ran the session.
func (c *Coordinator) SaveSession(ctx context.Context, uploads []storage.PhotoUpload) State {
	c.mu.Lock()
	user := c.state.CurrentUser
	exp, ok := c.selectedExperimentLocked()
	if user == nil || !ok || c.state.ActionLoading || !canModify(*user, exp) {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	current, found := selectSession(exp.Sessions, c.state.EditingSessionID)
	if !found {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	form := c.state.SessionForm
	if strings.TrimSpace(form.SubjectID) == "" {
		c.state.Notice = "Subject ID is required."
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.ActionLoading = true
	c.state.Notice = ""
	actor := *user
	c.mu.Unlock()

	session := sessionFromForm(form, current.ID, exp.ID)
	session.TechnicianName = current.TechnicianName
	session.Photos = append([]string(nil), form.ExistingPhotos...)

	urls, err := c.uploadPhotos(ctx, actor.ID, exp.ID, session.ID, uploads)
	if err != nil {
		return c.finishAction(gen, err, "Could not upload the photos.", ViewExperimentDetails)
	}
	session.Photos = append(session.Photos, urls...)

	exp.Sessions = []domain.Session{session}
	err = c.store.UpdateExperiment(exp)
	return c.finishAction(gen, err, "Could not save the session.", ViewExperimentDetails)
}

// DeleteSession removes one session after confirmation.
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string, confirmed bool) State {
	c.mu.Lock()
	user := c.state.CurrentUser
	exp, ok := c.selectedExperimentLocked()
	if user == nil || !ok || !confirmed || c.state.ActionLoading || !canModify(*user, exp) {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	if _, found := selectSession(exp.Sessions, sessionID); !found {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.ActionLoading = true
	c.state.Notice = ""
	c.mu.Unlock()

	err := c.store.DeleteSession(sessionID)
	return c.finishAction(gen, err, "Could not delete the session.", ViewExperimentDetails)
}

func (c *Coordinator) uploadPhotos(ctx context.Context, userID, experimentID, sessionID string, uploads []storage.PhotoUpload) ([]string, error) {
	if len(uploads) == 0 || c.photos == nil {
		return nil, nil
	}
	return c.photos.UploadSessionPhotos(ctx, userID, experimentID, sessionID, uploads)
}

func selectSession(sessions []domain.Session, id string) (domain.Session, bool) {
	for _, s := range sessions {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Session{}, false
}

func sessionFromForm(form SessionForm, id, experimentID string) domain.Session {
	return domain.Session{
		ID:              id,
		ExperimentID:    experimentID,
		SubjectID:       strings.TrimSpace(form.SubjectID),
		Date:            form.Date,
		DurationMinutes: form.DurationMinutes,
		SamplingRate:    form.SamplingRate,
		ChannelCount:    form.ChannelCount,
		Notes:           form.Notes,
	}
}
