package coordinator

import "context"

// RequestProtocolAdvice asks the AI for protocol suggestions on the
// selected experiment. The call runs outside the lock; if the user
// navigates away before it lands, the text is dropped rather than pasted
// onto a screen it no longer belongs to. A request while one is already
// running is ignored.
func (c *Coordinator) RequestProtocolAdvice(ctx context.Context) State {
	c.mu.Lock()
	exp, ok := c.selectedExperimentLocked()
	if c.state.CurrentUser == nil || !ok || c.state.AILoading {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.AILoading = true
	c.state.AIResponse = ""
	c.mu.Unlock()

	advice := c.advisor.SuggestProtocols(ctx, exp)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AILoading = false
	if c.gen != gen {
		return c.snapshotLocked()
	}
	c.state.AIResponse = advice
	return c.snapshotLocked()
}

// SummarizeSession asks the AI to summarize one of the selected
// experiment's sessions for a lab report. Same stale-response rules as
// RequestProtocolAdvice.
func (c *Coordinator) SummarizeSession(ctx context.Context, sessionID string) State {
	c.mu.Lock()
	exp, ok := c.selectedExperimentLocked()
	if c.state.CurrentUser == nil || !ok || c.state.AILoading {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	session, found := selectSession(exp.Sessions, sessionID)
	if !found {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	gen := c.gen
	c.state.AILoading = true
	c.state.AIResponse = ""
	c.mu.Unlock()

	summary := c.advisor.SummarizeSession(ctx, exp, session)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AILoading = false
	if c.gen != gen {
		return c.snapshotLocked()
	}
	c.state.AIResponse = summary
	return c.snapshotLocked()
}
