package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"eeglab/pkg/ai"
	"eeglab/pkg/domain"
)

// Fallback texts shown when the model is unreachable or returns nothing.
// These are user-facing strings, not errors.
const (
	protocolFallback  = "Could not suggest protocols."
	protocolEmptyText = "No protocols suggested."
	summaryFallback   = "Could not generate summary at this time."
	summaryEmptyText  = "No summary generated."
)

const protocolSystemPrompt = "You are an assistant for an EEG research lab. " +
	"Given an experiment description, suggest suitable EEG experimental protocols. " +
	"Answer with a short, concrete list a researcher can act on."

const summarySystemPrompt = "You are an assistant for an EEG research lab. " +
	"Summarize the given recording session notes for a lab report in a few sentences. " +
	"Keep the technical parameters accurate."

// Advisor produces AI protocol suggestions and session summaries. It never
// returns an error: model failures degrade to fixed fallback texts so the
// requesting screen always has something to show.
type Advisor struct {
	generator ai.TextGenerator
	logger    *slog.Logger
}

// New builds an advisor over a text generator. A nil generator is allowed
// and behaves like a permanently failing model.
func New(generator ai.TextGenerator, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{generator: generator, logger: logger}
}

// SuggestProtocols asks the model for protocol suggestions for an experiment.
func (a *Advisor) SuggestProtocols(ctx context.Context, e domain.Experiment) string {
	prompt := fmt.Sprintf(
		"Suggest suitable EEG experimental protocols for the following experiment.\n\nTitle: %s\nDescription: %s",
		e.Title, e.Description,
	)
	return a.generate(ctx, protocolSystemPrompt, prompt, protocolFallback, protocolEmptyText)
}

// SummarizeSession asks the model for a lab-report summary of one session.
func (a *Advisor) SummarizeSession(ctx context.Context, e domain.Experiment, s domain.Session) string {
	prompt := fmt.Sprintf(
		"Summarize this EEG recording session for a lab report.\n\n"+
			"Experiment: %s\nSubject: %s\nDate: %s\nDuration: %d minutes\n"+
			"Sampling rate: %d Hz\nChannels: %d\nNotes: %s",
		e.Title, s.SubjectID, s.Date, s.DurationMinutes, s.SamplingRate, s.ChannelCount, s.Notes,
	)
	return a.generate(ctx, summarySystemPrompt, prompt, summaryFallback, summaryEmptyText)
}

func (a *Advisor) generate(ctx context.Context, system, user, fallback, emptyText string) string {
	if a.generator == nil {
		return fallback
	}
	text, err := a.generator.GenerateText(ctx, system, user)
	if err != nil {
		a.logger.Warn("ai generation failed", "error", err)
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return emptyText
	}
	return text
}
