package advisor

import (
	"context"
	"errors"
	"testing"

	"eeglab/pkg/domain"
)

type stubGenerator struct {
	text string
	err  error

	lastSystem string
	lastUser   string
}

func (s *stubGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.lastSystem = systemPrompt
	s.lastUser = userPrompt
	return s.text, s.err
}

var testExperiment = domain.Experiment{
	ID:          "e-1",
	Title:       "Memory Study",
	Description: "Working memory load under sleep deprivation",
}

func TestSuggestProtocolsReturnsModelText(t *testing.T) {
	gen := &stubGenerator{text: "Use an n-back paradigm with 64 channels."}
	a := New(gen, nil)

	got := a.SuggestProtocols(context.Background(), testExperiment)
	if got != "Use an n-back paradigm with 64 channels." {
		t.Fatalf("unexpected suggestion: %q", got)
	}
	if gen.lastUser == "" || gen.lastSystem == "" {
		t.Fatal("prompts not forwarded to generator")
	}
}

func TestSuggestProtocolsFallsBackOnError(t *testing.T) {
	a := New(&stubGenerator{err: errors.New("quota exceeded")}, nil)
	got := a.SuggestProtocols(context.Background(), testExperiment)
	if got != "Could not suggest protocols." {
		t.Fatalf("expected fallback text, got %q", got)
	}
}

func TestSuggestProtocolsEmptyResponse(t *testing.T) {
	a := New(&stubGenerator{text: "   \n"}, nil)
	got := a.SuggestProtocols(context.Background(), testExperiment)
	if got != "No protocols suggested." {
		t.Fatalf("expected empty-response text, got %q", got)
	}
}

func TestSuggestProtocolsNilGenerator(t *testing.T) {
	a := New(nil, nil)
	got := a.SuggestProtocols(context.Background(), testExperiment)
	if got != "Could not suggest protocols." {
		t.Fatalf("expected fallback text, got %q", got)
	}
}

func TestSummarizeSessionFallbacks(t *testing.T) {
	session := domain.Session{
		ID: "s-1", SubjectID: "SUBJ-01", Date: "2025-02-01",
		DurationMinutes: 30, SamplingRate: 512, ChannelCount: 32,
		Notes: "Subject reported drowsiness.",
	}

	a := New(&stubGenerator{err: errors.New("timeout")}, nil)
	if got := a.SummarizeSession(context.Background(), testExperiment, session); got != "Could not generate summary at this time." {
		t.Fatalf("expected fallback text, got %q", got)
	}

	a = New(&stubGenerator{text: ""}, nil)
	if got := a.SummarizeSession(context.Background(), testExperiment, session); got != "No summary generated." {
		t.Fatalf("expected empty-response text, got %q", got)
	}

	gen := &stubGenerator{text: "A 30-minute session at 512 Hz."}
	a = New(gen, nil)
	if got := a.SummarizeSession(context.Background(), testExperiment, session); got != "A 30-minute session at 512 Hz." {
		t.Fatalf("unexpected summary: %q", got)
	}
}
