package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidrag/internal/domain"
	"vidrag/internal/service"
)

type fakeChat struct {
	answer  service.Answer
	err     error
	history []domain.Message
}

func (f *fakeChat) Ask(_ context.Context, _ string, history []domain.Message) (service.Answer, error) {
	f.history = history
	return f.answer, f.err
}

func sampleAnswer() service.Answer {
	return service.Answer{
		Text:      "Nuclear is clean (1).",
		Citations: []domain.Citation{{Ordinal: 1, URL: "https://www.youtube.com/watch?v=abc&t=75"}},
		Groups: []domain.ContextGroup{{
			Center: domain.Metadata{VideoID: "abc", Title: "Energy", Timestamp: 75, Transcript: "Nuclear is clean. Coal is not."},
		}},
	}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func submit(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	next, _ = m.Update(cmd())
	return next.(Model)
}

func TestModel_AskAppendsTurnAndHistory(t *testing.T) {
	chat := &fakeChat{answer: sampleAnswer()}
	m := sized(t, New(chat, "Sam", time.Second))

	m = submit(t, m, "nuclear?")
	require.Len(t, m.turns, 1)
	assert.False(t, m.pending)
	assert.Equal(t, "1 source(s) cited.", m.status)
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "nuclear?"},
		{Role: domain.RoleAssistant, Content: "Nuclear is clean (1)."},
	}, m.history)

	m = submit(t, m, "and coal?")
	assert.Len(t, chat.history, 2)

	view := m.renderConversation()
	assert.Contains(t, view, "Nuclear is clean (1).")
	assert.Contains(t, view, "(1) Energy @ 01:15  https://www.youtube.com/watch?v=abc&t=75")
}

func TestModel_ErrorKeepsHistoryClean(t *testing.T) {
	chat := &fakeChat{err: errors.New("retrieval unavailable")}
	m := sized(t, New(chat, "", 0))
	m = submit(t, m, "hello")
	assert.Empty(t, m.history)
	assert.True(t, strings.HasPrefix(m.status, "Error:"))
	assert.Contains(t, m.renderConversation(), "retrieval unavailable")
}

func TestModel_EmptyInputIgnored(t *testing.T) {
	m := sized(t, New(&fakeChat{}, "", 0))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, next.(Model).pending)
}

func TestModel_SourcesToggle(t *testing.T) {
	m := sized(t, New(&fakeChat{answer: sampleAnswer()}, "", 0))
	m = submit(t, m, "nuclear")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.True(t, m.sources)
	assert.Contains(t, m.renderSources(), "Source 1/1  Energy @ 01:15")
}

func TestCitationLines_WithoutGroups(t *testing.T) {
	lines := citationLines(service.Answer{Citations: []domain.Citation{{Ordinal: 3, URL: "https://x.test/watch?v=q"}}})
	assert.Equal(t, []string{"(3) @ 00:00  https://x.test/watch?v=q&t=0"}, lines)
}
