package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vidrag/internal/citation"
	"vidrag/internal/domain"
	"vidrag/internal/service"
)

// ChatPort is the TUI-facing subset of the RAG service.
type ChatPort interface {
	Ask(ctx context.Context, question string, history []domain.Message) (service.Answer, error)
}

type turn struct {
	question string
	answer   service.Answer
	err      error
}

type answerMsg struct {
	turn
}

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	service  ChatPort
	speaker  string
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	history  []domain.Message
	status   string
	pending  bool
	sources  bool
	cursor   int
	ready    bool
}

// New creates a chat model. speaker labels the assistant's replies.
func New(svc ChatPort, speaker string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	if speaker == "" {
		speaker = "Speaker"
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return Model{
		service:  svc,
		speaker:  speaker,
		timeout:  timeout,
		input:    ti,
		viewport: vp,
		status:   "Ready. Tab toggles sources, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	history := append([]domain.Message(nil), m.history...)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		answer, err := m.service.Ask(ctx, question, history)
		return answerMsg{turn{question: question, answer: answer, err: err}}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around the transcript and input boxes
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		m.turns = append(m.turns, msg.turn)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = append(m.history,
				domain.Message{Role: domain.RoleUser, Content: msg.question},
				domain.Message{Role: domain.RoleAssistant, Content: msg.answer.Text},
			)
			m.status = fmt.Sprintf("%d source(s) cited.", len(msg.answer.Citations))
		}
		m.cursor = 0
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.pending {
				m.pending = true
				m.input.SetValue("")
				m.status = "Thinking..."
				return m, m.ask(q)
			}
			return m, nil
		case "tab":
			m.sources = !m.sources
			m.refresh()
			return m, nil
		case "down":
			if n := len(m.lastGroups()); m.sources && n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.refresh()
				return m, nil
			}
		case "up":
			if n := len(m.lastGroups()); m.sources && n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.refresh()
				return m, nil
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "Video Chat"
	if m.sources {
		title += " - sources"
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	body := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + body + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	if m.sources {
		m.viewport.SetContent(m.renderSources())
		return
	}
	m.viewport.SetContent(m.renderConversation())
}

func (m Model) lastGroups() []domain.ContextGroup {
	if len(m.turns) == 0 {
		return nil
	}
	return m.turns[len(m.turns)-1].answer.Groups
}

func (m Model) renderConversation() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(userStyle.Render("You: ") + t.question + "\n")
		if t.err != nil {
			b.WriteString(errorStyle.Render("error: " + t.err.Error()))
			continue
		}
		b.WriteString(speakerStyle.Render(m.speaker+": ") + t.answer.Text)
		for _, line := range citationLines(t.answer) {
			b.WriteString("\n" + citeStyle.Render(line))
		}
	}
	return b.String()
}

// citationLines renders "(n) title @ mm:ss  url" for each cited source.
func citationLines(a service.Answer) []string {
	out := make([]string, 0, len(a.Citations))
	for _, c := range a.Citations {
		title := ""
		if i := c.Ordinal - 1; i >= 0 && i < len(a.Groups) {
			title = a.Groups[i].Center.Title
		}
		link, start := citation.SplitURL(c.URL)
		line := fmt.Sprintf("(%d) ", c.Ordinal)
		if title != "" {
			line += title + " "
		}
		line += fmt.Sprintf("@ %s  %s&t=%d", citation.FormatTimestamp(start), link, start)
		out = append(out, line)
	}
	return out
}

func (m Model) renderSources() string {
	if len(m.turns) == 0 {
		return "No sources yet."
	}
	last := m.turns[len(m.turns)-1]
	groups := last.answer.Groups
	if len(groups) == 0 {
		return "No sources for the last answer."
	}
	g := groups[m.cursor]
	head := fmt.Sprintf("Source %d/%d  %s @ %s", m.cursor+1, len(groups), g.Center.Title, citation.FormatTimestamp(g.Center.Timestamp))
	var parts []string
	for _, s := range g.Slots() {
		if s == nil {
			continue
		}
		if s.Timestamp == g.Center.Timestamp && s.VideoID == g.Center.VideoID {
			parts = append(parts, highlightBestSentence(s.Transcript, last.question))
			continue
		}
		parts = append(parts, dimStyle.Render(s.Transcript))
	}
	return head + "\n\n" + strings.Join(parts, "\n\n")
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	speakerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	citeStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
