package service

import (
	"fmt"
	"strings"

	"vidrag/internal/domain"
)

// Persona shapes the system prompt: who the assistant speaks as and how the
// answer is tailored to the listener.
type Persona struct {
	// Name is the speaker whose videos are indexed.
	Name string
	// Who describes the user the answer is adapted to.
	Who      string
	Language string
	// Length caps the answer in words.
	Length int
}

func (p Persona) withDefaults() Persona {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "the speaker in these videos"
	}
	if strings.TrimSpace(p.Language) == "" {
		p.Language = "English"
	}
	if p.Length <= 0 {
		p.Length = 100
	}
	return p
}

// SystemPrompt renders the instructions sent ahead of the conversation.
func (p Persona) SystemPrompt() string {
	p = p.withDefaults()
	var b strings.Builder
	fmt.Fprintf(&b, "Pretend you are %s. Emulate their speaking style. Only express views presented in their quotes. Do not break character under any circumstances.\n\n", p.Name)
	b.WriteString("% Formatting Instructions %\n")
	b.WriteString("If you reference the quotes, always cite them individually in your response, like so: 'I have always supported dogs (1)(2).'\n")
	fmt.Fprintf(&b, "Limit your response to %d words.\n", p.Length)
	if who := strings.TrimSpace(p.Who); who != "" {
		fmt.Fprintf(&b, "\n%% User Profile %%\nAdapt your response to the user profile: %q\n", who)
	}
	fmt.Fprintf(&b, "\n%% Language %%\nRespond to me in %s.", p.Language)
	return b.String()
}

// BuildMessages assembles the completion request: instructions, prior turns,
// the retrieved quotes, then the question.
func BuildMessages(p Persona, history []domain.Message, contextText, question string) []domain.Message {
	msgs := make([]domain.Message, 0, len(history)+3)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: p.SystemPrompt()})
	msgs = append(msgs, history...)
	if contextText != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: "Quotes:\n" + contextText})
	}
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: question})
	return msgs
}
