// Package extractive answers from the retrieved context alone: it quotes the
// most relevant sentence of each context block and cites it. It needs no
// network access, which makes the whole pipeline runnable offline.
package extractive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"vidrag/internal/domain"
)

// NoContextAnswer is returned when the messages carry no context blocks.
const NoContextAnswer = "I haven't talked about that in any of my videos."

// DefaultMaxQuotes bounds the number of quoted blocks per answer.
const DefaultMaxQuotes = 3

var blockStart = regexp.MustCompile(`(?m)^\((\d+)\): `)

type Completer struct {
	ranker    *ranker
	maxQuotes int
}

func NewCompleter(maxQuotes int) *Completer {
	if maxQuotes <= 0 {
		maxQuotes = DefaultMaxQuotes
	}
	return &Completer{ranker: newRanker(), maxQuotes: maxQuotes}
}

func (c *Completer) Name() string { return "extractive" }

type block struct {
	ordinal int
	text    string
}

// Complete answers the last user message using the numbered context blocks
// found in the other messages.
func (c *Completer) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var question string
	var blocks []block
	for _, m := range messages {
		switch m.Role {
		case domain.RoleUser:
			question = m.Content
		default:
			blocks = append(blocks, parseBlocks(m.Content)...)
		}
	}
	if strings.TrimSpace(question) == "" {
		return "", errors.New("no question to answer")
	}
	if len(blocks) == 0 {
		return NoContextAnswer, nil
	}

	terms := c.ranker.terms(question)
	type pick struct {
		ordinal int
		scored
	}
	picks := make([]pick, 0, len(blocks))
	for _, b := range blocks {
		picks = append(picks, pick{ordinal: b.ordinal, scored: c.ranker.best(b.text, terms)})
	}
	sort.SliceStable(picks, func(i, j int) bool { return picks[i].score > picks[j].score })
	if len(picks) > c.maxQuotes {
		picks = picks[:c.maxQuotes]
	}
	// Keep context order among selected
	sort.SliceStable(picks, func(i, j int) bool { return picks[i].ordinal < picks[j].ordinal })

	parts := make([]string, 0, len(picks))
	for _, p := range picks {
		if p.text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s **(%d)**", p.text, p.ordinal))
	}
	if len(parts) == 0 {
		return NoContextAnswer, nil
	}
	return strings.Join(parts, " "), nil
}

// parseBlocks splits formatted context into its numbered blocks.
func parseBlocks(content string) []block {
	locs := blockStart.FindAllStringSubmatchIndex(content, -1)
	out := make([]block, 0, len(locs))
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		n, err := strconv.Atoi(content[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		text := strings.Join(strings.Fields(content[loc[1]:end]), " ")
		out = append(out, block{ordinal: n, text: text})
	}
	return out
}
