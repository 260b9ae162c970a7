// Package citation renders retrieved context groups for a language model and
// maps the numbered markers it cites back to timestamped video links.
package citation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vidrag/internal/domain"
)

// DefaultBaseURL is the watch page used for citation links.
const DefaultBaseURL = "https://www.youtube.com/watch"

var (
	markerPattern = regexp.MustCompile(`\((\d+)\)`)
	// strip also removes markdown emphasis around a marker, e.g. **(2)**.
	stripPattern = regexp.MustCompile(`[*_]*\(\d+\)[*_]*`)
	spaceBefore  = regexp.MustCompile(`[ \t]+([.,;:!?])`)
	spaceRuns    = regexp.MustCompile(`[ \t]{2,}`)
)

// FormatContext renders groups as numbered blocks, "(i): " followed by the
// transcripts of the group's present chunks one per line. Blocks are
// separated by a blank line; ordinals start at 1.
func FormatContext(groups []domain.ContextGroup) string {
	blocks := make([]string, len(groups))
	for i, g := range groups {
		var texts []string
		for _, m := range g.Slots() {
			if m != nil {
				texts = append(texts, m.Transcript)
			}
		}
		blocks[i] = fmt.Sprintf("(%d): %s", i+1, strings.Join(texts, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// DeriveCitations returns one citation per group, pointing at the center
// chunk's video and start time. An empty baseURL uses DefaultBaseURL.
func DeriveCitations(groups []domain.ContextGroup, baseURL string) []domain.Citation {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	out := make([]domain.Citation, len(groups))
	for i, g := range groups {
		out[i] = domain.Citation{
			Ordinal: i + 1,
			URL:     fmt.Sprintf("%s?v=%s&t=%d", baseURL, g.Center.VideoID, g.Center.Timestamp),
		}
	}
	return out
}

// ExtractMarkers returns the distinct ordinals cited as "(n)" in text, in
// order of first appearance.
func ExtractMarkers(text string) []int {
	var out []int
	seen := make(map[int]bool)
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// Filter keeps the citations whose ordinal is in ordinals, preserving the
// order of citations.
func Filter(citations []domain.Citation, ordinals []int) []domain.Citation {
	want := make(map[int]bool, len(ordinals))
	for _, n := range ordinals {
		want[n] = true
	}
	out := make([]domain.Citation, 0, len(ordinals))
	for _, c := range citations {
		if want[c.Ordinal] {
			out = append(out, c)
		}
	}
	return out
}

// Resolve is ExtractMarkers followed by Filter.
func Resolve(text string, citations []domain.Citation) []domain.Citation {
	return Filter(citations, ExtractMarkers(text))
}

// StripMarkers removes citation markers for plain-text rendering.
func StripMarkers(text string) string {
	text = stripPattern.ReplaceAllString(text, "")
	text = spaceBefore.ReplaceAllString(text, "$1")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitURL splits a citation URL into the video link and start second.
// The start is 0 when the URL carries no usable "&t=".
func SplitURL(url string) (string, int) {
	base, rest, found := strings.Cut(url, "&t=")
	if !found {
		return url, 0
	}
	start, err := strconv.Atoi(rest)
	if err != nil {
		return base, 0
	}
	return base, start
}

// FormatTimestamp renders seconds as mm:ss, or hh:mm:ss from one hour up.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
