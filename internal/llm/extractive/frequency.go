package extractive

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// ranker scores sentences by word frequency (stopwords filtered), boosting
// words that also appear in the question.
type ranker struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func newRanker() *ranker {
	return &ranker{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

type scored struct {
	text  string
	score float64
}

// best returns the highest scoring sentence of text and its score. Text
// without sentence punctuation is treated as a single sentence.
func (r *ranker) best(text string, question map[string]struct{}) scored {
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	// Compute word frequencies
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range r.tokens(sent) {
			freq[tok]++
		}
	}
	// Normalize frequencies
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	out := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := r.tokens(sent)
		s := 0.0
		for _, tok := range toks {
			s += freq[tok]
			if _, ok := question[tok]; ok {
				s += 2
			}
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			s /= math.Sqrt(l)
		}
		out[i] = scored{text: strings.TrimSpace(sent), score: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out[0]
}

// terms returns the distinct non-stopword tokens of text.
func (r *ranker) terms(text string) map[string]struct{} {
	toks := r.tokens(text)
	m := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		m[t] = struct{}{}
	}
	return m
}

func (r *ranker) tokens(text string) []string {
	raw := r.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, ok := r.stopwords[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "who", "how", "why", "when", "where", "do", "does", "did", "you", "your", "i", "me", "my", "we",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
