package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidrag/internal/citation"
	"vidrag/internal/domain"
)

var (
	searchLimit    int
	searchJSON     bool
	searchManifest string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Retrieve transcript passages for a query",
	Long: `Embeds the query, finds the closest transcript chunks and widens each
one with the chunks just before and after it in the same video.
No answer is generated.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "number of passages (default retrieval.top_k)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringVar(&searchManifest, "manifest", "", "index this manifest before searching")
	rootCmd.AddCommand(searchCmd)
}

// searchResult is the JSON form of one context group.
type searchResult struct {
	Ordinal   int    `json:"ordinal"`
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	Timestamp int    `json:"timestamp"`
	URL       string `json:"url"`
	Prev      string `json:"prev,omitempty"`
	Center    string `json:"center"`
	Next      string `json:"next,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.preload(cmd, searchManifest); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.retrievalTimeout())
	defer cancel()
	groups, err := a.service.Search(ctx, args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := toSearchResults(groups, appConfig.Citations.BaseURL)
	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	outputSearchText(cmd, results)
	return nil
}

func toSearchResults(groups []domain.ContextGroup, baseURL string) []searchResult {
	cites := citation.DeriveCitations(groups, baseURL)
	out := make([]searchResult, len(groups))
	for i, g := range groups {
		out[i] = searchResult{
			Ordinal:   cites[i].Ordinal,
			VideoID:   g.Center.VideoID,
			Title:     g.Center.Title,
			Timestamp: g.Center.Timestamp,
			URL:       cites[i].URL,
			Prev:      transcriptOf(g.Prev),
			Center:    g.Center.Transcript,
			Next:      transcriptOf(g.Next),
		}
	}
	return out
}

func transcriptOf(m *domain.Metadata) string {
	if m == nil {
		return ""
	}
	return m.Transcript
}

func outputSearchText(cmd *cobra.Command, results []searchResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.VideoID
		}
		cmd.Printf("(%d) %s @ %s\n", r.Ordinal, title, citation.FormatTimestamp(r.Timestamp))
		cmd.Printf("    %s\n", r.URL)
		for _, text := range []string{r.Prev, r.Center, r.Next} {
			if strings.TrimSpace(text) != "" {
				cmd.Printf("    %s\n", text)
			}
		}
		cmd.Println()
	}
}
