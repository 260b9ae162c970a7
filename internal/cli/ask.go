package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"vidrag/internal/citation"
	"vidrag/internal/domain"
)

var (
	askPlain       bool
	askShowContext bool
	askJSON        bool
	askManifest    string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed transcripts",
	Long: `Retrieves the passages closest to the question, asks the configured
completer to answer from them and prints the answer followed by the
sources it cited. Markers like (2) in the answer refer to those sources.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askPlain, "plain", false, "remove citation markers from the answer")
	askCmd.Flags().BoolVar(&askShowContext, "show-context", false, "print the numbered passages given to the completer")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	askCmd.Flags().StringVar(&askManifest, "manifest", "", "index this manifest before answering")
	rootCmd.AddCommand(askCmd)
}

type askResult struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
	Context   string            `json:"context,omitempty"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.preload(cmd, askManifest); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.retrievalTimeout())
	defer cancel()
	answer, err := a.service.Ask(ctx, args[0], nil)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	text := answer.Text
	if askPlain {
		text = citation.StripMarkers(text)
	}

	if askJSON {
		res := askResult{Answer: text, Citations: answer.Citations}
		if res.Citations == nil {
			res.Citations = []domain.Citation{}
		}
		if askShowContext {
			res.Context = answer.Context
		}
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if askShowContext {
		cmd.Println("Context:")
		cmd.Println(answer.Context)
		cmd.Println()
	}
	cmd.Println(text)
	if len(answer.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, c := range answer.Citations {
			_, start := citation.SplitURL(c.URL)
			cmd.Printf("  (%d) %s @ %s  %s\n", c.Ordinal, titleFor(answer.Groups, c.Ordinal), citation.FormatTimestamp(start), c.URL)
		}
	}
	return nil
}

// titleFor returns the title of the video cited by ordinal.
func titleFor(groups []domain.ContextGroup, ordinal int) string {
	if ordinal < 1 || ordinal > len(groups) {
		return ""
	}
	g := groups[ordinal-1]
	if g.Center.Title != "" {
		return g.Center.Title
	}
	return g.Center.VideoID
}
