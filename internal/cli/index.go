package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"vidrag/internal/service"
	"vidrag/internal/transcript"
)

var indexReset bool

var indexCmd = &cobra.Command{
	Use:   "index [manifest]",
	Short: "Index the videos listed in a manifest",
	Long: `Reads a YAML manifest of videos and their transcripts, splits every
transcript into time windows, embeds each chunk and stores it in the
configured vector store. Re-indexing a video replaces its chunks.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexReset, "reset", false, "clear the vector store before indexing")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	videos, err := transcript.LoadManifest(args[0])
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	a, err := newApp(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if appConfig.VectorStore.Type == "memory" {
		cmd.Println("Note: the memory vector store is discarded when the command exits.")
	}
	if indexReset {
		if err := a.store.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear vector store: %w", err)
		}
		cmd.Println("Vector store cleared.")
	}

	cmd.Printf("Indexing %d videos...\n", len(videos))
	report, err := a.service.IndexVideos(cmd.Context(), videos)
	if err != nil {
		return fmt.Errorf("indexing interrupted: %w", err)
	}
	printReport(cmd, report)
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d of %d videos failed", len(report.Failures), len(videos))
	}
	return nil
}

func printReport(cmd *cobra.Command, report service.IndexReport) {
	cmd.Printf("Indexed %d videos, %d chunks", report.Videos, report.Chunks)
	if report.Skipped > 0 {
		cmd.Printf(" (%d empty chunks skipped)", report.Skipped)
	}
	cmd.Println()

	ids := make([]string, 0, len(report.Failures))
	for id := range report.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cmd.Printf("  failed %s: %v\n", id, report.Failures[id])
	}
}
