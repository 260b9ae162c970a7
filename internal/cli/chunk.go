package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"vidrag/internal/domain"
	"vidrag/internal/transcript"
)

var chunkJSON bool

var chunkCmd = &cobra.Command{
	Use:   "chunk [manifest]",
	Short: "Show how the videos in a manifest are chunked",
	Long: `Splits every transcript in the manifest with the configured window and
prints the resulting chunks with their ids and neighbour links.
Nothing is embedded or stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "output chunks as JSON")
	rootCmd.AddCommand(chunkCmd)
}

type chunkedVideo struct {
	VideoID string         `json:"video_id"`
	Title   string         `json:"title"`
	Chunks  []domain.Chunk `json:"chunks"`
}

func runChunk(cmd *cobra.Command, args []string) error {
	videos, err := transcript.LoadManifest(args[0])
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	ch := newChunker(appConfig.Chunker)

	out := make([]chunkedVideo, 0, len(videos))
	for _, v := range videos {
		chunks, err := ch.Chunk(v)
		if err != nil {
			return fmt.Errorf("video %s: %w", v.ID, err)
		}
		out = append(out, chunkedVideo{VideoID: v.ID, Title: v.Title, Chunks: chunks})
	}

	if chunkJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal chunks: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	for _, v := range out {
		cmd.Printf("%s %q: %d chunks\n", v.VideoID, v.Title, len(v.Chunks))
		for _, c := range v.Chunks {
			cmd.Printf("  %6ds  %s  prev=%s next=%s\n", c.Timestamp, shortID(c.ID), shortID(c.Prev), shortID(c.Next))
			cmd.Printf("          %s\n", snippet(c.Transcript, 72))
		}
	}
	return nil
}

func shortID(id string) string {
	if domain.IsNull(id) {
		return "-"
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func snippet(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
