package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"vidrag/internal/tui"
)

var chatManifest string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat over the indexed transcripts",
	Long: `Opens a terminal chat. Each question is answered from the indexed
transcripts with the previous turns kept as conversation history.

Controls:
  Enter       - Ask
  Tab         - Toggle the sources of the last answer
  ↑/↓         - Cycle sources
  PgUp/PgDn   - Scroll
  Ctrl+C, Esc - Quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatManifest, "manifest", "", "index this manifest before chatting")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.preload(cmd, chatManifest); err != nil {
		return err
	}

	m := tui.New(a.service, appConfig.Persona.Name, a.retrievalTimeout())
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat error: %w", err)
	}
	return nil
}
