// Package statuscmder provides the status command for displaying the saved
// conversation in the local .parley directory.
package statuscmder

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/parley/pkg/cliui"
	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/dotdir"
	"github.com/papercomputeco/parley/pkg/utils"
)

const previewLen = 72

const statusLongDesc string = `Show the saved conversation.

Reads the local .parley/ directory (or ~/.parley/) to display the
conversation that "parley chat --resume" would pick up, with a preview of
every turn.

If no conversation was saved, indicates that the next chat will start a new
conversation.

Examples:
  parley status`

const statusShortDesc string = "Show the saved conversation"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(cmd.OutOrStdout(), configDir)
		},
	}

	return cmd
}

func runStatus(w io.Writer, configDir string) error {
	snap, err := dotdir.NewManager().LoadSnapshot(configDir)
	if err != nil {
		return fmt.Errorf("loading conversation snapshot: %w", err)
	}

	if snap == nil || len(snap.Turns) == 0 {
		fmt.Fprintf(w, "  %s No saved conversation. Next chat will start a new conversation.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintf(w, "\n  %s  %s\n", cliui.KeyStyle.Render("Saved: "), cliui.ValueStyle.Render(snap.SavedAt.Local().Format("2006-01-02 15:04:05")))
	if snap.Model != "" {
		fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("Model: "), cliui.NameStyle.Render(snap.Model))
	}
	fmt.Fprintf(w, "  %s  %s\n\n", cliui.KeyStyle.Render("Turns: "), cliui.NameStyle.Render(strconv.Itoa(len(snap.Turns))))

	for i, t := range snap.Turns {
		style := cliui.DimStyle
		if speaker, err := conversation.ParseSpeaker(t.Speaker); err == nil {
			style = cliui.SpeakerStyle(speaker)
		}

		preview := utils.Truncate(strings.Join(strings.Fields(t.Text), " "), previewLen)
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
			style.Render("["+t.Speaker+"]"),
			cliui.ValueStyle.Render(preview),
		)
	}

	fmt.Fprintln(w)
	return nil
}
