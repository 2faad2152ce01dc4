package commands

import (
	"fmt"

	"github.com/jalsakhi/model-gateway/internal/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewMountsCmd creates the mounts command
func NewMountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mounts",
		Short: "List proxy mounts",
		Long:  "Print the effective mount table after GATEWAY_MOUNTS_FILE and *_API_URL overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			mounts, err := config.LoadMounts()
			if err != nil {
				return fmt.Errorf("failed to load mounts: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Name", "Prefix", "Upstream", "Label"})
			for _, m := range mounts {
				t.AppendRow(table.Row{m.Name, m.Prefix, m.Upstream, m.Label})
			}
			t.Render()
			return nil
		},
	}

	return cmd
}
