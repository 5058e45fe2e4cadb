package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/wasmcp/wasmcp/internal/catalog"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Print the pinned version of every framework component",
	Args:  cobra.NoArgs,
	RunE:  runVersions,
}

func runVersions(cmd *cobra.Command, _ []string) error {
	cat, err := catalog.Load(nil)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"component", "class", "version"})
	for _, name := range cat.FrameworkNames() {
		version, err := cat.VersionOf(name)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{name, catalog.Classify(name).String(), version})
	}
	t.Render()

	protocolVersion, err := cat.VersionOf("mcp-v20250618")
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\nprotocol: mcp-v20250618 @ %s\n", protocolVersion)
	}
	return nil
}
