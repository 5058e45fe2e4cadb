package cli

import (
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect named composition profiles from the configuration file",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every profile, with its resolved component chain",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

func init() {
	profileCmd.AddCommand(profileListCmd)
}

func runProfileList(cmd *cobra.Command, _ []string) error {
	names := make([]string, 0, len(Root.Config.Profiles))
	for name := range Root.Config.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"profile", "components", "output"})
	for _, name := range names {
		resolved, err := Root.Config.ResolveProfile(name)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{name, strings.Join(resolved.Components, ", "), resolved.Output})
	}
	t.Render()
	return nil
}
