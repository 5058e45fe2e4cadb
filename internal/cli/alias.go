package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wasmcp/wasmcp/internal/composerr"
	"github.com/wasmcp/wasmcp/internal/config"
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage the component reference alias table",
}

var aliasAddCmd = &cobra.Command{
	Use:   "add <name> <reference>",
	Short: "Add or replace an alias in the configuration file",
	Args:  cobra.ExactArgs(2),
	RunE:  runAliasAdd,
}

var aliasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every alias in the configuration file",
	Args:  cobra.NoArgs,
	RunE:  runAliasList,
}

func init() {
	aliasCmd.AddCommand(aliasAddCmd)
	aliasCmd.AddCommand(aliasListCmd)
}

func runAliasAdd(cmd *cobra.Command, args []string) error {
	name, reference := args[0], args[1]
	Root.Config.Aliases[name] = reference

	path, err := configPathFor(cmd)
	if err != nil {
		return err
	}
	if err := writeConfig(path, Root.Config); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added alias %s -> %s\n", name, reference)
	return nil
}

func runAliasList(cmd *cobra.Command, _ []string) error {
	names := make([]string, 0, len(Root.Config.Aliases))
	for name := range Root.Config.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"alias", "reference"})
	for _, name := range names {
		t.AppendRow(table.Row{name, Root.Config.Aliases[name]})
	}
	t.Render()
	return nil
}

func configPathFor(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if path != "" {
		return path, nil
	}
	return defaultConfigPath(), nil
}

// writeConfig serializes cfg back to path in the same shape config.Load
// reads, used by alias add and (once it gains write support) profile
// management. The configuration file is small and fully loaded in memory,
// so round-tripping the whole document on every write is not a concern.
func writeConfig(path string, cfg *config.Config) error {
	doc := struct {
		Aliases           map[string]string         `yaml:"aliases"`
		RegistryOverrides map[string]string         `yaml:"registry_overrides,omitempty"`
		Profiles          map[string]config.Profile `yaml:"profiles"`
	}{
		Aliases:           cfg.Aliases,
		RegistryOverrides: cfg.RegistryOverrides,
		Profiles:          cfg.Profiles,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &composerr.Io{Op: "mkdir", Path: filepath.Dir(path), Cause: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &composerr.Io{Op: "write", Path: path, Cause: err}
	}
	return nil
}
