// Package cli implements the wasmcp command-line surface described in
// spec.md §2.1/§8 and SPEC_FULL.md §2.1: compose, versions, alias, profile,
// pkg, and the stubbed mcp-server subcommand, all wired onto a single root
// command grounded on cmd/root.go's OCM-struct-wrapping-*cobra.Command
// pattern.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wasmcp/wasmcp/internal/config"
	"github.com/wasmcp/wasmcp/internal/logging"
)

// WasmCP wraps the root cobra command together with the state every
// subcommand's RunE needs after PersistentPreRunE has run.
type WasmCP struct {
	*cobra.Command
	Logger *slog.Logger
	Config *config.Config
}

// Root is the package-level root command, built in this file's init(),
// which also attaches every subcommand.
var Root *WasmCP

func init() {
	Root = &WasmCP{
		Command: &cobra.Command{
			Use:   "wasmcp [sub-command]",
			Short: "Compose MCP servers from WebAssembly components",
			Long: `wasmcp builds Model Context Protocol servers by composing WebAssembly
components: a transport, a chain of user components, and framework-provided
middleware and services, into a single deployable component.`,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return cmd.Help()
			},
			PersistentPreRunE: setupRoot,
			DisableAutoGenTag: true,
			SilenceUsage:      true,
			SilenceErrors:     true,
		},
	}

	logging.RegisterFlags(Root.Command)
	Root.PersistentFlags().String("config", "", "path to the wasmcp configuration file (default: ~/.config/wasmcp/config.yaml)")

	Root.AddCommand(composeCmd)
	Root.AddCommand(versionsCmd)
	Root.AddCommand(aliasCmd)
	Root.AddCommand(profileCmd)
	Root.AddCommand(pkgCmd)
	Root.AddCommand(mcpServerCmd)
}

// setupRoot builds the logger and loads the configuration file before any
// subcommand's RunE executes, mirroring cmd/root.go's setupRoot.
func setupRoot(cmd *cobra.Command, _ []string) error {
	logger, err := logging.FromCommand(cmd)
	if err != nil {
		return fmt.Errorf("could not build logger: %w", err)
	}
	slog.SetDefault(logger)
	Root.Logger = logger

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if path == "" {
		path = defaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	Root.Config = cfg
	return nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir + "/wasmcp/config.yaml"
}

// Execute runs the root command. Called by main.main(); on error it prints
// the error to stderr and exits non-zero.
func Execute() {
	if err := Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
