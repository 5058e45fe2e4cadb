package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wasmcp/wasmcp/internal/compose"
	"github.com/wasmcp/wasmcp/internal/diagram"
	"github.com/wasmcp/wasmcp/internal/enum"
	"github.com/wasmcp/wasmcp/internal/ociclient"
)

var composeCmd = &cobra.Command{
	Use:   "compose [component...]",
	Short: "Compose MCP server or handler components into a single component",
	Long: `compose resolves each given component reference, downloads any required
framework dependencies (transport, middleware, services), builds the
composition graph, and writes the resulting .wasm to --output.`,
	Example: `  wasmcp compose ./auth-gate.wasm ./calc.wasm --transport http -o server.wasm
  wasmcp compose --profile demo`,
	Args: cobra.ArbitraryArgs,
	RunE: runCompose,
}

func init() {
	flags := composeCmd.Flags()
	enum.Var(flags, "transport", []string{"http", "stdio"}, "transport the composed server uses")
	enum.Var(flags, "runtime", []string{"wasmtime", "spin", "wasmcloud"}, "target runtime, selects framework component variants")
	enum.Var(flags, "mode", []string{"server", "handler"}, "server (transport-terminated) or handler (reusable sub-chain)")
	flags.StringP("output", "o", "", "output path for the composed component (required unless --profile sets one)")
	flags.StringSlice("version-override", nil, "name=reference overrides for a framework component, repeatable")
	flags.String("deps-dir", "./deps", "directory framework components are downloaded into / read from")
	flags.Bool("skip-download", false, "fail instead of downloading a missing framework component")
	flags.Bool("force", false, "overwrite the output path if it already exists")
	flags.String("profile", "", "named profile from the configuration file supplying components/output")
}

func runCompose(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	components := args
	transport, err := enum.Get(flags, "transport")
	if err != nil {
		return err
	}
	output, err := flags.GetString("output")
	if err != nil {
		return err
	}

	profileName, err := flags.GetString("profile")
	if err != nil {
		return err
	}
	if profileName != "" {
		profile, err := Root.Config.ResolveProfile(profileName)
		if err != nil {
			return fmt.Errorf("resolving profile %q: %w", profileName, err)
		}
		if len(components) == 0 {
			components = profile.Components
		}
		if output == "" {
			output = profile.Output
		}
	}

	if len(components) == 0 {
		return fmt.Errorf("no components given: pass component references as arguments or --profile a profile that lists some")
	}
	if output == "" {
		return fmt.Errorf("--output is required (or set output: in the chosen profile)")
	}

	runtime, err := enum.Get(flags, "runtime")
	if err != nil {
		return err
	}
	mode, err := enum.Get(flags, "mode")
	if err != nil {
		return err
	}
	overridePairs, err := flags.GetStringSlice("version-override")
	if err != nil {
		return err
	}
	overrides, err := parseOverrides(overridePairs)
	if err != nil {
		return err
	}
	for name, ref := range Root.Config.RegistryOverrides {
		if _, ok := overrides[name]; !ok {
			overrides[name] = ref
		}
	}
	depsDir, err := flags.GetString("deps-dir")
	if err != nil {
		return err
	}
	skipDownload, err := flags.GetBool("skip-download")
	if err != nil {
		return err
	}
	force, err := flags.GetBool("force")
	if err != nil {
		return err
	}

	if mode == "server" {
		fmt.Fprint(cmd.OutOrStdout(), diagram.Pipeline(transport, components))
	} else {
		fmt.Fprint(cmd.OutOrStdout(), diagram.HandlerPipeline(components))
	}

	oci := registryClient()

	result, err := compose.Run(cmd.Context(), compose.Request{
		Components:   components,
		Transport:    transport,
		OutputPath:   output,
		Overrides:    overrides,
		DepsDir:      depsDir,
		SkipDownload: skipDownload,
		Force:        force,
		Runtime:      runtime,
		Mode:         mode,
	}, oci, Root.Config, Root.Logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nwrote %s (protocol %s)\n", result.OutputPath, result.ProtocolVersion)
	if mode == "server" {
		fmt.Fprintf(cmd.OutOrStdout(), "run it with:\n  %s\n", diagram.RunInstructions(result.OutputPath, runtime, transport))
	}
	return nil
}

// parseOverrides parses "name=reference" pairs as accepted by --version-override.
func parseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, ref, ok := strings.Cut(pair, "=")
		if !ok || name == "" || ref == "" {
			return nil, fmt.Errorf("invalid --version-override %q: want name=reference", pair)
		}
		out[name] = ref
	}
	return out, nil
}

// registryClient builds the production ociclient.Client, rooted at a
// content cache under the user's cache directory. Every framework package
// is published under ghcr.io (spec.md §6).
func registryClient() ociclient.Resolver {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return ociclient.NewClient(func(string) string { return "ghcr.io" }, filepath.Join(cacheDir, "wasmcp"))
}
