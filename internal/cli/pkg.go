package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wasmcp/wasmcp/internal/ociclient"
)

// pkgCmd groups the standalone OCI package operations (SPEC_FULL.md §9),
// grounded on commands/pkg.rs: a thin, no-extra-semantics wrapper over C2
// (internal/ociclient), exposed for users who want to manage framework or
// vendored components without running a full compose.
var pkgCmd = &cobra.Command{
	Use:   "pkg",
	Short: "Pull or push standalone OCI packages",
}

var pkgPullCmd = &cobra.Command{
	Use:   "pull <namespace:name[@version]>",
	Short: "Download a package from the registry into the deps directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runPkgPull,
}

var pkgPushCmd = &cobra.Command{
	Use:   "push <path> <namespace:name@version>",
	Short: "Publish a component to the registry (not implemented)",
	Args:  cobra.ExactArgs(2),
	RunE:  runPkgPush,
}

func init() {
	pkgPullCmd.Flags().String("deps-dir", "./deps", "directory the package is downloaded into")
	pkgCmd.AddCommand(pkgPullCmd)
	pkgCmd.AddCommand(pkgPushCmd)
}

func runPkgPull(cmd *cobra.Command, args []string) error {
	depsDir, err := cmd.Flags().GetString("deps-dir")
	if err != nil {
		return err
	}

	oci := registryClient()
	path, err := ociclient.ResolveSpec(cmd.Context(), oci, args[0], depsDir, func(string) bool { return false })
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runPkgPush(cmd *cobra.Command, _ []string) error {
	return fmt.Errorf("pkg push is not implemented in this build: the composition engine has no publish path, only pull")
}
