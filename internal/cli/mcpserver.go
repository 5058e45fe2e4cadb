package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mcpServerCmd stubs the embedded MCP metadata server (SPEC_FULL.md §9):
// exposing compose itself as an MCP tool over stdio is out of scope for this
// build, but the command surface is kept complete rather than silently
// omitting it.
var mcpServerCmd = &cobra.Command{
	Use:    "mcp-server",
	Short:  "Serve the compose operation as an MCP tool over stdio (not implemented)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return fmt.Errorf("mcp-server is not implemented in this build: run the underlying operations (compose, versions, pkg pull) directly")
	},
}
