// Package diagram renders the composed handler pipeline as an ASCII
// diagram, grounded on cmd/get/component-version/encode.go's go-pretty
// table usage and on the shape of the pipeline description in
// commands/compose/output/formatting.rs.
package diagram

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Pipeline renders the server-mode composition pipeline: transport at the
// top, user components in declared order, method-not-found as the terminal.
func Pipeline(transport string, componentPaths []string) string {
	var b strings.Builder
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	style := table.StyleLight
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = false
	style.Options.SeparateRows = false
	t.SetStyle(style)

	t.AppendRow(table.Row{fmt.Sprintf("%s (transport)", transport)})
	for i, path := range componentPaths {
		t.AppendRow(table.Row{"↓"})
		t.AppendRow(table.Row{fmt.Sprintf("%d. %s", i+1, componentName(path))})
	}
	t.AppendRow(table.Row{"↓"})
	t.AppendRow(table.Row{"method-not-found (terminal handler)"})
	t.Render()

	return "Composing MCP server pipeline...\n" + b.String()
}

// HandlerPipeline renders the handler-mode composition pipeline: just the
// user components, no transport or terminal handler.
func HandlerPipeline(componentPaths []string) string {
	var b strings.Builder
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	style := table.StyleLight
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = false
	style.Options.SeparateRows = false
	t.SetStyle(style)

	for i, path := range componentPaths {
		if i > 0 {
			t.AppendRow(table.Row{"↓"})
		}
		t.AppendRow(table.Row{fmt.Sprintf("%d. %s", i+1, componentName(path))})
	}
	t.Render()

	return "Composing handler component...\n" + b.String()
}

// RunInstructions returns the runtime-specific command line to run a
// composed server artifact.
func RunInstructions(outputPath, runtime, transport string) string {
	switch {
	case runtime == "spin" && transport == "http":
		return fmt.Sprintf("spin up -f %s", outputPath)
	case runtime == "spin":
		return fmt.Sprintf("# spin does not support stdio transport\nwasmtime run %s", outputPath)
	case transport == "http":
		return fmt.Sprintf("wasmtime serve -Scli %s", outputPath)
	default:
		return fmt.Sprintf("wasmtime run %s", outputPath)
	}
}

func componentName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
