// Command wasmcp composes MCP servers from WebAssembly components.
package main

import "github.com/wasmcp/wasmcp/internal/cli"

func main() {
	cli.Execute()
}
