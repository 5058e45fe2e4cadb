package diagram

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeline_IncludesTransportAndComponents(t *testing.T) {
	r := require.New(t)
	out := Pipeline("http", []string{"./auth-gate.wasm", "./calc.wasm"})
	r.Contains(out, "http (transport)")
	r.Contains(out, "1. auth-gate")
	r.Contains(out, "2. calc")
	r.Contains(out, "method-not-found (terminal handler)")
}

func TestHandlerPipeline_NoTransportOrTerminal(t *testing.T) {
	r := require.New(t)
	out := HandlerPipeline([]string{"./auth-gate.wasm"})
	r.Contains(out, "1. auth-gate")
	r.NotContains(out, "transport")
	r.NotContains(out, "method-not-found")
}

func TestRunInstructions(t *testing.T) {
	r := require.New(t)
	r.Equal("spin up -f out.wasm", RunInstructions("out.wasm", "spin", "http"))
	r.Contains(RunInstructions("out.wasm", "spin", "stdio"), "wasmtime run out.wasm")
	r.Equal("wasmtime serve -Scli out.wasm", RunInstructions("out.wasm", "wasmtime", "http"))
	r.Equal("wasmtime run out.wasm", RunInstructions("out.wasm", "wasmtime", "stdio"))
}

func TestComponentName_StripsExtension(t *testing.T) {
	require.Equal(t, "calc", componentName("/a/b/calc.wasm"))
}
