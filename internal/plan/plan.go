// Package plan implements the Dependency Planner (spec component C5): it
// derives the set of framework components a set of user components require,
// by inspecting their imports via the import inspector and applying a fixed
// interface-shortname-to-component-name mapping.
package plan

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wasmcp/wasmcp/internal/inspect"
)

// shortNameToComponent is the fixed mapping from interface short-name to
// framework-component name. "store" is handled specially below because its
// target component depends on whether the full interface name mentions
// "keyvalue".
var shortNameToComponent = map[string]string{
	"server-transport": "transport",
	"server-io":        "server-io",
	"server-handler":   "method-not-found",
	"server-auth":      "authorization",
	"tools":            "tools-middleware",
	"resources":        "resources-middleware",
	"prompts":          "prompts-middleware",
	"sessions":         "session-store",
	"session-manager":  "session-store",
}

const wasmcpNamespace = "wasmcp:"

// Required inspects every path in userPaths and returns the set of
// framework-component names they collectively require, excluding any name
// already present in overrides (the override supplies its own file, so no
// framework download is required for it — callers that also need the full
// set of names to wire into the composition, override-satisfied ones
// included, should pass a nil/empty overrides map here and resolve each
// override's path separately). server-handler is excluded from the result:
// it maps to method-not-found, which the chain constructor always wires
// directly rather than through auto-wiring.
func Required(ctx context.Context, userPaths []string, overrides map[string]string) (map[string]bool, error) {
	perComponent := make([][]string, len(userPaths))
	eg, _ := errgroup.WithContext(ctx)
	for i, path := range userPaths {
		eg.Go(func() error {
			imports, err := inspect.ImportsOf(path)
			if err != nil {
				return err
			}
			perComponent[i] = imports
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	required := make(map[string]bool)
	for _, imports := range perComponent {
		for _, iface := range imports {
			component, ok := componentFor(iface)
			if !ok {
				continue // unknown wasmcp: capability or non-wasmcp import: ignored at planning time, see spec.md §4.5 Open Question
			}
			if component == "method-not-found" {
				continue // server-handler is wired directly by the chain constructor, not via auto-wiring
			}
			if _, overridden := overrides[component]; overridden {
				continue
			}
			required[component] = true
		}
	}
	return required, nil
}

// componentFor maps a full interface name (e.g.
// "wasmcp:mcp-v20250618/tools@0.1.9") to its framework-component name.
func componentFor(fullInterfaceName string) (string, bool) {
	if !strings.HasPrefix(fullInterfaceName, wasmcpNamespace) {
		return "", false // satisfied by the host runtime (e.g. wasi:*), not by composition
	}

	shortName := shortName(fullInterfaceName)
	if shortName == "store" {
		if strings.Contains(fullInterfaceName, "keyvalue") {
			return "kv-store", true
		}
		return "", false
	}
	component, ok := shortNameToComponent[shortName]
	return component, ok
}

// shortName extracts the interface segment from "<namespace>:<package>/<interface>@<version>".
func shortName(fullInterfaceName string) string {
	_, afterSlash, ok := strings.Cut(fullInterfaceName, "/")
	if !ok {
		return fullInterfaceName
	}
	name, _, _ := strings.Cut(afterSlash, "@")
	return name
}
