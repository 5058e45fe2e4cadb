// Package catalog implements the Version Catalog (spec component C1): the
// canonical table mapping each framework-component name to its exact pinned
// version, loaded from an embedded manifest, with per-invocation overrides.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wasmcp/wasmcp/internal/composerr"
)

// Class is the syntactic classification of a framework component name.
type Class int

const (
	// Structural components occupy a fixed pipeline position: only
	// "transport" and "method-not-found" are structural.
	Structural Class = iota
	// Middleware components both import and export server-handler; by
	// convention their name ends in "-middleware".
	Middleware
	// Service components export a capability consumed via a non-chain
	// interface (authorization, kv-store, session-store, ...).
	Service
)

func (c Class) String() string {
	switch c {
	case Structural:
		return "structural"
	case Middleware:
		return "middleware"
	case Service:
		return "service"
	default:
		return "unknown"
	}
}

const specPrefix = "mcp-v"

//go:embed versions.yaml
var embeddedManifest []byte

// manifest is the on-disk shape of the embedded version manifest.
type manifest struct {
	Components map[string]string `yaml:"components"`
	Specs      map[string]string `yaml:"specs"`
	WASI       map[string]string `yaml:"wasi"`
}

// Catalog is immutable after Load: version_of/classify/framework_names/
// wasi_version as described in spec.md §4.1.
type Catalog struct {
	versions map[string]string // merged components+specs, overrides applied
	wasi     map[string]string
	names    []string // framework component names (specs excluded), sorted
}

// Load parses the embedded manifest and merges request-supplied overrides.
// Overrides mutate only the version lookup, never the classification
// (spec.md §3 invariant) — classification is purely syntactic on the name,
// computed on demand by Classify, so there is nothing for Load to recompute.
func Load(overrides map[string]string) (*Catalog, error) {
	var m manifest
	if err := yaml.Unmarshal(embeddedManifest, &m); err != nil {
		return nil, fmt.Errorf("parsing embedded version manifest: %w", err)
	}

	versions := make(map[string]string, len(m.Components)+len(m.Specs))
	names := make([]string, 0, len(m.Components))
	for name, v := range m.Components {
		versions[name] = v
		names = append(names, name)
	}
	for name, v := range m.Specs {
		versions[name] = v
	}
	for name, ref := range overrides {
		// The override replaces the catalog's pinned *version* lookup for
		// this name only; it does not add the name to framework_names if it
		// wasn't already a framework component, and it carries the literal
		// reference string rather than forcing it through version parsing
		// (an override may be a local path, not a version).
		versions[name] = ref
	}

	sort.Strings(names)

	return &Catalog{
		versions: versions,
		wasi:     m.WASI,
		names:    names,
	}, nil
}

// VersionOf returns the exact pinned (or overridden) version/reference for
// name, or a MissingVersion error if name is unknown.
func (c *Catalog) VersionOf(name string) (string, error) {
	v, ok := c.versions[name]
	if !ok {
		return "", &composerr.MissingVersion{Name: name}
	}
	return v, nil
}

// Classify returns the syntactic classification of a framework component
// name. Purely syntactic: independent of overrides (spec.md §3 invariant).
func Classify(name string) Class {
	switch name {
	case "transport", "method-not-found":
		return Structural
	}
	if strings.HasSuffix(name, "-middleware") {
		return Middleware
	}
	return Service
}

// FrameworkNames returns all framework-component names in the catalog,
// excluding protocol-spec keys (those matching "mcp-v*").
func (c *Catalog) FrameworkNames() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// WASIVersion returns the pinned WASI version for a short interface name
// ("http", "cli").
func (c *Catalog) WASIVersion(iface string) (string, error) {
	v, ok := c.wasi[iface]
	if !ok {
		return "", &composerr.MissingVersion{Name: "wasi:" + iface}
	}
	return v, nil
}

// IsSpecName reports whether name is a protocol-spec key (e.g. "mcp-v20250618")
// rather than a framework-component name.
func IsSpecName(name string) bool {
	return strings.HasPrefix(name, specPrefix)
}
