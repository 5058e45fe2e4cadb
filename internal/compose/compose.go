// Package compose is the top-level driver (spec.md §2's control flow): it
// receives a Request, runs C3 over every user reference, C4+C5 to plan
// framework dependencies, C1+C2 to fetch them, and C6 to build and encode
// the composed component, writing the result to the output path.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/wasmcp/wasmcp/internal/catalog"
	"github.com/wasmcp/wasmcp/internal/composerr"
	"github.com/wasmcp/wasmcp/internal/config"
	"github.com/wasmcp/wasmcp/internal/graph"
	"github.com/wasmcp/wasmcp/internal/ociclient"
	"github.com/wasmcp/wasmcp/internal/plan"
	"github.com/wasmcp/wasmcp/internal/resolve"
)

// frameworkNamespace is the OCI namespace every framework component is
// published under.
const frameworkNamespace = "wasmcp"

var validTransports = map[string]bool{"http": true, "stdio": true}
var validRuntimes = map[string]bool{"spin": true, "wasmtime": true, "wasmcloud": true}
var validModes = map[string]bool{"server": true, "handler": true}

// Request is the ComposeRequest described in spec.md §3.
type Request struct {
	Components   []string
	Transport    string
	OutputPath   string
	Overrides    map[string]string
	DepsDir      string
	SkipDownload bool
	Force        bool
	Runtime      string
	Mode         string
}

func (r *Request) validate() error {
	if len(r.Components) == 0 {
		return &composerr.InvalidInput{Reason: "components must be non-empty"}
	}
	if !validTransports[r.Transport] {
		return &composerr.InvalidInput{Reason: fmt.Sprintf("unknown transport %q", r.Transport)}
	}
	if !validRuntimes[r.Runtime] {
		return &composerr.InvalidInput{Reason: fmt.Sprintf("unknown runtime %q", r.Runtime)}
	}
	if !validModes[r.Mode] {
		return &composerr.InvalidInput{Reason: fmt.Sprintf("unknown mode %q", r.Mode)}
	}
	if r.OutputPath == "" {
		return &composerr.InvalidInput{Reason: "output_path must be set"}
	}
	return nil
}

// Result reports what Run produced, for the CLI layer's success message and
// pipeline diagram.
type Result struct {
	OutputPath      string
	UserPaths       []string
	RequiredPaths   map[string]string
	ProtocolVersion string
}

// Run executes the full composition per spec.md §2's control flow.
func Run(ctx context.Context, req Request, oci ociclient.Resolver, cfg *config.Config, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(req.OutputPath); err == nil && !req.Force {
		return nil, &composerr.OutputExists{Path: req.OutputPath}
	}

	cat, err := catalog.Load(req.Overrides)
	if err != nil {
		return nil, composerr.Context("loading version catalog", err)
	}

	resolver := &resolve.Resolver{
		Aliases: resolve.AliasTable(cfg.Aliases),
		OCI:     oci,
		DepsDir: req.DepsDir,
	}

	userPaths := make([]string, len(req.Components))
	for i, ref := range req.Components {
		path, err := resolver.Resolve(ctx, ref)
		if err != nil {
			return nil, composerr.Context(fmt.Sprintf("resolving component %d (%q)", i, ref), err)
		}
		userPaths[i] = path
		logger.Debug("resolved user component", "reference", ref, "path", path)
	}

	// plan.Required is called with no overrides here, deliberately: its own
	// overrides-exclusion behavior (spec.md §4.5) answers "what must be
	// downloaded", but every framework component actually imported —
	// including one satisfied by an override — still needs a path to wire
	// into the graph. fetchFrameworkComponent resolves an override locally
	// instead of downloading it, so passing the full needed set here costs
	// nothing extra for non-overridden names and fixes the overridden ones.
	required, err := plan.Required(ctx, userPaths, nil)
	if err != nil {
		return nil, composerr.Context("planning framework dependencies", err)
	}
	if req.Mode == "server" {
		required["transport"] = true
		required["method-not-found"] = true
	}

	requiredNames := make([]string, 0, len(required))
	for name := range required {
		requiredNames = append(requiredNames, name)
	}
	sort.Strings(requiredNames)

	frameworkPaths := make(map[string]string, len(requiredNames))
	for _, name := range requiredNames {
		path, err := fetchFrameworkComponent(ctx, name, req, cat, oci, logger)
		if err != nil {
			return nil, composerr.Context(fmt.Sprintf("fetching framework component %q", name), err)
		}
		frameworkPaths[name] = path
	}

	protocolVersion, err := cat.VersionOf("mcp-v20250618")
	if err != nil {
		return nil, err
	}

	out, err := graph.Build(graph.BuildRequest{
		Catalog:        cat,
		FrameworkPaths: frameworkPaths,
		UserPaths:      userPaths,
		Mode:           req.Mode,
		Logger:         logger,
	})
	if err != nil {
		return nil, composerr.Context("building the composition graph", err)
	}

	if err := os.WriteFile(req.OutputPath, out, 0o644); err != nil {
		return nil, &composerr.Io{Op: "write", Path: req.OutputPath, Cause: err}
	}

	return &Result{
		OutputPath:      req.OutputPath,
		UserPaths:       userPaths,
		RequiredPaths:   frameworkPaths,
		ProtocolVersion: protocolVersion,
	}, nil
}

// fetchFrameworkComponent resolves name to a local path: an override (a path
// or registry spec, resolved by a Resolver with an empty alias table, so an
// alias name in an override is not expanded) takes precedence; otherwise the catalog's pinned version is downloaded
// through C2, honoring skip_download and the spin session-store variant
// (spec.md §4.6 tie-break).
func fetchFrameworkComponent(ctx context.Context, name string, req Request, cat *catalog.Catalog, oci ociclient.Resolver, logger *slog.Logger) (string, error) {
	if override, ok := req.Overrides[name]; ok {
		r := &resolve.Resolver{Aliases: resolve.AliasTable{}, OCI: oci, DepsDir: req.DepsDir}
		return r.Resolve(ctx, override)
	}

	packageName := variantName(name, req.Runtime)
	version, err := cat.VersionOf(name)
	if err != nil {
		return "", err
	}
	spec := ociclient.Spec{Namespace: frameworkNamespace, Name: packageName, Version: version}

	if req.SkipDownload {
		path := filepath.Join(req.DepsDir, spec.CacheFilename())
		if _, err := os.Stat(path); err != nil {
			return "", &composerr.DepsMissing{Name: name, Path: path}
		}
		return path, nil
	}

	logger.Debug("downloading framework component", "name", name, "spec", spec.String())
	return ociclient.Download(ctx, oci, spec, req.DepsDir)
}

// variantName substitutes a runtime-specific package variant where one
// exists (spec.md §4.6: "when the runtime is spin, the session-store
// dependency resolves to session-store-d2").
func variantName(name, runtime string) string {
	if name == "session-store" && runtime == "spin" {
		return "session-store-d2"
	}
	return name
}
