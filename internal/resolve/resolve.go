// Package resolve implements the Reference Resolver (spec component C3):
// classifies a component reference as alias/path/registry and resolves it
// to a local file path, with cycle detection through the alias table.
package resolve

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/wasmcp/wasmcp/internal/composerr"
	"github.com/wasmcp/wasmcp/internal/ociclient"
)

// Kind is the syntactic classification of a ComponentReference (spec.md §3).
type Kind int

const (
	KindAlias Kind = iota
	KindPath
	KindRegistry
)

// Classify implements spec.md §3's ComponentReference classification.
// Registry classification is checked before path classification is the
// caller's job (see Resolve): Classify only reports the syntactic class of
// a bare string, in the priority order path-like, then registry-like, then
// alias-like, which matches spec.md's definition text; Resolve applies the
// §4.3-mandated "registry before path" precedence for the one ambiguous
// case (a reference containing both a path separator and a ':').
func Classify(ref string) Kind {
	if IsPathLike(ref) {
		return KindPath
	}
	if IsRegistryLike(ref) {
		return KindRegistry
	}
	return KindAlias
}

// IsPathLike reports whether ref is path-like per spec.md §3: starts with
// "./", "../", "~/", "/", "\", contains any path separator, or ends with
// ".wasm".
func IsPathLike(ref string) bool {
	switch {
	case strings.HasPrefix(ref, "./"),
		strings.HasPrefix(ref, "../"),
		strings.HasPrefix(ref, "~/"),
		strings.HasPrefix(ref, "/"),
		strings.HasPrefix(ref, `\`):
		return true
	}
	if strings.ContainsAny(ref, "/\\") {
		return true
	}
	return strings.HasSuffix(ref, ".wasm")
}

// IsRegistryLike reports whether ref contains ':'. It does not check
// path-likeness itself: Classify tests IsPathLike first, while Resolve tests
// IsRegistryLike first so that a reference with a ':' is always treated as a
// registry spec.
func IsRegistryLike(ref string) bool {
	return strings.Contains(ref, ":")
}

// AliasTable maps alias names to the reference they expand to.
type AliasTable map[string]string

// Resolver resolves component references to local paths (spec.md §4.3).
type Resolver struct {
	Aliases AliasTable
	OCI     ociclient.Resolver
	DepsDir string
	Home    string // expansion target for "~/"; empty uses os.UserHomeDir
}

// Resolve implements spec.md §4.3's algorithm.
func (r *Resolver) Resolve(ctx context.Context, reference string) (string, error) {
	return r.resolveChain(ctx, reference, nil)
}

func (r *Resolver) resolveChain(ctx context.Context, reference string, chain []string) (string, error) {
	for _, seen := range chain {
		if seen == reference {
			full := append(append([]string{}, chain...), reference)
			return "", &composerr.ReferenceResolution{
				Reference: reference,
				Chain:     full,
				Cause:     errCircularAlias,
			}
		}
	}
	chain = append(chain, reference)

	// Step 3: the alias table is authoritative and is consulted before any
	// syntactic classification (spec.md §4.3 step 3).
	if mapped, ok := r.Aliases[reference]; ok {
		return r.resolveChain(ctx, mapped, chain)
	}

	// Registry classification is checked before path classification (spec.md
	// §4.4 edge case): "ns:handler.wasm@1.0" must be a registry spec, not a
	// file, even though it ends in ".wasm". An alias-candidate with no table
	// entry falls through to the same registry-download path (spec.md §4.3
	// edge case), which will typically fail with a useful error.
	if IsRegistryLike(reference) {
		path, err := ociclient.ResolveSpec(ctx, r.OCI, reference, r.DepsDir, func(string) bool { return false })
		if err != nil {
			return "", &composerr.ReferenceResolution{Reference: reference, Chain: chain, Cause: err}
		}
		return path, nil
	}

	if IsPathLike(reference) {
		return r.canonicalize(reference, chain)
	}

	path, err := ociclient.ResolveSpec(ctx, r.OCI, reference, r.DepsDir, func(string) bool { return false })
	if err != nil {
		return "", &composerr.ReferenceResolution{Reference: reference, Chain: chain, Cause: err}
	}
	return path, nil
}

func (r *Resolver) canonicalize(ref string, chain []string) (string, error) {
	expanded := ref
	if strings.HasPrefix(ref, "~/") {
		home := r.Home
		if home == "" {
			h, err := os.UserHomeDir()
			if err != nil {
				return "", &composerr.ReferenceResolution{Reference: ref, Chain: chain, Cause: err}
			}
			home = h
		}
		expanded = filepath.Join(home, strings.TrimPrefix(ref, "~/"))
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", &composerr.ReferenceResolution{Reference: ref, Chain: chain, Cause: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &composerr.ReferenceResolution{Reference: ref, Chain: chain, Cause: errNotFound}
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return "", &composerr.ReferenceResolution{Reference: ref, Chain: chain, Cause: errNotFound}
	}
	return resolved, nil
}

var (
	errCircularAlias = circularAliasErr{}
	errNotFound      = notFoundErr{}
)

type circularAliasErr struct{}

func (circularAliasErr) Error() string { return "circular alias reference" }

type notFoundErr struct{}

func (notFoundErr) Error() string { return "referenced file does not exist" }
