// Package ociclient implements the Package Client (spec component C2): an
// OCI registry client that downloads "namespace:name@version" package specs
// into a deps directory. A package already present in the deps directory is
// not downloaded again; there is no other on-disk cache.
package ociclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"

	"github.com/wasmcp/wasmcp/internal/composerr"
)

// WASMLayerMediaType is the media type used to identify the single
// WebAssembly component layer within a package's OCI manifest.
const WASMLayerMediaType = "application/wasm"

// Spec is a parsed "namespace:name[@version]" registry package spec.
type Spec struct {
	Namespace string
	Name      string
	Version   string // empty means "latest non-yanked"
}

// ParseSpec parses a registry spec per spec.md §6's grammar:
// spec = namespace ":" name ["@" version].
func ParseSpec(s string) (Spec, error) {
	ns, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Spec{}, fmt.Errorf("%q is not a registry spec (missing ':')", s)
	}
	name, version, _ := strings.Cut(rest, "@")
	if ns == "" || name == "" {
		return Spec{}, fmt.Errorf("%q is not a registry spec (empty namespace or name)", s)
	}
	return Spec{Namespace: ns, Name: name, Version: version}, nil
}

// String reconstructs the canonical spec string.
func (s Spec) String() string {
	if s.Version == "" {
		return fmt.Sprintf("%s:%s", s.Namespace, s.Name)
	}
	return fmt.Sprintf("%s:%s@%s", s.Namespace, s.Name, s.Version)
}

// CacheFilename is the deps-cache filename convention from spec.md §6:
// "<namespace>_<name>@<version>.wasm".
func (s Spec) CacheFilename() string {
	safe := strings.NewReplacer(":", "_", "/", "_").Replace(s.String())
	return safe + ".wasm"
}

// Resolver abstracts the remote registry lookup so tests can substitute a
// fake without standing up a real OCI server; Client below is the
// production implementation backed by oras-go's remote.Repository.
type Resolver interface {
	// Tags lists all tags (versions) published for namespace/name.
	Tags(ctx context.Context, namespace, name string) ([]string, error)
	// Fetch downloads the single WASM layer for namespace:name@version and
	// writes it to dst.
	Fetch(ctx context.Context, namespace, name, version string, dst io.Writer) error
}

// RegistryHost resolves a namespace to an OCI registry host; most specs in
// this ecosystem share one default host, but namespaces may be configured
// to point elsewhere.
type RegistryHost func(namespace string) string

// Client is the production Package Client, grounded on
// bindings/go/oci/resolver.go's URLPathResolver: it builds an
// oras-go remote.Repository per reference and uses it for both tag listing
// and blob fetch.
type Client struct {
	Host       RegistryHost
	Credential auth.CredentialFunc
	PlainHTTP  bool

	// contentCacheDir is the directory passed to NewClient. Client stores
	// it but does not read from or write to it: Tags and Fetch always go to
	// the registry.
	contentCacheDir string

	authCache auth.Cache
}

// NewClient constructs a Client with the given registry host resolver and
// content cache directory (recorded only; see contentCacheDir). Credentials default to anonymous; a caller can
// set Client.Credential to an auth.CredentialFunc backed by a credential
// store for authenticated pulls.
func NewClient(host RegistryHost, contentCacheDir string) *Client {
	return &Client{
		Host:            host,
		Credential:      auth.StaticCredential("", auth.Credential{}),
		contentCacheDir: contentCacheDir,
		authCache:       auth.NewCache(),
	}
}

func (c *Client) repository(_ context.Context, namespace, name string) (*remote.Repository, error) {
	ref := fmt.Sprintf("%s/%s", c.Host(namespace), name)
	repo, err := remote.NewRepository(ref)
	if err != nil {
		return nil, fmt.Errorf("constructing repository for %q: %w", ref, err)
	}
	repo.PlainHTTP = c.PlainHTTP
	repo.Client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      c.authCache,
		Credential: c.Credential,
	}
	return repo, nil
}

// Tags implements Resolver.
func (c *Client) Tags(ctx context.Context, namespace, name string) ([]string, error) {
	repo, err := c.repository(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	var all []string
	if err := repo.Tags(ctx, "", func(tags []string) error {
		all = append(all, tags...)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("listing tags for %s:%s: %w", namespace, name, err)
	}
	return all, nil
}

// Fetch implements Resolver.
func (c *Client) Fetch(ctx context.Context, namespace, name, version string, dst io.Writer) error {
	repo, err := c.repository(ctx, namespace, name)
	if err != nil {
		return err
	}

	manifestDesc, err := repo.Resolve(ctx, version)
	if err != nil {
		return fmt.Errorf("resolving %s:%s@%s: %w", namespace, name, version, err)
	}

	manifestBytes, err := content.FetchAll(ctx, repo, manifestDesc)
	if err != nil {
		return fmt.Errorf("fetching manifest for %s:%s@%s: %w", namespace, name, version, err)
	}

	layerDesc, err := findWASMLayer(manifestBytes)
	if err != nil {
		return fmt.Errorf("%s:%s@%s: %w", namespace, name, version, err)
	}

	rc, err := repo.Fetch(ctx, layerDesc)
	if err != nil {
		return fmt.Errorf("fetching wasm layer for %s:%s@%s: %w", namespace, name, version, err)
	}
	defer rc.Close()

	if _, err := io.Copy(dst, rc); err != nil {
		return fmt.Errorf("writing wasm layer for %s:%s@%s: %w", namespace, name, version, err)
	}
	return nil
}

// findWASMLayer parses a fetched OCI manifest and returns the descriptor of
// its single application/wasm layer.
func findWASMLayer(manifestBytes []byte) (ocispec.Descriptor, error) {
	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return ocispec.Descriptor{}, fmt.Errorf("decoding manifest: %w", err)
	}
	for _, l := range manifest.Layers {
		if l.MediaType == WASMLayerMediaType {
			return l, nil
		}
	}
	return ocispec.Descriptor{}, errors.New("manifest has no application/wasm layer")
}

// Download fetches a registry spec into deps_dir, returning the local path
// per spec.md §4.2. If spec.Version is empty, it fetches the available
// versions, filters yanked ones, and picks the numerically greatest
// (grounded on cli/internal/repository/ocm/list.go's sortSemverVersions).
func Download(ctx context.Context, resolver Resolver, spec Spec, depsDir string) (string, error) {
	logger := slog.With("operation", "download", "spec", spec.String())

	version := spec.Version
	if version == "" || version == "latest" {
		versions, err := resolver.Tags(ctx, spec.Namespace, spec.Name)
		if err != nil {
			return "", &composerr.Download{Spec: spec.String(), Cause: err}
		}
		versions = filterYanked(versions)
		picked, err := greatestVersion(versions)
		if err != nil {
			return "", &composerr.Download{Spec: spec.String(), Cause: err}
		}
		version = picked
		logger = logger.With("resolved_version", version)
	}

	resolved := Spec{Namespace: spec.Namespace, Name: spec.Name, Version: version}
	dst := filepath.Join(depsDir, resolved.CacheFilename())

	if _, err := os.Stat(dst); err == nil {
		logger.Debug("already present in deps dir, skipping download", "path", dst)
		return dst, nil
	}

	logger.Debug("downloading")
	if err := atomicDownload(ctx, resolver, resolved, dst); err != nil {
		return "", &composerr.Download{Spec: spec.String(), Cause: err}
	}
	return dst, nil
}

// atomicDownload writes the fetched content to a temp path and renames it
// into place on success, so a subsequent run can trust presence-checks even
// if this invocation is interrupted (spec.md §4.2/§5).
func atomicDownload(ctx context.Context, resolver Resolver, spec Spec, dst string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &composerr.Io{Op: "mkdir", Path: filepath.Dir(dst), Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*.tmp")
	if err != nil {
		return &composerr.Io{Op: "create temp file", Path: filepath.Dir(dst), Cause: err}
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if ferr := resolver.Fetch(ctx, spec.Namespace, spec.Name, spec.Version, tmp); ferr != nil {
		_ = tmp.Close()
		return ferr
	}
	if cerr := tmp.Close(); cerr != nil {
		return &composerr.Io{Op: "close temp file", Path: tmpPath, Cause: cerr}
	}

	if rerr := os.Rename(tmpPath, dst); rerr != nil {
		return &composerr.Io{Op: "rename", Path: dst, Cause: rerr}
	}
	return nil
}

// DownloadMany downloads multiple specs concurrently and waits for all
// (spec.md §4.2 download_many; §5's "may complete in any order").
func DownloadMany(ctx context.Context, resolver Resolver, specs []Spec, depsDir string) (map[string]string, error) {
	results := make(map[string]string, len(specs))
	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		eg.Go(func() error {
			path, err := Download(egctx, resolver, spec, depsDir)
			if err != nil {
				return err
			}
			mu.Lock()
			results[spec.String()] = path
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ResolveSpec short-circuits a path-like reference without touching the
// network; registry-spec resolution is otherwise identical to Download.
// This lives here (rather than only in the reference resolver) because C2
// exposes resolve_spec directly per spec.md §4.2.
func ResolveSpec(ctx context.Context, resolver Resolver, ref string, depsDir string, isPathLike func(string) bool) (string, error) {
	if isPathLike(ref) {
		return ref, nil
	}
	spec, err := ParseSpec(ref)
	if err != nil {
		return "", err
	}
	return Download(ctx, resolver, spec, depsDir)
}

func filterYanked(versions []string) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		if !strings.HasSuffix(v, "-yanked") {
			out = append(out, v)
		}
	}
	return out
}

func greatestVersion(versions []string) (string, error) {
	if len(versions) == 0 {
		return "", errors.New("no non-yanked versions available")
	}
	parsed := make([]*semver.Version, 0, len(versions))
	byVersion := make(map[*semver.Version]string, len(versions))
	for _, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			continue // skip unparsable tags (e.g. "latest" aliases, sha-pinned tags)
		}
		parsed = append(parsed, sv)
		byVersion[sv] = v
	}
	if len(parsed) == 0 {
		return "", fmt.Errorf("no semantically versioned tags among %v", versions)
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].LessThan(parsed[j]) })
	return byVersion[parsed[len(parsed)-1]], nil
}
