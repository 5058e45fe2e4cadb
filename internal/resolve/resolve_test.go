package resolve

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOCI struct {
	tags    map[string][]string
	content []byte
}

func (f *fakeOCI) Tags(_ context.Context, namespace, name string) ([]string, error) {
	return f.tags[namespace+":"+name], nil
}

func (f *fakeOCI) Fetch(_ context.Context, _, _, _ string, dst io.Writer) error {
	_, err := dst.Write(f.content)
	return err
}

func TestClassify(t *testing.T) {
	r := require.New(t)
	r.Equal(KindPath, Classify("./foo.wasm"))
	r.Equal(KindPath, Classify("../foo.wasm"))
	r.Equal(KindPath, Classify("/abs/path.wasm"))
	r.Equal(KindRegistry, Classify("wasmcp:transport@1.0.0"))
	r.Equal(KindAlias, Classify("my-alias"))
}

func TestClassify_RegistryBeforePath(t *testing.T) {
	// A reference that both ends in .wasm and contains a ':' is registry-like
	// per spec.md's edge case: "ns:handler.wasm@1.0" is a registry spec.
	require.Equal(t, KindRegistry, Classify("ns:handler.wasm@1.0"))
}

func TestResolve_Path(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "comp.wasm")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	resolver := &Resolver{Aliases: AliasTable{}, OCI: &fakeOCI{}}
	got, err := resolver.Resolve(context.Background(), path)
	r.NoError(err)
	r.Equal(path, got)
}

func TestResolve_PathNotFound(t *testing.T) {
	resolver := &Resolver{Aliases: AliasTable{}, OCI: &fakeOCI{}}
	_, err := resolver.Resolve(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"))
	require.Error(t, err)
}

func TestResolve_Alias(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "comp.wasm")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	resolver := &Resolver{Aliases: AliasTable{"mine": path}, OCI: &fakeOCI{}}
	got, err := resolver.Resolve(context.Background(), "mine")
	r.NoError(err)
	r.Equal(path, got)
}

func TestResolve_AliasCycle(t *testing.T) {
	resolver := &Resolver{Aliases: AliasTable{"a": "b", "b": "a"}, OCI: &fakeOCI{}}
	_, err := resolver.Resolve(context.Background(), "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "chain")
}

func TestResolve_Registry(t *testing.T) {
	r := require.New(t)
	oci := &fakeOCI{
		tags:    map[string][]string{"wasmcp:transport": {"1.0.0", "1.1.0"}},
		content: []byte("wasm bytes"),
	}
	depsDir := t.TempDir()
	resolver := &Resolver{Aliases: AliasTable{}, OCI: oci, DepsDir: depsDir}

	path, err := resolver.Resolve(context.Background(), "wasmcp:transport")
	r.NoError(err)
	data, err := os.ReadFile(path)
	r.NoError(err)
	r.Equal("wasm bytes", string(data))
}

func TestResolve_AliasToRegistry(t *testing.T) {
	r := require.New(t)
	oci := &fakeOCI{
		tags:    map[string][]string{"wasmcp:transport": {"1.0.0"}},
		content: []byte("wasm bytes"),
	}
	depsDir := t.TempDir()
	resolver := &Resolver{Aliases: AliasTable{"t": "wasmcp:transport@1.0.0"}, OCI: oci, DepsDir: depsDir}

	_, err := resolver.Resolve(context.Background(), "t")
	r.NoError(err)
}
