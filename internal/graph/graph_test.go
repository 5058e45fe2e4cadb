package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcp/wasmcp/internal/catalog"
	"github.com/wasmcp/wasmcp/internal/composerr"
	"github.com/wasmcp/wasmcp/internal/wasmbin"
)

func writeComponent(t *testing.T, dir, name string, imports, exports []string) string {
	t.Helper()
	data := wasmbin.Header()
	data = wasmbin.AppendSection(data, wasmbin.SecImport, wasmbin.AppendNameVector(nil, imports))
	data = wasmbin.AppendSection(data, wasmbin.SecExport, wasmbin.AppendNameVector(nil, exports))
	path := filepath.Join(dir, name+".wasm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRegisterPackage_DuplicateName(t *testing.T) {
	dir := t.TempDir()
	path := writeComponent(t, dir, "a", nil, nil)

	g := New()
	_, err := g.RegisterPackage("wasmcp:a", path)
	require.NoError(t, err)
	_, err = g.RegisterPackage("wasmcp:a", path)
	require.Error(t, err)
}

func TestRegisterPackage_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.wasm")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

	g := New()
	_, err := g.RegisterPackage("wasmcp:bogus", path)
	var parseErr *composerr.BinaryParse
	require.ErrorAs(t, err, &parseErr)
}

func TestAlias_MissingExport(t *testing.T) {
	dir := t.TempDir()
	path := writeComponent(t, dir, "a", nil, []string{"foo"})

	g := New()
	pkg, err := g.RegisterPackage("wasmcp:a", path)
	require.NoError(t, err)
	node, err := g.Instantiate(pkg)
	require.NoError(t, err)

	_, err = g.Alias(node, "bar")
	var missing *composerr.MissingExport
	require.ErrorAs(t, err, &missing)
}

func TestEncode_MissingImportBinding(t *testing.T) {
	dir := t.TempDir()
	path := writeComponent(t, dir, "a", []string{"needs-something"}, nil)

	g := New()
	pkg, err := g.RegisterPackage("wasmcp:a", path)
	require.NoError(t, err)
	_, err = g.Instantiate(pkg)
	require.NoError(t, err)

	_, err = g.Encode()
	var missing *composerr.MissingImportBinding
	require.ErrorAs(t, err, &missing)
}

func TestEncode_WasiImportsIgnored(t *testing.T) {
	dir := t.TempDir()
	path := writeComponent(t, dir, "a", []string{"wasi:cli/environment@0.2.3"}, nil)

	g := New()
	pkg, err := g.RegisterPackage("wasmcp:a", path)
	require.NoError(t, err)
	_, err = g.Instantiate(pkg)
	require.NoError(t, err)

	_, err = g.Encode()
	require.NoError(t, err)
}

func TestEncode_PassthroughExempted(t *testing.T) {
	dir := t.TempDir()
	path := writeComponent(t, dir, "a", []string{"needs-something"}, nil)

	g := New()
	pkg, err := g.RegisterPackage("wasmcp:a", path)
	require.NoError(t, err)
	node, err := g.Instantiate(pkg)
	require.NoError(t, err)
	g.MarkPassthrough(node, "needs-something")

	_, err = g.Encode()
	require.NoError(t, err)
}

func TestBuild_HandlerMode_SingleComponent(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer

	dir := t.TempDir()
	userPath := writeComponent(t, dir, "calc", nil, []string{handlerIface})

	out, err := Build(BuildRequest{
		Catalog:   cat,
		UserPaths: []string{userPath},
		Mode:      "handler",
	})
	r.NoError(err)
	r.NotEmpty(out)

	sections, err := wasmbin.ReadSections(out)
	r.NoError(err)
	var exportSections int
	for _, s := range sections {
		if s.ID == wasmbin.SecExport {
			exportSections++
		}
	}
	r.Equal(1, exportSections)
}

func TestBuild_HandlerMode_NoHandlerExport(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)

	dir := t.TempDir()
	userPath := writeComponent(t, dir, "calc", nil, nil)

	_, err = Build(BuildRequest{
		Catalog:   cat,
		UserPaths: []string{userPath},
		Mode:      "handler",
	})
	r.Error(err)
}

func TestBuild_ServerMode_FullChain(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer
	httpVer, err := cat.WASIVersion("http")
	r.NoError(err)
	cliVer, err := cat.WASIVersion("cli")
	r.NoError(err)

	dir := t.TempDir()
	mnfPath := writeComponent(t, dir, "mnf", nil, []string{handlerIface})
	transportPath := writeComponent(t, dir, "transport", []string{handlerIface}, []string{
		"wasi:http/incoming-handler@" + httpVer,
		"wasi:cli/run@" + cliVer,
	})
	userPath := writeComponent(t, dir, "calc", []string{handlerIface}, []string{handlerIface})

	out, err := Build(BuildRequest{
		Catalog: cat,
		FrameworkPaths: map[string]string{
			"method-not-found": mnfPath,
			"transport":        transportPath,
		},
		UserPaths: []string{userPath},
		Mode:      "server",
	})
	r.NoError(err)
	r.NotEmpty(out)
}

func TestBuild_ServerMode_MissingTransport(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer

	dir := t.TempDir()
	mnfPath := writeComponent(t, dir, "mnf", nil, []string{handlerIface})

	_, err = Build(BuildRequest{
		Catalog:        cat,
		FrameworkPaths: map[string]string{"method-not-found": mnfPath},
		UserPaths:      []string{writeComponent(t, dir, "calc", nil, nil)},
		Mode:           "server",
	})
	r.Error(err)
	var invalid *composerr.InvalidInput
	r.ErrorAs(err, &invalid)
}

// TestGraph_ReverseOrderChaining verifies spec.md §8's reverse-order
// chaining property directly against the Graph primitives: given a pipeline
// [A, B, C] declared in that (leftmost-outermost) order, instantiated
// innermost-first as Build does, A's handler import binds to an alias of
// B's export, B's to C's, and C's to method-not-found's — not the reverse.
func TestGraph_ReverseOrderChaining(t *testing.T) {
	r := require.New(t)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@0.1.0"

	g := New()
	dir := t.TempDir()
	mnfPkg, err := g.RegisterPackage("wasmcp:mnf", writeComponent(t, dir, "mnf", nil, []string{handlerIface}))
	r.NoError(err)
	aPkg, err := g.RegisterPackage("wasmcp:a", writeComponent(t, dir, "a", []string{handlerIface}, []string{handlerIface}))
	r.NoError(err)
	bPkg, err := g.RegisterPackage("wasmcp:b", writeComponent(t, dir, "b", []string{handlerIface}, []string{handlerIface}))
	r.NoError(err)
	cPkg, err := g.RegisterPackage("wasmcp:c", writeComponent(t, dir, "c", []string{handlerIface}, []string{handlerIface}))
	r.NoError(err)

	mnfNode, err := g.Instantiate(mnfPkg)
	r.NoError(err)
	tail, err := g.Alias(mnfNode, handlerIface)
	r.NoError(err)

	// Build instantiates user components in reverse pipeline order: C, then
	// B, then A, each binding its handler import to the previous tail.
	cNode, err := g.Instantiate(cPkg)
	r.NoError(err)
	r.NoError(g.Bind(cNode, handlerIface, tail))
	tail, err = g.Alias(cNode, handlerIface)
	r.NoError(err)

	bNode, err := g.Instantiate(bPkg)
	r.NoError(err)
	r.NoError(g.Bind(bNode, handlerIface, tail))
	tail, err = g.Alias(bNode, handlerIface)
	r.NoError(err)

	aNode, err := g.Instantiate(aPkg)
	r.NoError(err)
	r.NoError(g.Bind(aNode, handlerIface, tail))
	tail, err = g.Alias(aNode, handlerIface)
	r.NoError(err)

	r.NoError(g.Export(handlerIface, tail))

	cArg := g.instances[cNode].args[handlerIface]
	r.Equal(mnfNode, g.aliases[cArg].from, "C's handler import must bind to method-not-found's export")

	bArg := g.instances[bNode].args[handlerIface]
	r.Equal(cNode, g.aliases[bArg].from, "B's handler import must bind to C's export")

	aArg := g.instances[aNode].args[handlerIface]
	r.Equal(bNode, g.aliases[aArg].from, "A's handler import must bind to B's export")
}

// TestBuild_RegistryFullyPopulatedBeforeAutoWire guards against interleaving
// instantiation with auto-wiring: "resources-middleware" sorts before
// "session-store" alphabetically, but imports an interface only
// "session-store" exports. The auto-wire registry must be fully populated
// across all required framework components before any of them auto-wires,
// regardless of name order.
func TestBuild_RegistryFullyPopulatedBeforeAutoWire(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer
	httpVer, err := cat.WASIVersion("http")
	r.NoError(err)
	cliVer, err := cat.WASIVersion("cli")
	r.NoError(err)
	const capability = "wasmcp:mcp-v20250618/session-data@0.1.0"

	dir := t.TempDir()
	mnfPath := writeComponent(t, dir, "mnf", nil, []string{handlerIface})
	transportPath := writeComponent(t, dir, "transport", []string{handlerIface}, []string{
		"wasi:http/incoming-handler@" + httpVer,
		"wasi:cli/run@" + cliVer,
	})
	resourcesMiddlewarePath := writeComponent(t, dir, "resources-middleware", []string{handlerIface, capability}, []string{handlerIface})
	sessionStorePath := writeComponent(t, dir, "session-store", nil, []string{capability})

	_, err = Build(BuildRequest{
		Catalog: cat,
		FrameworkPaths: map[string]string{
			"method-not-found":     mnfPath,
			"transport":            transportPath,
			"resources-middleware": resourcesMiddlewarePath,
			"session-store":        sessionStorePath,
		},
		Mode: "server",
	})
	r.NoError(err, "resources-middleware must see session-store's export even though it sorts first alphabetically")
}

// TestBuild_MethodNotFoundAutoWired guards against method-not-found being
// skipped by auto-wiring: per SPEC_FULL.md §9's generalized service
// auto-wire, any interface method-not-found imports (e.g. notifications)
// must be bindable from the service registry just like any other instance.
func TestBuild_MethodNotFoundAutoWired(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer
	httpVer, err := cat.WASIVersion("http")
	r.NoError(err)
	cliVer, err := cat.WASIVersion("cli")
	r.NoError(err)
	const notifications = "wasmcp:mcp-v20250618/notifications@0.1.0"

	dir := t.TempDir()
	mnfPath := writeComponent(t, dir, "mnf", []string{notifications}, []string{handlerIface})
	transportPath := writeComponent(t, dir, "transport", []string{handlerIface}, []string{
		"wasi:http/incoming-handler@" + httpVer,
		"wasi:cli/run@" + cliVer,
	})
	notifierPath := writeComponent(t, dir, "notifier", nil, []string{notifications})

	_, err = Build(BuildRequest{
		Catalog: cat,
		FrameworkPaths: map[string]string{
			"method-not-found": mnfPath,
			"transport":        transportPath,
			"notifier":         notifierPath,
		},
		Mode: "server",
	})
	r.NoError(err, "method-not-found's notifications import must be auto-wired like every other instance")
}

func TestBuild_AutoWiresServiceExport(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer
	authIface := "wasmcp:mcp-v20250618/server-auth@" + protoVer

	dir := t.TempDir()
	authPath := writeComponent(t, dir, "auth", nil, []string{authIface})
	userPath := writeComponent(t, dir, "calc", []string{authIface}, []string{handlerIface})

	out, err := Build(BuildRequest{
		Catalog:        cat,
		FrameworkPaths: map[string]string{"authorization": authPath},
		UserPaths:      []string{userPath},
		Mode:           "handler",
	})
	r.NoError(err)
	r.NotEmpty(out)
}

// TestBuild_TwoUserComponents_ChainAndServiceWiring exercises spec.md §8's
// Scenario 2: a two-component pipeline (auth-gate, calc) with a service
// dependency only the first component declares. auth-gate is listed first
// (leftmost) and must end up outermost, wrapping calc which wraps
// method-not-found; authorization is wired only into auth-gate since calc
// never imports it.
func TestBuild_TwoUserComponents_ChainAndServiceWiring(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer
	authIface := "wasmcp:mcp-v20250618/server-auth@" + protoVer
	httpVer, err := cat.WASIVersion("http")
	r.NoError(err)
	cliVer, err := cat.WASIVersion("cli")
	r.NoError(err)

	dir := t.TempDir()
	mnfPath := writeComponent(t, dir, "mnf", nil, []string{handlerIface})
	transportPath := writeComponent(t, dir, "transport", []string{handlerIface}, []string{
		"wasi:http/incoming-handler@" + httpVer,
		"wasi:cli/run@" + cliVer,
	})
	authPath := writeComponent(t, dir, "auth", nil, []string{authIface})
	authGatePath := writeComponent(t, dir, "auth-gate", []string{authIface, handlerIface}, []string{handlerIface})
	calcPath := writeComponent(t, dir, "calc", []string{handlerIface}, []string{handlerIface})

	out, err := Build(BuildRequest{
		Catalog: cat,
		FrameworkPaths: map[string]string{
			"method-not-found": mnfPath,
			"transport":        transportPath,
			"authorization":    authPath,
		},
		UserPaths: []string{authGatePath, calcPath},
		Mode:      "server",
	})
	r.NoError(err)
	r.NotEmpty(out)
}

// TestBuildGraph_HandlerModeMiddlewareSplice guards against required
// middleware being dropped from the chain in handler mode: with no
// method-not-found to seed a tail, a required middleware component must
// become the innermost link itself (its own export becomes the tail) rather
// than being silently passed over, so a user component that imports
// server-handler binds to it instead of bypassing it.
func TestBuildGraph_HandlerModeMiddlewareSplice(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer

	dir := t.TempDir()
	middlewarePath := writeComponent(t, dir, "tools-middleware", []string{handlerIface}, []string{handlerIface})
	calcPath := writeComponent(t, dir, "calc", []string{handlerIface}, []string{handlerIface})

	g, tail, haveTail, err := buildGraph(BuildRequest{
		Catalog:        cat,
		FrameworkPaths: map[string]string{"tools-middleware": middlewarePath},
		UserPaths:      []string{calcPath},
		Mode:           "handler",
	})
	r.NoError(err)
	r.True(haveTail)

	// Node order: 0 = tools-middleware instance, 1 = its server-handler
	// alias (the splice's new tail), 2 = calc instance, 3 = calc's
	// server-handler alias (the final tail).
	middlewareNode := NodeID(0)
	middlewareAlias := NodeID(1)
	calcNode := NodeID(2)

	r.Equal(middlewareNode, g.aliases[middlewareAlias].from, "tools-middleware's export must be aliased into the chain")

	boundArg, ok := g.instances[calcNode].args[handlerIface]
	r.True(ok, "calc's server-handler import must be bound, not left passthrough, once a middleware tail exists")
	r.Equal(middlewareAlias, boundArg, "calc must bind to tools-middleware's export, not bypass it")

	r.Equal(calcNode, g.aliases[tail].from, "the final tail must be calc's own export, wrapping tools-middleware")
}

// TestBuildGraph_UserComponentExportAutoWired guards against user-component
// exports being invisible to auto-wiring: SPEC_FULL.md §9 generalizes the
// service registry to any registered package's exports, user components
// included, so an outer user component can import a capability only an
// inner user component exports.
func TestBuildGraph_UserComponentExportAutoWired(t *testing.T) {
	r := require.New(t)
	cat, err := catalog.Load(nil)
	r.NoError(err)
	protoVer, err := cat.VersionOf("mcp-v20250618")
	r.NoError(err)
	handlerIface := "wasmcp:mcp-v20250618/server-handler@" + protoVer
	const capability = "wasmcp:mcp-v20250618/custom-cache@0.1.0"

	dir := t.TempDir()
	// outer imports a capability only inner (the innermost/terminal
	// component) exports; neither is a framework component.
	outerPath := writeComponent(t, dir, "outer", []string{handlerIface, capability}, []string{handlerIface})
	innerPath := writeComponent(t, dir, "inner", nil, []string{handlerIface, capability})

	g, _, _, err := buildGraph(BuildRequest{
		Catalog:   cat,
		UserPaths: []string{outerPath, innerPath},
		Mode:      "handler",
	})
	r.NoError(err)

	// Node order: 0 = inner instance (processed first, reverse order), 1 =
	// inner's server-handler alias (seeds the tail), 2 = outer instance.
	innerNode := NodeID(0)

	boundArg, ok := g.instances[NodeID(2)].args[capability]
	r.True(ok, "outer's import of inner's export must be auto-wired, not left unbound")
	r.Equal(innerNode, g.aliases[boundArg].from, "the bound alias must trace back to inner, the only exporter of the capability")
}
