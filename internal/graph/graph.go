// Package graph implements the Composition Graph Builder (spec component
// C6): it registers framework and user components as packages in a typed
// composition graph, instantiates them in a prescribed order, wires every
// import to a matching export, and encodes the result to a single
// WebAssembly component binary.
//
// Package registration, instantiation, aliasing and export are modeled as a
// small staging graph (Package/Instance/Alias/Export, per spec.md §3's
// CompositionGraph), with an internal/dag graph underneath tracking
// "argument must exist before use" edges and refusing cycles.
package graph

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/wasmcp/wasmcp/internal/catalog"
	"github.com/wasmcp/wasmcp/internal/composerr"
	"github.com/wasmcp/wasmcp/internal/dag"
	"github.com/wasmcp/wasmcp/internal/wasmbin"
)

// PackageID identifies a registered component file.
type PackageID int

// NodeID identifies an instance or an alias within the graph.
type NodeID int

// Package is a registered component's metadata: the decoded import/export
// interface names and the raw file bytes, read once at registration time.
type Package struct {
	ID      PackageID
	Name    string // unique internal name, e.g. "wasmcp:transport" or "wasmcp:component-0"
	Path    string
	Data    []byte
	Imports []string
	Exports []string
}

type instanceNode struct {
	pkg  PackageID
	args map[string]NodeID // import interface name -> bound argument node
}

type aliasNode struct {
	from   NodeID
	export string
}

type exportEntry struct {
	name string
	node NodeID
}

// Graph is the mutable staging structure owned for the duration of one
// composition.
type Graph struct {
	packages map[PackageID]*Package
	pkgOrder []PackageID
	names    map[string]bool
	nextPkg  PackageID

	instances map[NodeID]*instanceNode
	aliases   map[NodeID]*aliasNode
	nodeOrder []NodeID // instantiation/alias order: spec.md §4.6's ordering rationale requires this be preserved
	nextNode  NodeID

	exports []exportEntry

	// passthrough marks (instance, import) pairs intentionally left unbound
	// so the composed result re-exposes them as its own import (spec.md
	// §4.6 step 5, handler mode).
	passthrough map[NodeID]map[string]bool

	deps *dag.Graph[int] // existence/cycle bookkeeping over NodeIDs, cast to int
}

// New creates an empty composition graph.
func New() *Graph {
	return &Graph{
		packages:    make(map[PackageID]*Package),
		names:       make(map[string]bool),
		instances:   make(map[NodeID]*instanceNode),
		aliases:     make(map[NodeID]*aliasNode),
		passthrough: make(map[NodeID]map[string]bool),
		deps:        dag.New[int](),
	}
}

// RegisterPackage reads path, parses it as a WebAssembly component, and
// registers it under the given unique internal name. Returns *BinaryParse if
// the file is not a valid component.
func (g *Graph) RegisterPackage(name, path string) (PackageID, error) {
	if g.names[name] {
		return 0, fmt.Errorf("internal name %q already registered", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, &composerr.Io{Op: "read", Path: path, Cause: err}
	}
	sections, err := wasmbin.ReadSections(data)
	if err != nil {
		return 0, &composerr.BinaryParse{Path: path, Cause: err}
	}

	var imports, exports []string
	for _, sec := range sections {
		switch sec.ID {
		case wasmbin.SecImport:
			names, err := wasmbin.ParseNames(sec.Body)
			if err != nil {
				return 0, &composerr.BinaryParse{Path: path, Cause: err}
			}
			imports = append(imports, names...)
		case wasmbin.SecExport:
			names, err := wasmbin.ParseNames(sec.Body)
			if err != nil {
				return 0, &composerr.BinaryParse{Path: path, Cause: err}
			}
			exports = append(exports, names...)
		}
	}

	id := g.nextPkg
	g.nextPkg++
	g.packages[id] = &Package{ID: id, Name: name, Path: path, Data: data, Imports: imports, Exports: exports}
	g.pkgOrder = append(g.pkgOrder, id)
	g.names[name] = true
	return id, nil
}

// Instantiate creates a new instance of a registered package.
func (g *Graph) Instantiate(pkg PackageID) (NodeID, error) {
	if _, ok := g.packages[pkg]; !ok {
		return 0, fmt.Errorf("package %d is not registered", pkg)
	}
	node := g.nextNode
	g.nextNode++
	g.instances[node] = &instanceNode{pkg: pkg, args: make(map[string]NodeID)}
	g.nodeOrder = append(g.nodeOrder, node)
	if err := g.deps.AddVertex(int(node), nil); err != nil {
		return 0, err
	}
	return node, nil
}

// Bind binds importName on instanceNode's import list to argument, an
// already-created node (alias or instance).
func (g *Graph) Bind(instanceNode NodeID, importName string, argument NodeID) error {
	inst, ok := g.instances[instanceNode]
	if !ok {
		return fmt.Errorf("node %d is not an instance", instanceNode)
	}
	if err := g.deps.AddEdge(int(instanceNode), int(argument), nil); err != nil {
		return fmt.Errorf("binding %q: %w", importName, err)
	}
	inst.args[importName] = argument
	return nil
}

// Alias extracts a named export from an instance, yielding a new node usable
// as an argument to Bind or as a target of Export. Returns *MissingExport if
// the instance's package does not export that interface.
func (g *Graph) Alias(from NodeID, export string) (NodeID, error) {
	inst, ok := g.instances[from]
	if !ok {
		return 0, fmt.Errorf("node %d is not an instance", from)
	}
	pkg := g.packages[inst.pkg]
	if !contains(pkg.Exports, export) {
		return 0, &composerr.MissingExport{Instance: pkg.Name, Interface: export}
	}

	node := g.nextNode
	g.nextNode++
	g.aliases[node] = &aliasNode{from: from, export: export}
	g.nodeOrder = append(g.nodeOrder, node)
	if err := g.deps.AddVertex(int(node), nil); err != nil {
		return 0, err
	}
	if err := g.deps.AddEdge(int(node), int(from), nil); err != nil {
		return 0, err
	}
	return node, nil
}

// Export designates node to become an export of the composed component
// under the given interface name.
func (g *Graph) Export(name string, node NodeID) error {
	if _, ok := g.instances[node]; !ok {
		if _, ok := g.aliases[node]; !ok {
			return fmt.Errorf("node %d does not exist", node)
		}
	}
	for _, e := range g.exports {
		if e.name == name {
			return fmt.Errorf("duplicate export %q", name)
		}
	}
	g.exports = append(g.exports, exportEntry{name: name, node: node})
	return nil
}

// MarkPassthrough records that importName on instanceNode is intentionally
// left unbound: the composed component re-exposes it as its own import
// rather than failing at encode (spec.md §4.6 step 5, handler mode).
func (g *Graph) MarkPassthrough(instanceNode NodeID, importName string) {
	if g.passthrough[instanceNode] == nil {
		g.passthrough[instanceNode] = make(map[string]bool)
	}
	g.passthrough[instanceNode][importName] = true
}

// Encode type-checks every instance's bindings and, if they are all
// satisfied, serializes the graph to a component binary. Unbound imports
// that are not host (wasi:) interfaces and not marked passthrough fail
// encoding with *MissingImportBinding*, naming the offending interface and
// instance (spec.md §4.6 step 6, §7).
func (g *Graph) Encode() ([]byte, error) {
	for _, node := range g.nodeOrder {
		inst, ok := g.instances[node]
		if !ok {
			continue
		}
		pkg := g.packages[inst.pkg]
		for _, imp := range pkg.Imports {
			if strings.HasPrefix(imp, "wasi:") {
				continue
			}
			if _, bound := inst.args[imp]; bound {
				continue
			}
			if g.passthrough[node][imp] {
				continue
			}
			return nil, &composerr.MissingImportBinding{Instance: pkg.Name, Interface: imp}
		}
	}

	indexOf := make(map[NodeID]uint32, len(g.nodeOrder))
	for i, n := range g.nodeOrder {
		indexOf[n] = uint32(i)
	}
	pkgIndexOf := make(map[PackageID]uint32, len(g.pkgOrder))
	for i, p := range g.pkgOrder {
		pkgIndexOf[p] = uint32(i)
	}

	out := wasmbin.Header()
	for _, pid := range g.pkgOrder {
		out = wasmbin.AppendSection(out, wasmbin.SecComponent, g.packages[pid].Data)
	}

	for _, node := range g.nodeOrder {
		if inst, ok := g.instances[node]; ok {
			names := make([]string, 0, len(inst.args))
			for name := range inst.args {
				names = append(names, name)
			}
			sort.Strings(names)

			body := wasmbin.AppendU32(nil, pkgIndexOf[inst.pkg])
			body = wasmbin.AppendU32(body, uint32(len(names)))
			for _, name := range names {
				body = wasmbin.AppendString(body, name)
				body = wasmbin.AppendU32(body, indexOf[inst.args[name]])
			}
			out = wasmbin.AppendSection(out, wasmbin.SecInstance, body)
			continue
		}
		if al, ok := g.aliases[node]; ok {
			body := wasmbin.AppendU32(nil, indexOf[al.from])
			body = wasmbin.AppendString(body, al.export)
			out = wasmbin.AppendSection(out, wasmbin.SecAlias, body)
		}
	}

	expBody := wasmbin.AppendU32(nil, uint32(len(g.exports)))
	for _, e := range g.exports {
		expBody = wasmbin.AppendString(expBody, e.name)
		expBody = wasmbin.AppendU32(expBody, indexOf[e.node])
	}
	out = wasmbin.AppendSection(out, wasmbin.SecExport, expBody)

	return out, nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// protocolSpec is the package portion of the MCP protocol-spec interface
// namespace; the catalog's version entry under this key is the interface
// version used to build "wasmcp:<protocolSpec>/server-handler@<version>".
const protocolSpec = "mcp-v20250618"

func serverHandlerInterface(cat *catalog.Catalog) (string, error) {
	v, err := cat.VersionOf(protocolSpec)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wasmcp:%s/server-handler@%s", protocolSpec, v), nil
}

// BuildRequest supplies everything the builder needs: resolved framework
// component paths (keyed by catalog name; transport and method-not-found
// are present only when Mode is "server"), resolved user component paths in
// pipeline order, and the version catalog used to compute interface names.
type BuildRequest struct {
	Catalog        *catalog.Catalog
	FrameworkPaths map[string]string
	UserPaths      []string
	Mode           string // "server" | "handler"
	Logger         *slog.Logger
}

// Build implements the full C6 algorithm (spec.md §4.6 steps 1-6) and
// returns the encoded component binary.
func Build(req BuildRequest) ([]byte, error) {
	g, _, _, err := buildGraph(req)
	if err != nil {
		return nil, err
	}
	return g.Encode()
}

// buildGraph implements steps 1-5 of the C6 algorithm (everything but the
// final Encode), returning the populated graph along with the chain's head
// node so tests can assert on wiring without decoding an encoded binary.
func buildGraph(req BuildRequest) (g *Graph, tail NodeID, haveTail bool, err error) {
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serverHandlerIface, err := serverHandlerInterface(req.Catalog)
	if err != nil {
		return nil, 0, false, err
	}

	g = New()

	// Step 1: load & register every framework package, transport included
	// (transport is only instantiated in step 5, so it always comes last).
	framework := make(map[string]PackageID, len(req.FrameworkPaths))
	for name, path := range req.FrameworkPaths {
		id, err := g.RegisterPackage("wasmcp:"+name, path)
		if err != nil {
			return nil, 0, false, composerr.Context(fmt.Sprintf("loading framework component %q", name), err)
		}
		framework[name] = id
	}

	// Step 1 (user components): component-name collisions among user inputs
	// are resolved by suffixing with the input index (spec.md §4.6 tie-break).
	userPkgs := make([]PackageID, len(req.UserPaths))
	for i, path := range req.UserPaths {
		id, err := g.RegisterPackage(fmt.Sprintf("wasmcp:component-%d", i), path)
		if err != nil {
			return nil, 0, false, composerr.Context(fmt.Sprintf("loading user component %d (%s)", i, path), err)
		}
		userPkgs[i] = id
	}

	registry := make(map[string]NodeID)   // interface name -> owning service instance
	aliasCache := make(map[string]NodeID) // interface name -> already-created alias of that export

	// Step 2: instantiate every required framework component other than
	// transport and method-not-found (handled separately below), in
	// catalog-sorted order for determinism, and fully populate the
	// auto-wire registry before anything is wired. Spec.md §4.6 requires the
	// registry complete before auto-wiring begins — a component that
	// auto-wires before a later-sorted component has registered its exports
	// would otherwise fail to find them (e.g. "resources-middleware" sorts
	// before "session-store" but may import one of its exports).
	requiredNames := make([]string, 0, len(framework))
	for name := range framework {
		if name == "transport" || name == "method-not-found" {
			continue
		}
		requiredNames = append(requiredNames, name)
	}
	sort.Strings(requiredNames)

	nodeByName := make(map[string]NodeID, len(requiredNames))
	for _, name := range requiredNames {
		node, err := g.Instantiate(framework[name])
		if err != nil {
			return nil, 0, false, err
		}
		nodeByName[name] = node
		registerExports(g, node, registry, serverHandlerIface)
		logger.Debug("instantiated framework component", "name", name)
	}

	// Step 3 (head): instantiate method-not-found and seed the chain, in
	// server mode only. The registry is already fully populated, so it can
	// auto-wire immediately (e.g. a notifications export from another
	// framework component), matching the rest of the pipeline.
	if req.Mode == "server" {
		mnfPkg, ok := framework["method-not-found"]
		if !ok {
			return nil, 0, false, &composerr.InvalidInput{Reason: "server mode requires a method-not-found framework component"}
		}
		mnfNode, err := g.Instantiate(mnfPkg)
		if err != nil {
			return nil, 0, false, err
		}
		if err := autoWire(g, mnfNode, registry, aliasCache, serverHandlerIface, logger); err != nil {
			return nil, 0, false, err
		}
		tail, err = g.Alias(mnfNode, serverHandlerIface)
		if err != nil {
			return nil, 0, false, composerr.Context("aliasing method-not-found's server-handler export", err)
		}
		haveTail = true
	}

	// Step 3 (middleware splice) & step 4 (auto-wire): second pass over the
	// same required framework components, now that the registry is
	// complete. Middleware-classified components are additionally spliced
	// into the handler chain, since a middleware both imports and exports
	// server-handler (spec.md glossary "Middleware").
	for _, name := range requiredNames {
		node := nodeByName[name]
		if err := autoWire(g, node, registry, aliasCache, serverHandlerIface, logger); err != nil {
			return nil, 0, false, err
		}

		if catalog.Classify(name) == catalog.Middleware {
			// A required middleware always becomes (part of) the chain: when
			// a tail already exists (method-not-found in server mode, or an
			// earlier-spliced middleware) it binds to it; otherwise it is the
			// innermost link yet instantiated (handler mode with no
			// method-not-found) and its import is left as a passthrough, the
			// same treatment method-not-found's absence gives a lone user
			// component. Either way its own export becomes the new tail, so
			// a later middleware or the user chain always has one to bind to.
			if haveTail {
				if err := g.Bind(node, serverHandlerIface, tail); err != nil {
					return nil, 0, false, composerr.Context(fmt.Sprintf("wiring %q into the handler chain", name), err)
				}
			} else {
				g.MarkPassthrough(node, serverHandlerIface)
			}
			newTail, err := g.Alias(node, serverHandlerIface)
			if err != nil {
				return nil, 0, false, composerr.Context(fmt.Sprintf("aliasing %q's server-handler export", name), err)
			}
			tail = newTail
			haveTail = true
		}
	}

	// Step 3 (body): user components in reverse pipeline order, so the
	// leftmost declared component ends up outermost (spec.md §4.6 ordering
	// rationale).
	for i := len(userPkgs) - 1; i >= 0; i-- {
		pkg := g.packages[userPkgs[i]]
		node, err := g.Instantiate(userPkgs[i])
		if err != nil {
			return nil, 0, false, err
		}

		if contains(pkg.Imports, serverHandlerIface) {
			if haveTail {
				if err := g.Bind(node, serverHandlerIface, tail); err != nil {
					return nil, 0, false, composerr.Context(fmt.Sprintf("wiring user component %d into the handler chain", i), err)
				}
			} else {
				g.MarkPassthrough(node, serverHandlerIface)
			}
		}

		if err := autoWire(g, node, registry, aliasCache, serverHandlerIface, logger); err != nil {
			return nil, 0, false, err
		}

		// User packages are registered packages too (spec.md §9's auto-wire
		// generalization is not restricted to framework components), so a
		// later-processed (earlier-declared) user component can auto-wire an
		// interface an inner one exports.
		registerExports(g, node, registry, serverHandlerIface)

		if contains(pkg.Exports, serverHandlerIface) {
			newTail, err := g.Alias(node, serverHandlerIface)
			if err != nil {
				return nil, 0, false, composerr.Context(fmt.Sprintf("aliasing user component %d's server-handler export", i), err)
			}
			tail = newTail
			haveTail = true
		}
	}

	// Step 5: wire and export transport (server mode) or export the head
	// directly (handler mode).
	if req.Mode == "server" {
		transportPkgID, ok := framework["transport"]
		if !ok {
			return nil, 0, false, &composerr.InvalidInput{Reason: "server mode requires a transport framework component"}
		}
		transportNode, err := g.Instantiate(transportPkgID)
		if err != nil {
			return nil, 0, false, err
		}
		if !haveTail {
			return nil, 0, false, &composerr.InvalidInput{Reason: "no component in the chain exports server-handler"}
		}
		if err := g.Bind(transportNode, serverHandlerIface, tail); err != nil {
			return nil, 0, false, composerr.Context("wiring transport into the handler chain", err)
		}
		if err := autoWire(g, transportNode, registry, aliasCache, serverHandlerIface, logger); err != nil {
			return nil, 0, false, err
		}

		httpVer, err := req.Catalog.WASIVersion("http")
		if err != nil {
			return nil, 0, false, err
		}
		cliVer, err := req.Catalog.WASIVersion("cli")
		if err != nil {
			return nil, 0, false, err
		}
		httpIface := fmt.Sprintf("wasi:http/incoming-handler@%s", httpVer)
		cliIface := fmt.Sprintf("wasi:cli/run@%s", cliVer)

		httpAlias, err := g.Alias(transportNode, httpIface)
		if err != nil {
			return nil, 0, false, composerr.Context("aliasing transport's WASI HTTP export", err)
		}
		if err := g.Export(httpIface, httpAlias); err != nil {
			return nil, 0, false, err
		}

		cliAlias, err := g.Alias(transportNode, cliIface)
		if err != nil {
			return nil, 0, false, composerr.Context("aliasing transport's WASI CLI export", err)
		}
		if err := g.Export(cliIface, cliAlias); err != nil {
			return nil, 0, false, err
		}
	} else {
		if !haveTail {
			return nil, 0, false, &composerr.InvalidInput{Reason: "handler mode requires at least one component exporting server-handler"}
		}
		if err := g.Export(serverHandlerIface, tail); err != nil {
			return nil, 0, false, err
		}
	}

	return g, tail, haveTail, nil
}

// autoWire implements step 4: for every import on node's package that is
// neither server-handler nor a wasi: host interface, look it up in the
// service registry and bind it if found. Unmatched imports are left unbound
// (Encode will reject them unless marked passthrough).
func autoWire(g *Graph, node NodeID, registry map[string]NodeID, aliasCache map[string]NodeID, serverHandlerIface string, logger *slog.Logger) error {
	inst := g.instances[node]
	pkg := g.packages[inst.pkg]

	for _, imp := range pkg.Imports {
		if imp == serverHandlerIface || strings.HasPrefix(imp, "wasi:") {
			continue
		}
		owner, ok := registry[imp]
		if !ok {
			logger.Debug("import left unbound: no matching service in the registry", "instance", pkg.Name, "interface", imp)
			continue
		}
		aliasNode, ok := aliasCache[imp]
		if !ok {
			a, err := g.Alias(owner, imp)
			if err != nil {
				return composerr.Context(fmt.Sprintf("aliasing service export %q", imp), err)
			}
			aliasCache[imp] = a
			aliasNode = a
		}
		if err := g.Bind(node, imp, aliasNode); err != nil {
			return composerr.Context(fmt.Sprintf("wiring %q's import %q", pkg.Name, imp), err)
		}
		logger.Debug("auto-wired import", "instance", pkg.Name, "interface", imp)
	}
	return nil
}

// registerExports adds node's non-server-handler exports to the service
// registry, first-registered wins (spec.md §4.6 tie-break).
func registerExports(g *Graph, node NodeID, registry map[string]NodeID, serverHandlerIface string) {
	inst := g.instances[node]
	pkg := g.packages[inst.pkg]
	for _, exp := range pkg.Exports {
		if exp == serverHandlerIface {
			continue
		}
		if _, exists := registry[exp]; !exists {
			registry[exp] = node
		}
	}
}
