// Package inspect implements the Import Inspector (spec component C4): it
// parses a WebAssembly component binary's import section and returns the
// exact interface-name strings it imports, without instantiating the
// component.
package inspect

import (
	"io"
	"os"

	"github.com/wasmcp/wasmcp/internal/composerr"
	"github.com/wasmcp/wasmcp/internal/wasmbin"
)

// InterfaceName is a fully-qualified "namespace:package/interface@version"
// string, matched by exact string equality only (spec.md §3).
type InterfaceName = string

// ImportsOf parses componentPath's import section and returns the exact
// interface-name strings it declares, in declaration order.
func ImportsOf(componentPath string) ([]InterfaceName, error) {
	data, err := readFile(componentPath)
	if err != nil {
		return nil, err
	}

	sections, err := wasmbin.ReadSections(data)
	if err != nil {
		return nil, &composerr.BinaryParse{Path: componentPath, Cause: err}
	}

	var names []InterfaceName
	for _, sec := range sections {
		if sec.ID != wasmbin.SecImport {
			continue
		}
		imported, err := wasmbin.ParseNames(sec.Body)
		if err != nil {
			return nil, &composerr.BinaryParse{Path: componentPath, Cause: err}
		}
		names = append(names, imported...)
	}
	return names, nil
}

// Imports is a convenience wrapper reporting whether componentPath imports
// a specific interface name. The inspector performs no matching or
// normalization beyond exact string equality (spec.md §4.4).
func Imports(componentPath string, interfaceName InterfaceName) (bool, error) {
	names, err := ImportsOf(componentPath)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == interfaceName {
			return true, nil
		}
	}
	return false, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &composerr.Io{Op: "open", Path: path, Cause: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &composerr.Io{Op: "read", Path: path, Cause: err}
	}
	return data, nil
}
