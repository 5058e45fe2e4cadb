// Package composerr defines the error taxonomy produced by the composition
// engine. Every exported type carries the structured context a caller needs
// to act on it; those with a Cause field wrap the proximate cause and
// implement Unwrap. None of them are recovered internally.
package composerr

import (
	"fmt"
	"strings"
)

// InvalidInput signals a malformed ComposeRequest: empty component list,
// unknown transport/runtime/mode, or similar.
type InvalidInput struct {
	Reason string
}

func (e *InvalidInput) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// ReferenceResolution signals a failure while resolving a component
// reference: an alias cycle or a path that does not exist.
type ReferenceResolution struct {
	Reference string
	Chain     []string
	Cause     error
}

func (e *ReferenceResolution) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("could not resolve reference %q: %s (chain: %s)", e.Reference, e.Cause, strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("could not resolve reference %q: %s", e.Reference, e.Cause)
}

func (e *ReferenceResolution) Unwrap() error { return e.Cause }

// Download signals a network failure, missing release, or an all-yanked
// version set while fetching a registry spec.
type Download struct {
	Spec  string
	Cause error
}

func (e *Download) Error() string {
	return fmt.Sprintf("failed to download %q: %s", e.Spec, e.Cause)
}

func (e *Download) Unwrap() error { return e.Cause }

// DepsMissing signals that skip_download was set but a required framework
// component is not present on disk.
type DepsMissing struct {
	Name string
	Path string
}

func (e *DepsMissing) Error() string {
	return fmt.Sprintf("framework component %q not found at %q and downloads are disabled", e.Name, e.Path)
}

// BinaryParse signals that a file is not a valid WebAssembly component.
type BinaryParse struct {
	Path  string
	Cause error
}

func (e *BinaryParse) Error() string {
	return fmt.Sprintf("%q is not a valid WebAssembly component: %s", e.Path, e.Cause)
}

func (e *BinaryParse) Unwrap() error { return e.Cause }

// MissingExport signals that a composition step expected an interface on a
// component that does not export it.
type MissingExport struct {
	Instance  string
	Interface string
}

func (e *MissingExport) Error() string {
	return fmt.Sprintf("instance %q does not export %q", e.Instance, e.Interface)
}

// MissingImportBinding signals that graph encoding found an unbound import.
type MissingImportBinding struct {
	Instance  string
	Interface string
}

func (e *MissingImportBinding) Error() string {
	return fmt.Sprintf("instance %q has an unbound import %q", e.Instance, e.Interface)
}

// OutputExists signals that output_path exists and force is false.
type OutputExists struct {
	Path string
}

func (e *OutputExists) Error() string {
	return fmt.Sprintf("output %q already exists (use --force to overwrite)", e.Path)
}

// Io wraps a filesystem read/write failure.
type Io struct {
	Op    string
	Path  string
	Cause error
}

func (e *Io) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Op, e.Path, e.Cause)
}

func (e *Io) Unwrap() error { return e.Cause }

// Context annotates an error with "while <doing>" without losing the
// original error's identity for errors.Is/errors.As.
func Context(doing string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("while %s: %w", doing, err)
}

// MissingVersion signals that the catalog has no entry for a name.
type MissingVersion struct {
	Name string
}

func (e *MissingVersion) Error() string {
	return fmt.Sprintf("no version is pinned for %q", e.Name)
}
