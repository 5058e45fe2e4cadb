// Package config implements the alias/profile configuration file consumed
// by C3 (aliases) and by the CLI layer (profile expansion), per spec.md §6.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wasmcp/wasmcp/internal/composerr"
)

// Profile is a named, reusable composition request fragment: an ordered
// component list, an optional base profile to inherit from, and an output
// path.
type Profile struct {
	Components []string `yaml:"components"`
	Base       string   `yaml:"base,omitempty"`
	Output     string   `yaml:"output,omitempty"`
}

// document is the on-disk shape of the configuration file.
type document struct {
	Aliases           map[string]string  `yaml:"aliases"`
	RegistryOverrides map[string]string  `yaml:"registry_overrides"`
	Profiles          map[string]Profile `yaml:"profiles"`
}

// Config is the parsed, in-memory configuration: an alias table (consumed
// directly by the reference resolver), a persistent framework-component
// override table (defaults for --version-override, overridden by any
// same-named flag passed on the command line), and a profile table
// (expanded only by the CLI layer).
type Config struct {
	Aliases           map[string]string
	RegistryOverrides map[string]string
	Profiles          map[string]Profile
}

// Load reads and parses the configuration file at path. A missing file is
// not an error: it is treated as an empty configuration, since alias and
// profile tables are both optional collaborators (spec.md §6).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{Aliases: map[string]string{}, RegistryOverrides: map[string]string{}, Profiles: map[string]Profile{}}, nil
	}
	if err != nil {
		return nil, &composerr.Io{Op: "read", Path: path, Cause: err}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing configuration %q: %w", path, err)
	}

	cfg := &Config{Aliases: doc.Aliases, RegistryOverrides: doc.RegistryOverrides, Profiles: doc.Profiles}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	if cfg.RegistryOverrides == nil {
		cfg.RegistryOverrides = map[string]string{}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return cfg, nil
}

// ResolveProfile expands name's inheritance chain: a profile with a base
// inherits the base's components (base's components first, in the base's
// own resolved order) and then the profile's own components appended, and
// the profile's own Output/settings override the base's. Cycle detection
// mirrors C3's resolution-chain algorithm (spec.md §6): each name visited in
// this expansion is tracked, and revisiting one fails fast.
func (c *Config) ResolveProfile(name string) (Profile, error) {
	return c.resolveProfileChain(name, nil)
}

func (c *Config) resolveProfileChain(name string, chain []string) (Profile, error) {
	for _, seen := range chain {
		if seen == name {
			full := append(append([]string{}, chain...), name)
			return Profile{}, fmt.Errorf("circular profile inheritance: %v", full)
		}
	}
	chain = append(chain, name)

	profile, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("no profile named %q", name)
	}
	if profile.Base == "" {
		return profile, nil
	}

	base, err := c.resolveProfileChain(profile.Base, chain)
	if err != nil {
		return Profile{}, err
	}

	resolved := Profile{
		Components: append(append([]string{}, base.Components...), profile.Components...),
		Output:     profile.Output,
	}
	if resolved.Output == "" {
		resolved.Output = base.Output
	}
	return resolved, nil
}
