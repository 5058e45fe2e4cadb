// Package enum implements a pflag.Value restricted to a fixed set of
// choices, used for flags like --transport, --runtime, --mode, and
// --loglevel whose only valid values are a short enumerated list.
package enum

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// value is a pflag.Value that only accepts one of a fixed set of choices.
type value struct {
	choices []string
	current *string
}

func (v *value) String() string {
	if v.current == nil {
		return ""
	}
	return *v.current
}

func (v *value) Set(s string) error {
	for _, c := range v.choices {
		if s == c {
			*v.current = s
			return nil
		}
	}
	return fmt.Errorf("must be one of [%s], got %q", strings.Join(v.choices, ", "), s)
}

func (v *value) Type() string {
	return "string"
}

// Var registers a new enum flag on fs, defaulting to choices[0].
func Var(fs *pflag.FlagSet, name string, choices []string, usage string) {
	if len(choices) == 0 {
		panic(fmt.Sprintf("enum flag %q registered with no choices", name))
	}
	current := choices[0]
	fs.Var(&value{choices: choices, current: &current}, name, usage)
}

// Get retrieves name's current value (Set already restricts it to the
// choices it was registered with), returning an error if the flag does not
// exist or was not registered via Var.
func Get(fs *pflag.FlagSet, name string) (string, error) {
	f := fs.Lookup(name)
	if f == nil {
		return "", fmt.Errorf("flag %q is not registered", name)
	}
	v, ok := f.Value.(*value)
	if !ok {
		return "", fmt.Errorf("flag %q was not registered as an enum", name)
	}
	return v.String(), nil
}
