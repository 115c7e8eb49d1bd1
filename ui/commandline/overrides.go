package commandline

import (
	"flag"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// OverridesFlag collects repeated `-s section.key=value` configuration
// overrides from the command line, in order. It implements flag.Value.
//
// Each occurrence may also hold several assignments separated by ";":
// e.g. "main.epochs=3;trainer.learning_rate=0.5".
type OverridesFlag struct {
	overrides []string
}

// CreateOverridesFlag registers the overrides flag with the given name on
// the default flag set and returns it. Read the collected assignments with
// Overrides after flag.Parse.
func CreateOverridesFlag(flagName string) *OverridesFlag {
	if flagName == "" {
		flagName = "set"
	}
	f := &OverridesFlag{}
	flag.Var(f, flagName,
		"Configuration override as `section.key=value`, applied after the configuration file is "+
			"parsed. A key without a section addresses [main]. May be repeated, and each occurrence "+
			"may hold several assignments separated by \";\".")
	return f
}

// String implements flag.Value.
func (f *OverridesFlag) String() string {
	return strings.Join(f.overrides, ";")
}

// Set implements flag.Value, checking each assignment has the
// `[section.]key=value` shape before recording it.
func (f *OverridesFlag) Set(value string) error {
	for _, assignment := range strings.Split(value, ";") {
		assignment = strings.TrimSpace(assignment)
		if assignment == "" {
			continue
		}
		if !strings.Contains(assignment, "=") {
			return errors.Errorf("override %q is not of the form section.key=value", assignment)
		}
		f.overrides = append(f.overrides, assignment)
	}
	return nil
}

// Overrides returns the collected assignments in the order given.
func (f *OverridesFlag) Overrides() []string {
	return f.overrides
}

var _ flag.Value = (*OverridesFlag)(nil)
var _ fmt.Stringer = (*OverridesFlag)(nil)
