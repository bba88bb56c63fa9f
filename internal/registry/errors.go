package registry

import (
	"fmt"
	"strings"
)

// UnknownModelError reports a shorthand that is not in the registry.
type UnknownModelError struct {
	Shorthand string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q (known: %s)", e.Shorthand, strings.Join(Shorthands(), ", "))
}

// UnsupportedOverrideError reports an explicit --cli override that cannot run
// the requested model family. Overrides are never silently rerouted.
type UnsupportedOverrideError struct {
	CLI       string
	Shorthand string
	Family    string
}

func (e *UnsupportedOverrideError) Error() string {
	return fmt.Sprintf("CLI %q cannot run model %q (%s family); supported: %s",
		e.CLI, e.Shorthand, e.Family, strings.Join(fallbackChains[e.Family], ", "))
}
