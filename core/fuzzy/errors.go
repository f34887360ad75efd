package fuzzy

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a malformed universe, shape, variable or rule.
// It is fatal at startup.
type ConfigurationError struct {
	Variable string
	Term     string
	Rule     string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid fuzzy configuration")
	if e.Rule != "" {
		fmt.Fprintf(&b, ": rule %q", e.Rule)
	}
	if e.Variable != "" {
		fmt.Fprintf(&b, ": variable %q", e.Variable)
	}
	if e.Term != "" {
		fmt.Fprintf(&b, ": term %q", e.Term)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// ConfigurationWarning reports a tolerated oddity, e.g. a membership function
// whose support reaches outside its variable's universe.
type ConfigurationWarning struct {
	Variable string
	Term     string
	Reason   string
}

func (w *ConfigurationWarning) Error() string {
	return fmt.Sprintf("fuzzy configuration warning: variable %q: term %q: %s",
		w.Variable, w.Term, w.Reason)
}

// MissingInputError is returned when a rule references a variable that was
// not fuzzified in the current pass.
type MissingInputError struct {
	Variable string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing fuzzified input for variable %q", e.Variable)
}

// NoRuleFiredWarning is returned together with a fallback crisp value when the
// aggregated output set is zero everywhere.
type NoRuleFiredWarning struct {
	Output   string
	Fallback float64
}

func (w *NoRuleFiredWarning) Error() string {
	return fmt.Sprintf("no rule fired for output %q, using fallback %v", w.Output, w.Fallback)
}
