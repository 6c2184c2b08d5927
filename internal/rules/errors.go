package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRegistryNotReady is returned by Dispatch when the registry has not been
// loaded successfully (either never loaded, or load failed).
var ErrRegistryNotReady = errors.New("rules: registry not ready")

// ValidationError reports a malformed or incomplete rule found at load time.
type ValidationError struct {
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rules: invalid rule %q: %s", e.Rule, e.Reason)
}

// CycleError reports a parent chain that does not terminate.
type CycleError struct {
	Rule string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("rules: hierarchy cycle detected at rule %q", e.Rule)
}

// EnforcementViolation records a failed or skipped action of an enforced rule.
type EnforcementViolation struct {
	Rule   string
	Action string
	Err    error
}

func (v *EnforcementViolation) Error() string {
	return fmt.Sprintf("rules: enforced rule %q action %q failed: %v", v.Rule, v.Action, v.Err)
}

func (v *EnforcementViolation) Unwrap() error { return v.Err }

// EnforcementViolations aggregates every violation of a single dispatch so
// one failure does not suppress reporting of the others.
type EnforcementViolations struct {
	Event      string
	Violations []*EnforcementViolation
}

func (e *EnforcementViolations) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Error()
	}
	return fmt.Sprintf("rules: %d enforcement violation(s) dispatching %q: %s",
		len(e.Violations), e.Event, strings.Join(parts, "; "))
}
