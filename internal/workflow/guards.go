package workflow

import "fmt"

// DenialCode classifies why a transition was refused.
type DenialCode string

const (
	DenyUnknownCurrent DenialCode = "unrecognized_current_status"
	DenyUnknownTarget  DenialCode = "unrecognized_target_status"
	DenyNoChange       DenialCode = "already_in_status"
	DenyTerminal       DenialCode = "terminal_status"
	DenyNotPermitted   DenialCode = "transition_not_permitted"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Code    DenialCode
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

func deny(code DenialCode, format string, args ...any) GuardResult {
	return GuardResult{Allowed: false, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// ValidateTransition evaluates whether a complaint may move from current to
// requested.
// Rules, in order:
// - current must be a recognised status
// - requested must be a recognised status
// - requested must differ from current
// - current must not be terminal
// - requested must be in current's allowed set
func ValidateTransition(current, requested Status) GuardResult {
	if !IsValid(current) {
		return deny(DenyUnknownCurrent,
			"current status %q is not a recognised status", current)
	}

	if !IsValid(requested) {
		return deny(DenyUnknownTarget,
			"%q is not a valid status. Valid statuses: %s", requested, join(statuses, ", "))
	}

	if current == requested {
		return deny(DenyNoChange, "complaint is already %q", current)
	}

	allowed := transitions[current]
	if len(allowed) == 0 {
		return deny(DenyTerminal,
			"%q is a terminal status and cannot be changed", current)
	}

	for _, next := range allowed {
		if next == requested {
			return GuardResult{Allowed: true}
		}
	}

	return deny(DenyNotPermitted,
		`cannot transition from %q to %q. Allowed: "%s"`, current, requested, join(allowed, `", "`))
}
