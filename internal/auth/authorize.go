package auth

import "fmt"

// AccessDecision is the structured outcome of a permission check.
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// MakeAccessDecision evaluates whether actor may exercise perm. Checks run
// in a fixed order (presence, active flag, role validity, permission
// membership) so denial reasons are deterministic.
func MakeAccessDecision(actor *Actor, perm Permission) AccessDecision {
	if actor == nil {
		return AccessDecision{Reason: "no authenticated user"}
	}
	if !actor.IsActive {
		return AccessDecision{Reason: "account is deactivated"}
	}
	if !ValidRole(actor.Role) {
		return AccessDecision{Reason: fmt.Sprintf("unknown role %q", actor.Role)}
	}
	if !HasPermission(actor.Role, perm) {
		return AccessDecision{Reason: fmt.Sprintf("role %s lacks permission %s", actor.Role, perm)}
	}
	return AccessDecision{Allowed: true}
}

// RequirePermission is the guard form of MakeAccessDecision: it returns
// ErrUnauthorized (wrapped with the denial reason) instead of a decision.
func RequirePermission(actor *Actor, perm Permission) error {
	d := MakeAccessDecision(actor, perm)
	if !d.Allowed {
		return fmt.Errorf("%w: %s", ErrUnauthorized, d.Reason)
	}
	return nil
}
