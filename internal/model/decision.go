package model

import "time"

// Decision is the outcome of evaluating one action attempt.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	Reason        string    `json:"reason"`
	MatchedRuleID string    `json:"matched_rule_id,omitempty"`
	PolicyVersion string    `json:"policy_version,omitempty"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// ActionAttempt is what the host reports when an actor tries to do something.
type ActionAttempt struct {
	ActorID     string    `json:"actor_id"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	Permissions []string  `json:"permissions,omitempty"`
}

// HasPermission reports whether the attempt carries perm.
func (a *ActionAttempt) HasPermission(perm string) bool {
	return HasPermission(a.Permissions, perm)
}

// HasPermission reports whether perms contains perm.
func HasPermission(perms []string, perm string) bool {
	if perm == "" {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}
