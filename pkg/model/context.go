package model

import "time"

// EvaluationContext carries the caller-supplied data a single evaluation
// runs against. It is always caller-local and never shared.
type EvaluationContext struct {
	UserID      string         `json:"userId,omitempty"`
	AnonymousID string         `json:"anonymousId,omitempty"`
	Environment string         `json:"environment,omitempty"`
	CurrentTime time.Time      `json:"currentTime,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// StableKey is the identity used for bucketing and override matching:
// the user id when present, the anonymous id otherwise. Empty when the
// context carries neither.
func (c EvaluationContext) StableKey() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.AnonymousID
}

// Now returns the evaluation time in UTC, defaulting to wall-clock now
// when the caller left CurrentTime unset.
func (c EvaluationContext) Now() time.Time {
	if c.CurrentTime.IsZero() {
		return time.Now().UTC()
	}
	return c.CurrentTime.UTC()
}

// Reason records which branch of the precedence chain produced a decision.
type Reason string

const (
	KillSwitchReason        Reason = "kill_switch"
	OverrideReason          Reason = "override"
	RuleMatchedReason       Reason = "rule_matched"
	RuleUnmatchedReason     Reason = "rule_unmatched_default"
	InvalidDefinitionReason Reason = "invalid_definition"

	// FlagNotFoundReason is reported for ids absent from the snapshot.
	// It is an API-level reason: evaluating a definition never yields it.
	FlagNotFoundReason Reason = "flag_not_found"
)

// EvaluationResult is what the engine returns for every evaluation,
// including degraded ones.
type EvaluationResult struct {
	FlagID          string `json:"flagId"`
	Decision        bool   `json:"decision"`
	Reason          Reason `json:"reason"`
	SnapshotVersion uint64 `json:"snapshotVersion"`
}
