package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlagType is the closed set of flag evaluation strategies.
type FlagType string

const (
	BooleanFlag        FlagType = "boolean"
	UserBasedFlag      FlagType = "userBased"
	PercentRolloutFlag FlagType = "percentRollout"
	EnvironmentFlag    FlagType = "environment"
	TimeBasedFlag      FlagType = "timeBased"
)

// ParseFlagType rejects anything outside the known set so that switches
// over FlagType stay total.
func ParseFlagType(s string) (FlagType, error) {
	switch t := FlagType(s); t {
	case BooleanFlag, UserBasedFlag, PercentRolloutFlag, EnvironmentFlag, TimeBasedFlag:
		return t, nil
	}
	return "", fmt.Errorf("unknown flag type %q", s)
}

// Override forces a decision for a specific stable key, bypassing the
// type rule. Overrides are matched in order, first match wins.
type Override struct {
	Key         string `json:"key"`
	ForcedValue bool   `json:"forcedValue"`
}

// Window is the active period of a timeBased flag. A nil End means the
// window has no upper limit.
type Window struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// FlagDefinition is a single flag as loaded from the authority. Once a
// definition is part of a snapshot it is never mutated.
type FlagDefinition struct {
	ID           string   `json:"id"`
	Type         FlagType `json:"type"`
	Enabled      bool     `json:"enabled"`
	DefaultValue bool     `json:"defaultValue"`

	TargetUserIDs      []string        `json:"targetUserIds,omitempty"`
	TargetSegmentExpr  json.RawMessage `json:"targetSegmentExpr,omitempty"`
	RolloutPercentage  *int            `json:"rolloutPercentage,omitempty"`
	TargetEnvironments []string        `json:"targetEnvironments,omitempty"`
	ActiveWindow       *Window         `json:"activeWindow,omitempty"`

	Overrides []Override `json:"overrides,omitempty"`
	Version   int64      `json:"version"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// HasTargetUser reports whether id is in the definition's target set.
func (d FlagDefinition) HasTargetUser(id string) bool {
	if id == "" {
		return false
	}
	for _, t := range d.TargetUserIDs {
		if t == id {
			return true
		}
	}
	return false
}

// HasTargetEnvironment reports whether env is in the definition's
// environment set.
func (d FlagDefinition) HasTargetEnvironment(env string) bool {
	for _, t := range d.TargetEnvironments {
		if t == env {
			return true
		}
	}
	return false
}
