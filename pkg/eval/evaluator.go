package eval

import (
	"bytes"
	"encoding/json"

	jsonlogic "github.com/diegoholiveira/jsonlogic/v3"
	log "github.com/sirupsen/logrus"

	"github.com/gigboard/flagcore/pkg/bucket"
	"github.com/gigboard/flagcore/pkg/model"
	"github.com/gigboard/flagcore/pkg/store"
)

// IEvaluator is the decision surface consumed by the service layer.
type IEvaluator interface {
	IsEnabled(flagID string, ctx model.EvaluationContext) bool
	Resolve(flagID string, ctx model.EvaluationContext) (model.EvaluationResult, bool)
	AllFlags() map[string]model.FlagDefinition
}

// Evaluator resolves flags against the store's current snapshot. It is
// safe for unbounded concurrent callers: every call dereferences the
// snapshot once and runs the pure evaluation below.
type Evaluator struct {
	store *store.Store
	sink  EventSink
}

func NewEvaluator(s *store.Store, opts ...Option) *Evaluator {
	e := &Evaluator{store: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Option func(*Evaluator)

// WithEventSink attaches an observability hook. The sink must not block;
// see ChannelSink.
func WithEventSink(sink EventSink) Option {
	return func(e *Evaluator) {
		e.sink = sink
	}
}

// IsEnabled returns the boolean decision for a flag. It never errors:
// an unknown flag id resolves to false.
func (e *Evaluator) IsEnabled(flagID string, ctx model.EvaluationContext) bool {
	result, _ := e.Resolve(flagID, ctx)
	return result.Decision
}

// Resolve evaluates a flag against the current snapshot. The second
// return is false when the flag id is not part of the snapshot, in
// which case the decision is false.
func (e *Evaluator) Resolve(flagID string, ctx model.EvaluationContext) (model.EvaluationResult, bool) {
	snapshot := e.store.Current()

	def, ok := snapshot.Definitions[flagID]
	if !ok {
		log.Debugf("unknown flag %q requested (snapshot v%d)", flagID, snapshot.Version)
		return model.EvaluationResult{
			FlagID:          flagID,
			Decision:        false,
			Reason:          model.FlagNotFoundReason,
			SnapshotVersion: snapshot.Version,
		}, false
	}

	decision, reason := Evaluate(def, ctx)
	result := model.EvaluationResult{
		FlagID:          flagID,
		Decision:        decision,
		Reason:          reason,
		SnapshotVersion: snapshot.Version,
	}
	if e.sink != nil {
		e.sink.Emit(Event{FlagID: flagID, Decision: decision, Reason: reason})
	}
	return result, true
}

// AllFlags returns a copy of the current snapshot's definitions.
func (e *Evaluator) AllFlags() map[string]model.FlagDefinition {
	return e.store.Current().Flags()
}

// Evaluate runs the precedence chain for a single definition. It is
// pure, performs no I/O and always produces a decision:
//
//  1. kill switch (enabled=false forces off, overrides included)
//  2. override matching the context's stable key
//  3. the type-specific rule
//  4. defaultValue when the rule cannot be evaluated with the given
//     context
func Evaluate(def model.FlagDefinition, ctx model.EvaluationContext) (bool, model.Reason) {
	if !def.Enabled {
		return false, model.KillSwitchReason
	}

	if key := ctx.StableKey(); key != "" {
		for _, o := range def.Overrides {
			if o.Key == key {
				return o.ForcedValue, model.OverrideReason
			}
		}
	}

	switch def.Type {
	case model.BooleanFlag:
		// enabled already established above
		return true, model.RuleMatchedReason

	case model.UserBasedFlag:
		return evaluateUserBased(def, ctx)

	case model.PercentRolloutFlag:
		if def.RolloutPercentage == nil {
			return def.DefaultValue, model.InvalidDefinitionReason
		}
		key := ctx.StableKey()
		if key == "" {
			return def.DefaultValue, model.RuleUnmatchedReason
		}
		return bucket.InRollout(def.ID, key, *def.RolloutPercentage), model.RuleMatchedReason

	case model.EnvironmentFlag:
		if ctx.Environment == "" {
			return def.DefaultValue, model.RuleUnmatchedReason
		}
		return def.HasTargetEnvironment(ctx.Environment), model.RuleMatchedReason

	case model.TimeBasedFlag:
		if def.ActiveWindow == nil {
			return def.DefaultValue, model.InvalidDefinitionReason
		}
		now := ctx.Now()
		if now.Before(def.ActiveWindow.Start.UTC()) {
			return false, model.RuleMatchedReason
		}
		if end := def.ActiveWindow.End; end != nil && now.After(end.UTC()) {
			return false, model.RuleMatchedReason
		}
		return true, model.RuleMatchedReason
	}

	return def.DefaultValue, model.InvalidDefinitionReason
}

func evaluateUserBased(def model.FlagDefinition, ctx model.EvaluationContext) (bool, model.Reason) {
	matched := false
	evaluable := false

	if ctx.UserID != "" {
		evaluable = true
		matched = def.HasTargetUser(ctx.UserID)
	}

	if !matched && len(def.TargetSegmentExpr) > 0 {
		ok, err := matchSegment(def.TargetSegmentExpr, ctx.Attributes)
		if err != nil {
			log.Debugf("segment expression for flag %q failed: %v", def.ID, err)
		} else {
			evaluable = true
			matched = ok
		}
	}

	if !evaluable {
		return def.DefaultValue, model.RuleUnmatchedReason
	}
	return matched, model.RuleMatchedReason
}

// matchSegment applies a JsonLogic predicate to the context attributes.
func matchSegment(expr json.RawMessage, attributes map[string]any) (bool, error) {
	if attributes == nil {
		attributes = map[string]any{}
	}
	data, err := json.Marshal(attributes)
	if err != nil {
		return false, err
	}
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(expr), bytes.NewReader(data), &out); err != nil {
		return false, err
	}

	var decision bool
	if err := json.Unmarshal(out.Bytes(), &decision); err != nil {
		// non-boolean rule output is treated as no match
		return false, nil
	}
	return decision, nil
}
