package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/gigboard/flagcore/schemas"
)

var definitionSchema = mustSchema()

func mustSchema() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemas.FlagDefinitionSchema))
	if err != nil {
		panic(fmt.Sprintf("flag definition schema does not compile: %v", err))
	}
	return s
}

// rawPayload is the minimal shape of an authority response.
type rawPayload struct {
	Flags []json.RawMessage `json:"flags"`
}

// ParseDefinitions turns a raw authority payload into validated flag
// definitions. Each record is schema-checked and invariant-checked
// independently: invalid records are dropped and reported, never fatal
// to the batch. Only a payload that is not parseable at all returns an
// error.
func ParseDefinitions(raw []byte) ([]FlagDefinition, []ValidationError, error) {
	var payload rawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", ParseErrorCode, err)
	}

	defs := make([]FlagDefinition, 0, len(payload.Flags))
	var dropped []ValidationError
	seen := map[string]bool{}

	for i, rec := range payload.Flags {
		def, verr := parseDefinition(rec)
		if verr != nil {
			if verr.ID == "" {
				verr.ID = fmt.Sprintf("record[%d]", i)
			}
			dropped = append(dropped, *verr)
			continue
		}
		if seen[def.ID] {
			dropped = append(dropped, ValidationError{ID: def.ID, Field: "id", Reason: "duplicate id in batch"})
			continue
		}
		seen[def.ID] = true
		defs = append(defs, def)
	}

	return defs, dropped, nil
}

func parseDefinition(rec json.RawMessage) (FlagDefinition, *ValidationError) {
	// best-effort id extraction so drops can be reported by id even when
	// the record fails validation
	var probe struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rec, &probe)

	result, err := definitionSchema.Validate(gojsonschema.NewBytesLoader(rec))
	if err != nil {
		return FlagDefinition{}, &ValidationError{ID: probe.ID, Reason: err.Error()}
	}
	if !result.Valid() {
		return FlagDefinition{}, &ValidationError{ID: probe.ID, Reason: schemaFailure(result)}
	}

	var def FlagDefinition
	if err := json.Unmarshal(rec, &def); err != nil {
		return FlagDefinition{}, &ValidationError{ID: probe.ID, Reason: err.Error()}
	}

	if _, err := ParseFlagType(string(def.Type)); err != nil {
		return FlagDefinition{}, &ValidationError{ID: def.ID, Field: "type", Reason: err.Error()}
	}
	if def.RolloutPercentage != nil {
		if p := *def.RolloutPercentage; p < 0 || p > 100 {
			return FlagDefinition{}, &ValidationError{ID: def.ID, Field: "rolloutPercentage", Reason: fmt.Sprintf("%d out of range [0,100]", p)}
		}
	}
	if w := def.ActiveWindow; w != nil && w.End != nil && w.End.Before(w.Start) {
		return FlagDefinition{}, &ValidationError{ID: def.ID, Field: "activeWindow", Reason: "end precedes start"}
	}

	return def, nil
}

func schemaFailure(result *gojsonschema.Result) string {
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
