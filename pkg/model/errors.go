package model

import "fmt"

const (
	FlagNotFoundErrorCode = "FLAG_NOT_FOUND"
	ParseErrorCode        = "PARSE_ERROR"
)

// ConfigFetchError wraps a transport or parse failure against the flag
// authority. The engine keeps serving the last-good snapshot when one
// occurs.
type ConfigFetchError struct {
	Source string
	Err    error
}

func (e *ConfigFetchError) Error() string {
	return fmt.Sprintf("fetching flag definitions from %s: %v", e.Source, e.Err)
}

func (e *ConfigFetchError) Unwrap() error {
	return e.Err
}

// ValidationError reports a single definition that failed schema or
// invariant checks. The definition is dropped from the snapshot, the
// rest of the batch is unaffected.
type ValidationError struct {
	ID     string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid flag definition %q: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("invalid flag definition %q: field %s: %s", e.ID, e.Field, e.Reason)
}
