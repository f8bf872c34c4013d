package contracts

import (
	"errors"
	"fmt"
)

// DataIntegrityError is a structural failure that invalidates every downstream join.
// It aborts the run; single bad records are never reported this way.
type DataIntegrityError struct {
	Source Source
	Stage  Stage
	Rule   string
	Detail string
}

func (e *DataIntegrityError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("data integrity [%s] %s: %s", e.Stage.ShortName(), e.Rule, e.Detail)
	}
	return fmt.Sprintf("data integrity [%s/%s] %s: %s", e.Stage.ShortName(), e.Source, e.Rule, e.Detail)
}

// NewIntegrityError builds a DataIntegrityError
func NewIntegrityError(stage Stage, source Source, rule, format string, args ...interface{}) error {
	return &DataIntegrityError{
		Source: source,
		Stage:  stage,
		Rule:   rule,
		Detail: fmt.Sprintf(format, args...),
	}
}

// IsIntegrityError reports whether err (or anything it wraps) is a DataIntegrityError
func IsIntegrityError(err error) bool {
	var ie *DataIntegrityError
	return errors.As(err, &ie)
}

// Integrity rule identifiers
const (
	RuleMissingColumns = "missing_key_columns"
	RuleDuplicateKey   = "duplicate_key"
	RuleWeekMismatch   = "week_numbering_mismatch"
)
