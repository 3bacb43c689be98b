package normalize

import (
	"errors"
	"fmt"
)

// ErrSchema is matched by every *SchemaError via errors.Is.
var ErrSchema = errors.New("schema error")

// SchemaError reports a backend payload that lacks fields required to
// correlate it. Index is the position within a batch, or -1 for a whole payload.
type SchemaError struct {
	Entity string
	Index  int
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("schema error: %s[%d]: %s", e.Entity, e.Index, e.Reason)
	}
	return fmt.Sprintf("schema error: %s: %s", e.Entity, e.Reason)
}

// Is makes errors.Is(err, ErrSchema) true for any SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func schemaErr(entity, reason string) *SchemaError {
	return &SchemaError{Entity: entity, Index: -1, Reason: reason}
}

// withIndex records a batch position on a SchemaError.
func withIndex(err error, i int) error {
	var se *SchemaError
	if errors.As(err, &se) {
		se.Index = i
	}
	return err
}
