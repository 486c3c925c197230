package projects

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateID is returned by a repository when a record with the same ID exists
var ErrDuplicateID = errors.New("project id already exists")

// ErrInvalidTransition is returned when a chain status change is not allowed
var ErrInvalidTransition = errors.New("invalid chain status transition")

// ValidationError lists the input fields that failed validation
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

// Add records a failure for a field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// OrNil returns nil when no field failed
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError reports a lookup miss
type NotFoundError struct {
	Key   string
	Value string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("project with %s %q not found", e.Key, e.Value)
}

// PersistenceError wraps a record store failure
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("record store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
