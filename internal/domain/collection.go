package domain

import (
	"errors"
	"time"
)

var (
	ErrCollectionNotFound    = errors.New("collection not found")
	ErrCollectionNameTaken   = errors.New("collection with this name already exists")
	ErrInvalidSchema         = errors.New("invalid collection schema")
	ErrRecordNotFound        = errors.New("record not found")
	ErrUniqueViolation       = errors.New("unique constraint violation")
	ErrReferenceViolation    = errors.New("reference constraint violation")
	ErrConcurrencyConflict   = errors.New("record was modified since it was last read")
	ErrUnknownField          = errors.New("unknown field")
	ErrRequiredFieldMissing  = errors.New("required field missing")
	ErrDuplicateFieldName    = errors.New("duplicate field name in schema")
	ErrBackfillHasDuplicates = errors.New("cannot add unique flag: existing duplicate values")
)

// FieldType enumerates the kinds a FieldDef may declare.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldNumber    FieldType = "number"
	FieldInteger   FieldType = "integer"
	FieldBoolean   FieldType = "boolean"
	FieldArray     FieldType = "array"
	FieldObject    FieldType = "object"
	FieldDate      FieldType = "date"
	FieldReference FieldType = "reference"
)

// FieldDef describes one field of a collection's schema.
type FieldDef struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required"`
	Unique     bool      `json:"unique"`
	Default    any       `json:"default,omitempty"`
	Min        *float64  `json:"min,omitempty"`
	Max        *float64  `json:"max,omitempty"`
	MinLength  *int      `json:"min_length,omitempty"`
	MaxLength  *int      `json:"max_length,omitempty"`
	Pattern    string    `json:"pattern,omitempty"`
	Collection string    `json:"collection,omitempty"` // reference target, only for FieldReference
}

// Collection is a dynamic, schema-driven record store.
type Collection struct {
	ID            string
	Name          string
	Label         string
	Schema        []FieldDef
	SchemaVersion int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Record is one row of a collection, keyed by a collision-resistant ID.
type Record struct {
	ID             string
	CollectionName string
	OwnerID        *string
	Data           map[string]any
	Version        int64 // monotonic per-record counter backing optimistic concurrency
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UniqueIndex is the lifecycle-managed (collection, field, normalized
// value) -> record_id mapping enforcing FieldDef.Unique.
type UniqueIndex struct {
	CollectionName  string
	FieldName       string
	NormalizedValue string
	RecordID        string
}

// UniqueViolationError names the field whose uniqueness constraint a write
// violated (spec §8.1's "Conflict with field path"), while still satisfying
// errors.Is(err, ErrUniqueViolation) for callers that only care about the
// sentinel.
type UniqueViolationError struct {
	Field string
}

func (e *UniqueViolationError) Error() string {
	return ErrUniqueViolation.Error() + ": " + e.Field
}

func (e *UniqueViolationError) Unwrap() error { return ErrUniqueViolation }

// ValidationError describes one field-path failure from schema validation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return v.Field + ": " + v.Message
}

// ValidationErrors is a non-empty list of ValidationError, itself an error.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	msg := v[0].Error()
	for _, e := range v[1:] {
		msg += "; " + e.Error()
	}
	return msg
}
