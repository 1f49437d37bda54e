package domain

import (
	"errors"
	"time"
)

var (
	ErrSettingNotFound  = errors.New("setting not found")
	ErrSettingTypeMismatch = errors.New("setting value does not match declared type")
)

// ValueType is the declared type of a runtime Setting's value.
type ValueType string

const (
	ValueString ValueType = "string"
	ValueInt    ValueType = "int"
	ValueFloat  ValueType = "float"
	ValueBool   ValueType = "bool"
	ValueJSON   ValueType = "json"
)

// Setting is one row of the runtime, DB-backed settings layer (spec §4.G).
// Core keys live under a reserved prefix; extension keys under
// "ext.<name>.*".
type Setting struct {
	Key       string
	Value     []byte // raw JSON-encoded value
	ValueType ValueType
	UpdatedAt time.Time
}

// AuditEvent is an append-only record of an administrative mutation.
type AuditEvent struct {
	ID         string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Metadata   []byte // opaque JSON
	CreatedAt  time.Time
}
