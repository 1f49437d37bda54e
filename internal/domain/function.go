package domain

import (
	"errors"
	"time"
)

var (
	ErrFunctionNotFound    = errors.New("function not found")
	ErrFunctionNameTaken   = errors.New("function with this name already exists")
	ErrVersionNotFound     = errors.New("function version not found")
	ErrBadSource           = errors.New("could not parse function source metadata")
	ErrCallNotFound        = errors.New("function call not found")
	ErrNoActiveVersion     = errors.New("function has no active version")
)

// AuthLevel gates who may invoke a function.
type AuthLevel string

const (
	AuthPublic AuthLevel = "public"
	AuthUser   AuthLevel = "auth"
	AuthAdmin  AuthLevel = "admin"
)

// FunctionDefinition is the stable identity of a user-authored function;
// its code lives in versions (FunctionVersion), never here.
type FunctionDefinition struct {
	ID           string
	Name         string
	Description  string
	AuthLevel    AuthLevel
	Tags         []string
	ModuleSource string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FunctionVersion is one immutable, content-addressed deployment of a
// function's source. Exactly one version per function has IsActive=true.
type FunctionVersion struct {
	ID           string
	FunctionName string
	ContentHash  string
	SourceText   string
	InlineDeps   []string
	DeployedBy   string
	DeployedAt   time.Time
	Notes        string
	IsActive     bool
}

// CallTrigger records what caused a FunctionCall to exist.
type CallTrigger string

const (
	TriggerManual   CallTrigger = "manual"
	TriggerSchedule CallTrigger = "schedule"
	TriggerAPI      CallTrigger = "api"
)

// CallStatus is the lifecycle state of a FunctionCall. Terminal states
// (everything but Pending/Running) never change once reached.
type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallRunning   CallStatus = "running"
	CallSucceeded CallStatus = "succeeded"
	CallFailed    CallStatus = "failed"
	CallTimedOut  CallStatus = "timed_out"
	CallCancelled CallStatus = "cancelled"
)

func (s CallStatus) Terminal() bool {
	switch s {
	case CallSucceeded, CallFailed, CallTimedOut, CallCancelled:
		return true
	default:
		return false
	}
}

// FunctionCall is one invocation, from insertion in Pending through a
// terminal state. Owned end-to-end by the Execution Engine.
type FunctionCall struct {
	ID           string
	FunctionName string
	VersionID    string
	Trigger      CallTrigger
	CallerID     *string
	Status       CallStatus
	StartedAt    *time.Time
	EndedAt      *time.Time
	DurationMS   *int64
	Input        []byte // opaque JSON
	Output       []byte // opaque JSON, nil until success
	ErrorType    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
