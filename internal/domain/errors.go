package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewSubSystemError when a subsystem needs its
// own error code without minting a new sentinel.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrUnavailable  = fmt.Errorf("unavailable")
	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
)

// Sentinel errors for the routing core.
var (
	// Agent catalog mutations.
	ErrAlreadyRegistered = fmt.Errorf("agent already registered")
	ErrNotRegistered     = fmt.Errorf("agent not registered")

	// Routing candidate selection. ErrNoCapableAgents means no record declares
	// the capability at all; ErrNoActiveAgents means capable records exist but
	// none has active status.
	ErrNoCapableAgents = fmt.Errorf("no agents declare the required capability")
	ErrNoActiveAgents  = fmt.Errorf("no active agents for the required capability")

	// A candidate record is missing the fields scoring needs. Routing aborts
	// rather than scoring on bad data.
	ErrInvalidMetrics = fmt.Errorf("agent metrics missing or invalid")

	// Tool catalog lookup.
	ErrToolNotFound = fmt.Errorf("tool not found")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Catalog.Register")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "session", "tool"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem so that
// ErrorCodeOf can map a category sentinel to a subsystem-specific code.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel maps to exactly one code.
const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeAgentDuplicate    ErrorCode = "AGENT_DUPLICATE"
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeNoCapableAgents   ErrorCode = "NO_CAPABLE_AGENTS"
	CodeNoActiveAgents    ErrorCode = "NO_ACTIVE_AGENTS"
	CodeInvalidMetrics    ErrorCode = "INVALID_METRICS"
	CodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	CodeSessionUnavailable ErrorCode = "SESSION_UNAVAILABLE"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"

	// Category fallbacks when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeUnavailable  ErrorCode = "UNAVAILABLE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrInvalidInput: CodeInvalidInput,
	ErrUnavailable:  CodeUnavailable,
	ErrConfigLoad:   CodeConfigLoad,

	ErrAlreadyRegistered: CodeAgentDuplicate,
	ErrNotRegistered:     CodeAgentNotFound,
	ErrNoCapableAgents:   CodeNoCapableAgents,
	ErrNoActiveAgents:    CodeNoActiveAgents,
	ErrInvalidMetrics:    CodeInvalidMetrics,
	ErrToolNotFound:      CodeToolNotFound,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific codes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"tool":  CodeToolNotFound,
		"agent": CodeAgentNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrUnavailable: {
		"session": CodeSessionUnavailable,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		return de.Code()
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code first.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(e.Err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
