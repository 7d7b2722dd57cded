package sageflow

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeInputMissing   = "INPUT_MISSING"
	ErrCodeCompute        = "COMPUTE_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeConfig         = "CONFIG_ERROR"
	ErrCodeClassification = "CLASSIFICATION_ERROR"
	ErrCodePlanning       = "PLANNING_ERROR"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeNarrative      = "NARRATIVE_ERROR"
	ErrCodeCache          = "CACHE_ERROR"
	ErrCodeCancelled      = "EXECUTION_CANCELLED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// PipelineError is the structured error type used across the pipeline.
type PipelineError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeInputMissing)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "planning", "execution")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PipelineError.
func NewError(code, stage, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// IsPipelineError reports whether err is (or wraps) a PipelineError.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}

// CodeOf extracts the machine-readable code from an error, defaulting to
// ErrCodeCompute for plain errors surfaced by a tool.
func CodeOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var te *ToolError
	if errors.As(err, &te) {
		return string(te.Kind)
	}
	return ErrCodeCompute
}

// Specific error constructors

func NewConfigError(message string, cause error) *PipelineError {
	return NewError(ErrCodeConfig, "initialization", message, cause)
}

func NewClassificationError(cause error) *PipelineError {
	return NewError(ErrCodeClassification, "classification", "failed to classify request", cause)
}

func NewPlanningError(cause error) *PipelineError {
	return NewError(ErrCodePlanning, "planning", "failed to build task plan", cause)
}

func NewExecutionError(message string, cause error) *PipelineError {
	return NewError(ErrCodeExecution, "execution", message, cause)
}

func NewNarrativeError(cause error) *PipelineError {
	return NewError(ErrCodeNarrative, "narrative", "failed to generate narrative", cause)
}

func NewCacheError(operation string, cause error) *PipelineError {
	return NewError(ErrCodeCache, "cache", fmt.Sprintf("cache operation '%s' failed", operation), cause)
}

func NewCancelledError(stage string, cause error) *PipelineError {
	msg := "execution cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" {
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewTimeoutError(stage string, cause error) *PipelineError {
	return NewError(ErrCodeTimeout, stage, "execution timed out", cause)
}

func NewInternalError(stage, message string, cause error) *PipelineError {
	return NewError(ErrCodeInternal, stage, message, cause)
}

// ToolErrorKind classifies per-tool failures.
type ToolErrorKind string

const (
	// ToolErrorInputMissing indicates a required context key or parameter was absent.
	ToolErrorInputMissing ToolErrorKind = ErrCodeInputMissing
	// ToolErrorCompute indicates a numeric or logic fault inside the tool.
	ToolErrorCompute ToolErrorKind = ErrCodeCompute
	// ToolErrorTimeout indicates the pipeline deadline expired during the invocation.
	ToolErrorTimeout ToolErrorKind = ErrCodeTimeout
)

// ToolError is the tagged failure outcome of one tool invocation. It is
// recorded in the execution report and as an errors.<tool> context marker,
// never propagated to the pipeline caller.
type ToolError struct {
	Tool    string        `json:"tool_name"`
	Kind    ToolErrorKind `json:"kind"`
	Message string        `json:"message"`
	Cause   error         `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool '%s' %s: %s: %v", e.Tool, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("tool '%s' %s: %s", e.Tool, e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewInputMissingError reports an absent required context key or parameter.
func NewInputMissingError(tool, what string) *ToolError {
	return &ToolError{Tool: tool, Kind: ToolErrorInputMissing, Message: fmt.Sprintf("required input '%s' is missing", what)}
}

// NewComputeError reports a numeric or logic fault inside a tool.
func NewComputeError(tool, message string, cause error) *ToolError {
	return &ToolError{Tool: tool, Kind: ToolErrorCompute, Message: message, Cause: cause}
}

// NewToolTimeoutError reports a tool invocation cut off by the pipeline deadline.
func NewToolTimeoutError(tool string, cause error) *ToolError {
	return &ToolError{Tool: tool, Kind: ToolErrorTimeout, Message: "invocation exceeded pipeline deadline", Cause: cause}
}

// AsToolError normalizes an arbitrary tool failure into a ToolError.
func AsToolError(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		if te.Tool == "" {
			te.Tool = tool
		}
		return te
	}
	return NewComputeError(tool, "invocation failed", err)
}
