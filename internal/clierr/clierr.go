// Package clierr defines structured error types for CLI commands.
// Errors carry a machine-readable code, a human-readable message,
// and optional details for agent consumption.
package clierr

import (
	"fmt"
	"strconv"
)

// Error code constants — uppercase, underscore-separated, stable across minor versions.
const (
	TaskNotFound     = "TASK_NOT_FOUND"
	SourceNotFound   = "SOURCE_NOT_FOUND"
	ConfigNotFound   = "CONFIG_NOT_FOUND"
	ConfigExists     = "CONFIG_ALREADY_EXISTS"
	InvalidInput     = "INVALID_INPUT"
	InvalidEngine    = "INVALID_ENGINE"
	NotARepo         = "NOT_A_GIT_REPO"
	MissingInstall   = "MISSING_INSTALL_ARTIFACT"
	AgentFailed      = "AGENT_FAILED"
	CompleteFailed   = "COMPLETE_FAILED"
	PRFailed         = "PR_FAILED"
	MergeConflict    = "MERGE_CONFLICT"
	ParallelRejected = "PARALLEL_REJECTED"
	ServerError      = "SERVER_ERROR"
	InternalError    = "INTERNAL_ERROR"
)

// Error represents a structured CLI error with a machine-readable code.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// New creates an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails returns the error with the given details map attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// ExitCode returns 2 for InternalError, 1 for all others.
func (e *Error) ExitCode() int {
	if e.Code == InternalError {
		return 2 //nolint:mnd // exit code 2 for internal errors
	}
	return 1
}

// SilentError signals an exit code without additional output.
// Used when results were already written to stdout, or when a signal
// handler has decided the process exit code.
type SilentError struct {
	Code int
}

// Error implements the error interface.
func (e *SilentError) Error() string { return "exit " + strconv.Itoa(e.Code) }
