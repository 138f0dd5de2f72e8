package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind string

const (
	InvalidConfig   Kind = "invalid_config"
	NotFound        Kind = "not_found"
	UnknownTimezone Kind = "unknown_timezone"
	TimestampParse  Kind = "timestamp_parse"
	Planning        Kind = "planning"
	ToolFailure     Kind = "tool_failure"
	IOFailure       Kind = "io_failure"
	Internal        Kind = "internal"
)

type AppError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *AppError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Wrap(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

func New(kind Kind, op, path, msg string) error {
	return &AppError{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  stderrors.New(msg),
	}
}

// KindOf reports the Kind of err, or Internal for plain errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func UserMessage(err error) string {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return err.Error()
	}
	switch appErr.Kind {
	case InvalidConfig:
		return fmt.Sprintf("Invalid configuration: %v", appErr.Err)
	case NotFound:
		return fmt.Sprintf("Path not found: %s", appErr.Path)
	case UnknownTimezone:
		return fmt.Sprintf("Unknown timezone: %v", appErr.Err)
	case TimestampParse:
		return fmt.Sprintf("Cannot parse timestamp: %s", appErr.Path)
	case Planning:
		return fmt.Sprintf("Rename planning failed: %v", appErr.Err)
	case ToolFailure:
		return fmt.Sprintf("External tool failed: %v", appErr.Err)
	case IOFailure:
		return fmt.Sprintf("I/O error: %s", appErr.Path)
	default:
		return fmt.Sprintf("Unexpected error: %v", appErr.Err)
	}
}
