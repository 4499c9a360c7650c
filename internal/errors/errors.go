// Package errors provides error codes shared by the capture, queue and sync layers
// and bridged to the desktop API and the mobile FFI.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code that can be bridged to the UI layer.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"

	// Local store errors
	ErrDatabase      ErrorCode = "DATABASE_ERROR"
	ErrMigration     ErrorCode = "MIGRATION_FAILED"
	ErrStorageWrite  ErrorCode = "STORAGE_WRITE_FAILED"
	ErrEntryNotFound ErrorCode = "ENTRY_NOT_FOUND"

	// Sync errors
	ErrSyncFailed          ErrorCode = "SYNC_FAILED"
	ErrSyncOffline         ErrorCode = "SYNC_OFFLINE"
	ErrRemoteNotConfigured ErrorCode = "REMOTE_NOT_CONFIGURED"
	ErrRemoteInsert        ErrorCode = "REMOTE_INSERT_FAILED"
	ErrBlobUpload          ErrorCode = "BLOB_UPLOAD_FAILED"
	ErrTableNotAllowed     ErrorCode = "TABLE_NOT_ALLOWED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether any AppError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// CodeOf returns the code of the outermost AppError in err's chain,
// or ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
