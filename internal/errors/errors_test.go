// Package errors tests for AppError and the code helpers.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

var allCodes = []ErrorCode{
	ErrInternal, ErrInvalid, ErrValidation, ErrNotFound,
	ErrDatabase, ErrMigration, ErrStorageWrite, ErrEntryNotFound,
	ErrSyncFailed, ErrSyncOffline, ErrRemoteNotConfigured, ErrRemoteInsert,
	ErrBlobUpload, ErrTableNotAllowed,
}

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "error without underlying error",
			appError: &AppError{Code: ErrInternal, Message: "something failed"},
			want:     "[INTERNAL_ERROR] something failed",
		},
		{
			name:     "error with underlying error",
			appError: &AppError{Code: ErrStorageWrite, Message: "put entry", Err: errors.New("disk full")},
			want:     "[STORAGE_WRITE_FAILED] put entry: disk full",
		},
		{
			name:     "entry not found",
			appError: &AppError{Code: ErrEntryNotFound, Message: "no such entry"},
			want:     "[ENTRY_NOT_FOUND] no such entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appError.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestAppError_Unwrap verifies unwrapping of underlying error.
func TestAppError_Unwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")

	err := Wrap(ErrRemoteInsert, "insert", underlyingErr)
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is should find the wrapped error")
	}
	if New(ErrInternal, "x").Unwrap() != nil {
		t.Error("New() should not wrap an error")
	}
}

// TestWrap verifies error wrapping.
func TestWrap(t *testing.T) {
	underlyingErr := errors.New("underlying")

	err := Wrap(ErrDatabase, "query failed", underlyingErr)
	if err.Code != ErrDatabase {
		t.Errorf("Wrap() code = %q, want %q", err.Code, ErrDatabase)
	}
	if err.Message != "query failed" {
		t.Errorf("Wrap() message = %q, want 'query failed'", err.Message)
	}
	if err.Err != underlyingErr {
		t.Errorf("Wrap() underlying error = %v, want %v", err.Err, underlyingErr)
	}
}

// TestIs verifies error code checking.
func TestIs(t *testing.T) {
	inner := New(ErrBlobUpload, "upload")
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching AppError", New(ErrNotFound, "not found"), ErrNotFound, true},
		{"non-matching AppError", New(ErrNotFound, "not found"), ErrInternal, false},
		{"non-AppError", errors.New("standard error"), ErrInternal, false},
		{"nil error", nil, ErrInternal, false},
		{"fmt wrapped", fmt.Errorf("ctx: %w", New(ErrSyncOffline, "offline")), ErrSyncOffline, true},
		{"nested AppError", Wrap(ErrSyncFailed, "sync", inner), ErrBlobUpload, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestCodeOf verifies the outermost code is reported.
func TestCodeOf(t *testing.T) {
	if got := CodeOf(Wrap(ErrSyncFailed, "sync", New(ErrBlobUpload, "x"))); got != ErrSyncFailed {
		t.Errorf("CodeOf() = %q, want %q", got, ErrSyncFailed)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf() = %q, want %q", got, ErrInternal)
	}
}

// TestErrorCodes_areUnique verifies all error codes are unique and uppercase.
func TestErrorCodes_areUnique(t *testing.T) {
	seen := make(map[ErrorCode]bool)
	for _, code := range allCodes {
		if seen[code] {
			t.Errorf("ErrorCode %q is duplicated", code)
		}
		seen[code] = true

		if str := string(code); str != strings.ToUpper(str) {
			t.Errorf("ErrorCode %q should be uppercase", str)
		}
	}
}
