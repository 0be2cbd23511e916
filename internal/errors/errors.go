// Package errors provides error code definitions shared across the sync core.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to callers and logs.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local storage errors
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrDatabase           ErrorCode = "DATABASE_ERROR"
	ErrMigration          ErrorCode = "MIGRATION_FAILED"

	// Remote store errors
	ErrRemoteUnreachable      ErrorCode = "REMOTE_UNREACHABLE"
	ErrRemotePermissionDenied ErrorCode = "REMOTE_PERMISSION_DENIED"
	ErrRemoteRejected         ErrorCode = "REMOTE_REJECTED"

	// Sync errors
	ErrChecksumMismatch   ErrorCode = "CHECKSUM_MISMATCH"
	ErrMaxRetriesExceeded ErrorCode = "MAX_RETRIES_EXCEEDED"
	ErrSyncFailed         ErrorCode = "SYNC_FAILED"

	// Blob store errors
	ErrBlobUploadFailed   ErrorCode = "BLOB_UPLOAD_FAILED"
	ErrBlobDownloadFailed ErrorCode = "BLOB_DOWNLOAD_FAILED"
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

// Is checks if an error carries a specific code. It walks the unwrap chain
// so codes survive fmt.Errorf("%w") wrapping.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal when the error does
// not carry one.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ErrInternal
}
