package storage

import (
	"errors"
	"fmt"
	"strconv"
)

// Code classifies a storage failure.
type Code string

const (
	CodeMissingFile        Code = "missing_file"
	CodeUnsupportedType    Code = "unsupported_type"
	CodeFileTooLarge       Code = "file_too_large"
	CodeUnsupportedStorage Code = "unsupported_storage"
	CodeUploadFailed       Code = "backend_upload_failed"
	CodeDeleteFailed       Code = "backend_delete_failed"
	CodeNotFound           Code = "not_found"
	CodeInvalidPath        Code = "invalid_path"
)

// Error is a classified storage failure. Message is safe to show to end users.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrMissingFile        = &Error{Code: CodeMissingFile, Message: "No file provided"}
	ErrUnsupportedType    = &Error{Code: CodeUnsupportedType, Message: "Invalid file type"}
	ErrFileTooLarge       = &Error{Code: CodeFileTooLarge, Message: "File too large"}
	ErrUnsupportedStorage = &Error{Code: CodeUnsupportedStorage, Message: "Unsupported storage type"}
	ErrUploadFailed       = &Error{Code: CodeUploadFailed, Message: "Upload failed"}
	ErrDeleteFailed       = &Error{Code: CodeDeleteFailed, Message: "Delete failed"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "File not found"}
	ErrInvalidPath        = &Error{Code: CodeInvalidPath, Message: "Invalid file path"}
)

func unsupportedType(mimeType string, allowed []string) *Error {
	return &Error{
		Code:    CodeUnsupportedType,
		Message: fmt.Sprintf("Invalid file type %q. Allowed types: %v", mimeType, allowed),
	}
}

func fileTooLarge(maxBytes int64) *Error {
	return &Error{
		Code:    CodeFileTooLarge,
		Message: "File too large. Maximum size is " + formatMiB(maxBytes) + "MB",
	}
}

func unsupportedStorage(kind Kind) *Error {
	return &Error{
		Code:    CodeUnsupportedStorage,
		Message: fmt.Sprintf("Unsupported storage type: %s", kind),
	}
}

func uploadFailed(err error) *Error {
	return &Error{Code: CodeUploadFailed, Message: "Upload failed: " + err.Error(), Err: err}
}

func deleteFailed(err error) *Error {
	return &Error{Code: CodeDeleteFailed, Message: "Delete failed: " + err.Error(), Err: err}
}

// formatMiB renders a byte count in MiB without trailing zeros: 5242880 -> "5".
func formatMiB(n int64) string {
	return strconv.FormatFloat(float64(n)/(1024*1024), 'f', -1, 64)
}

// asError classifies err, treating anything unclassified as fallback.
func asError(err error, fallback func(error) *Error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return fallback(err)
}
