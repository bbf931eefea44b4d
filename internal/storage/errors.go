package storage

import "fmt"

const (
	codeInvalid  = "invalid"
	codeNotFound = "not_found"
)

// StorageError represents a storage-specific error with a code and message.
// The dispatch pipeline uses the code to distinguish a missing object from
// an unreachable backend.
type StorageError struct {
	Code    string
	Message string
}

func (e *StorageError) Error() string {
	return e.Message
}

// ErrorCode returns the error code.
func (e *StorageError) ErrorCode() string {
	return e.Code
}

// newStorageError creates a new storage error.
func newStorageError(code, message string) *StorageError {
	return &StorageError{Code: code, Message: message}
}

var (
	// ErrS3CredentialsRequired is returned when S3 credentials are missing.
	ErrS3CredentialsRequired = newStorageError(codeInvalid, "S3 credentials are required")

	// ErrS3BucketRequired is returned when the S3 bucket name is missing.
	ErrS3BucketRequired = newStorageError(codeInvalid, "S3 bucket name is required")
)

// ErrObjectNotFound creates an error for a missing object.
func ErrObjectNotFound(key string) error {
	return &StorageError{
		Code:    codeNotFound,
		Message: fmt.Sprintf("object not found: %s", key),
	}
}

// ErrUnknownProvider creates an error for unknown storage providers.
func ErrUnknownProvider(provider string) error {
	return &StorageError{
		Code:    codeInvalid,
		Message: fmt.Sprintf("unknown storage provider: %s", provider),
	}
}

// IsNotFound reports whether err is a missing-object storage error.
func IsNotFound(err error) bool {
	if se, ok := err.(*StorageError); ok {
		return se.Code == codeNotFound
	}
	return false
}
