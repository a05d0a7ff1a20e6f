package release

import "errors"

var (
	// ErrVersionNotFound is returned when the entry file lacks the header or the constant version marker.
	ErrVersionNotFound = errors.New("version marker not found")
	// ErrVersionMismatch is returned when the header and the constant hold different versions.
	ErrVersionMismatch = errors.New("header and constant versions differ")
	// ErrArchiveIO is returned when the project root is missing or nothing survives the exclusion rules.
	ErrArchiveIO = errors.New("archive input/output error")
	// ErrUpload is returned when an object cannot be written to the bucket.
	ErrUpload = errors.New("upload failed")
	// ErrInvalidRequest is returned when the publish request fails validation.
	ErrInvalidRequest = errors.New("invalid publish request")
)
