package cloud

import "errors"

// Failure taxonomy for object-storage operations. HTTP/SDK errors are
// classified into one of these on the way out of the package so callers
// never need to inspect provider-specific error types.
var (
	// ErrNotFound is returned for a missing key or bucket (404/NoSuchKey).
	ErrNotFound = errors.New("cloud: not found")
	// ErrAuth is returned for a credentials/permission failure (403/invalid credentials).
	ErrAuth = errors.New("cloud: auth error")
	// ErrShortPart is returned when a non-final multipart part is under PartSize.
	ErrShortPart = errors.New("cloud: multipart part below minimum size")
	// ErrTransport covers every other provider/network failure.
	ErrTransport = errors.New("cloud: transport error")
)
