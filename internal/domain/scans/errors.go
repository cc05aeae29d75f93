package scans

import "errors"

var (
	// ErrValidation: the target is missing or not an absolute http(s) URL.
	ErrValidation = errors.New("invalid scan target")

	// ErrOrchestration: the combined record could not be persisted.
	ErrOrchestration = errors.New("scan could not be persisted")

	// ErrStoreRead: the record was written but reading it back failed.
	ErrStoreRead = errors.New("scan stored but could not be read back")

	// ErrCancelled: the run was cancelled before it completed; nothing was persisted.
	ErrCancelled = errors.New("scan cancelled")

	ErrNotFound         = errors.New("scan record not found")
	ErrStoreUnavailable = errors.New("scan store unavailable")
	ErrMalformedRecord  = errors.New("malformed scan record")
)
