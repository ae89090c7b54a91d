package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories a run can surface. Every
// error leaving an orchestrator is one of these; none are retried.
type Kind string

const (
	KindSpawn            Kind = "Spawn"            // Subprocess could not be created at all
	KindInvalidDirectory Kind = "InvalidDirectory" // Backup root missing or unreadable
	KindPreflight        Kind = "Preflight"        // Missing binary, unwritable dir, SSH identity mismatch
	KindDiskSpace        Kind = "DiskSpace"        // Local or remote space insufficient
	KindDump             Kind = "Dump"             // Database dump failed
	KindTransfer         Kind = "Transfer"         // Pipeline non-zero exit or zero-byte remote result
	KindRestoreFormat    Kind = "RestoreFormat"    // No candidate archive found remotely
	KindDecryptExtract   Kind = "DecryptExtract"   // openssl/tar stage failed during restore
	KindConfig           Kind = "Config"           // Invalid or missing configuration
	KindConnection       Kind = "Connection"       // SSH or database connectivity
	KindInternal         Kind = "Internal"         // Unexpected internal failure
)

// AppError carries the kind, a wrapped cause, and a hint for the operator.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
	Hint    string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(k Kind, msg string, hint string) *AppError {
	return &AppError{
		Kind:    k,
		Message: msg,
		Hint:    hint,
	}
}

// Wrap wraps an existing error into an AppError
func Wrap(err error, k Kind, msg string, hint string) *AppError {
	return &AppError{
		Kind:    k,
		Message: msg,
		Err:     err,
		Hint:    hint,
	}
}

// IsKind reports whether err or anything it wraps is an AppError of kind k.
func IsKind(err error, k Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == k
	}
	return false
}

// KindOf returns the kind of the first AppError in err's chain, or
// KindInternal when err carries no kind.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
