package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownUpload = errors.New("no upload in progress for file id")
	ErrInvalidChunk  = errors.New("invalid chunk")
	ErrBusy          = errors.New("too many chunks in flight")
	ErrNotFound      = errors.New("file not found")
	ErrIncomplete    = errors.New("file upload is not complete")
	ErrForbidden     = errors.New("operation denied by policy")
	ErrInvalidRecord = errors.New("file record rejected by schema")
)

// UploadErrorKind classifies why an upload was aborted.
type UploadErrorKind int

const (
	OutOfOrderChunk UploadErrorKind = iota + 1
	AbortedByPolicy
	IntegrityMismatch
)

func (k UploadErrorKind) String() string {
	switch k {
	case OutOfOrderChunk:
		return "out_of_order_chunk"
	case AbortedByPolicy:
		return "aborted_by_policy"
	case IntegrityMismatch:
		return "integrity_mismatch"
	default:
		return "unknown"
	}
}

// UploadError reports an aborted upload. Partial data has been discarded when it is returned.
type UploadError struct {
	Kind   UploadErrorKind
	FileID string
	// Reason is safe to show to the uploading client.
	Reason string
	// Status is the response code a policy asked for, zero when unset.
	Status int
	Err    error
}

func (e *UploadError) Error() string {
	msg := fmt.Sprintf("upload %s aborted: %s", e.FileID, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UploadError) Unwrap() error { return e.Err }

// AsUploadError unwraps err into an *UploadError.
func AsUploadError(err error) (*UploadError, bool) {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
