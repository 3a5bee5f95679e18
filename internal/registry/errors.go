package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Validation and lookup errors.
var (
	ErrInvalidName     = errors.New("invalid token name")
	ErrInvalidSymbol   = errors.New("invalid token symbol")
	ErrInvalidSupply   = errors.New("invalid token supply")
	ErrIndexOutOfRange = errors.New("token index out of range")
	ErrPendingClosed   = errors.New("pending creation already committed or rolled back")
)

// Failure classes matched with errors.Is.
var (
	ErrSubmission   = errors.New("creation request could not be submitted")
	ErrFinalization = errors.New("creation request did not finalize")
)

// SubmissionError means the request never reached the registry.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string {
	if e.Cause == nil {
		return ErrSubmission.Error()
	}
	return fmt.Sprintf("%s: %v", ErrSubmission, e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// FinalizationError means the request was accepted but did not complete.
type FinalizationError struct {
	TxHash common.Hash
	Cause  error
}

func (e *FinalizationError) Error() string {
	msg := ErrFinalization.Error()
	if e.TxHash != (common.Hash{}) {
		msg += " (tx " + e.TxHash.Hex() + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *FinalizationError) Unwrap() error { return e.Cause }

func (e *FinalizationError) Is(target error) bool { return target == ErrFinalization }

// Submissionf wraps cause as a SubmissionError.
func Submissionf(format string, args ...any) error {
	return &SubmissionError{Cause: fmt.Errorf(format, args...)}
}

// genericFailure is shown when a finalization carries no cause.
const genericFailure = "transaction failed"

// UserMessage renders err for display. Submission errors show their cause;
// finalization errors without a cause collapse to a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FinalizationError
	if errors.As(err, &fe) {
		if fe.Cause == nil {
			return genericFailure
		}
		return fe.Cause.Error()
	}
	var se *SubmissionError
	if errors.As(err, &se) && se.Cause != nil {
		return se.Cause.Error()
	}
	return err.Error()
}
