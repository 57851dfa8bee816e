package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is the expected "nothing there yet" signal (no profile, unknown task id).
// Callers branch on it; it is never logged as an error.
var ErrNotFound = errors.New("not found")

// DecodeError reports a ledger object that does not match the expected schema,
// typically a record written before a schema migration.
type DecodeError struct {
	Kind     string
	ObjectID string
	Field    string
	Reason   string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s %s: %s", e.Kind, e.ObjectID, e.Reason)
	}
	return fmt.Sprintf("decode %s %s: field %q: %s", e.Kind, e.ObjectID, e.Field, e.Reason)
}

// TransientNetworkError is a read that kept failing after the retry budget was spent.
type TransientNetworkError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// TransactionRejectedError means the user declined to sign.
type TransactionRejectedError struct {
	Reason string
}

func (e *TransactionRejectedError) Error() string {
	if e.Reason == "" {
		return "transaction rejected by signer"
	}
	return "transaction rejected by signer: " + e.Reason
}

// TransactionAbortedError is a contract-level abort reported in transaction effects.
type TransactionAbortedError struct {
	Code   uint64
	Module string
	Raw    string
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("transaction aborted in %s with code %d", e.Module, e.Code)
}

// TransactionFailedError covers every other submission failure (gas, funds, transport).
// It is terminal for the attempt: signed transactions are never re-submitted.
type TransactionFailedError struct {
	Raw string
	Err error
}

func (e *TransactionFailedError) Error() string {
	if e.Err != nil {
		return "transaction failed: " + e.Err.Error()
	}
	return "transaction failed: " + e.Raw
}

func (e *TransactionFailedError) Unwrap() error {
	return e.Err
}

// StatusUpdateFailure is one failed follow-up transaction of a fan-out.
type StatusUpdateFailure struct {
	SubmissionID uint64
	Accepted     bool
	Err          error
}

// PartialOrchestrationFailure is returned when the authoritative step committed but some
// follow-up bookkeeping transactions did not.
type PartialOrchestrationFailure struct {
	Operation string
	Succeeded []uint64
	Failed    []StatusUpdateFailure
}

func (e *PartialOrchestrationFailure) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, fmt.Sprintf("%d", f.SubmissionID))
	}
	return fmt.Sprintf("%s committed but %d of %d status updates failed (submissions %s)",
		e.Operation, len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(ids, ", "))
}

// GuardError is a client-side refusal raised before any transaction is built.
type GuardError struct {
	Rule   string
	Detail string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Detail)
}

// ValidationError is a structurally invalid builder input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Blob store failure modes, each with its own user message.
var (
	ErrPayloadTooLarge  = errors.New("blob payload too large")
	ErrBlobNetwork      = errors.New("blob store unreachable")
	ErrBlobAccessDenied = errors.New("blob store denied access")
	ErrBlobServer       = errors.New("blob store server error")
)

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
