package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category is the fixed set of user-facing error classes.
type Category string

const (
	CategoryNone             Category = ""
	CategoryNotFound         Category = "not_found"
	CategoryLegacyRecord     Category = "legacy_record"
	CategoryNetwork          Category = "network"
	CategoryRejected         Category = "rejected"
	CategoryContractAbort    Category = "contract_abort"
	CategoryTransaction      Category = "transaction_failed"
	CategoryPartial          Category = "partial_failure"
	CategoryGuard            Category = "not_allowed"
	CategoryInvalidInput     Category = "invalid_input"
	CategoryPayloadTooLarge  Category = "payload_too_large"
	CategoryBlobNetwork      Category = "blob_network"
	CategoryBlobAccessDenied Category = "blob_access_denied"
	CategoryBlobServer       Category = "blob_server"
	CategoryCancelled        Category = "cancelled"
	CategoryUnknown          Category = "unknown"
)

var categoryMessages = map[Category]string{
	CategoryNotFound:         "Nothing was found for this request.",
	CategoryLegacyRecord:     "This record was created with an older format and cannot be displayed.",
	CategoryNetwork:          "The network is not responding. Please try again shortly.",
	CategoryRejected:         "You declined the transaction in your wallet.",
	CategoryContractAbort:    "The marketplace contract refused this action.",
	CategoryTransaction:      "The transaction could not be executed. Check your balance and gas, then try again.",
	CategoryPartial:          "Your action succeeded, but some follow-up bookkeeping failed and may need a manual retry.",
	CategoryGuard:            "This action is not allowed in the current state.",
	CategoryInvalidInput:     "Some of the provided values are invalid.",
	CategoryPayloadTooLarge:  "The file is too large to upload.",
	CategoryBlobNetwork:      "The file storage service could not be reached. Please try again.",
	CategoryBlobAccessDenied: "The file storage service denied access to this upload.",
	CategoryBlobServer:       "The file storage service had an internal error. Please try again later.",
	CategoryCancelled:        "The request was cancelled.",
	CategoryUnknown:          "Something went wrong.",
}

// Classify maps any error produced by this module onto a Category.
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}

	var (
		decodeErr   *DecodeError
		netErr      *TransientNetworkError
		rejectedErr *TransactionRejectedError
		abortedErr  *TransactionAbortedError
		failedErr   *TransactionFailedError
		partialErr  *PartialOrchestrationFailure
		guardErr    *GuardError
		invalidErr  *ValidationError
	)

	switch {
	case errors.As(err, &partialErr):
		return CategoryPartial
	case errors.As(err, &rejectedErr):
		return CategoryRejected
	case errors.As(err, &abortedErr):
		return CategoryContractAbort
	case errors.As(err, &failedErr):
		return CategoryTransaction
	case errors.As(err, &guardErr):
		return CategoryGuard
	case errors.As(err, &invalidErr):
		return CategoryInvalidInput
	case errors.As(err, &decodeErr):
		return CategoryLegacyRecord
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrPayloadTooLarge):
		return CategoryPayloadTooLarge
	case errors.Is(err, ErrBlobAccessDenied):
		return CategoryBlobAccessDenied
	case errors.Is(err, ErrBlobServer):
		return CategoryBlobServer
	case errors.Is(err, ErrBlobNetwork):
		return CategoryBlobNetwork
	case errors.As(err, &netErr):
		return CategoryNetwork
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCancelled
	}
	return CategoryUnknown
}

// UserMessage returns the primary message shown to a user. Raw ledger text never
// appears here; use Detail for diagnostics.
func UserMessage(err error) string {
	category := Classify(err)
	if category == CategoryNone {
		return ""
	}

	var abortedErr *TransactionAbortedError
	if errors.As(err, &abortedErr) {
		if explanation, ok := DefaultAbortCatalog().Explain(abortedErr.Module, abortedErr.Code); ok {
			return explanation
		}
	}
	var guardErr *GuardError
	if errors.As(err, &guardErr) {
		return fmt.Sprintf("%s %s", categoryMessages[CategoryGuard], guardErr.Detail)
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) && decodeErr.Field != "" {
		return fmt.Sprintf("%s (missing or malformed %s)", categoryMessages[CategoryLegacyRecord], decodeErr.Field)
	}
	return categoryMessages[category]
}

// Detail keeps the raw error text for logs and diagnostic panels.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
