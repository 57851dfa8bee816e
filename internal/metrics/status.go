package metrics

import (
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
)

func readStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case pkgErrors.IsNotFound(err):
		return "not_found"
	}
	return "error"
}

// TransactionStatus labels a transaction outcome.
func TransactionStatus(err error) string {
	switch pkgErrors.Classify(err) {
	case pkgErrors.CategoryNone:
		return "success"
	case pkgErrors.CategoryRejected:
		return "rejected"
	case pkgErrors.CategoryContractAbort:
		return "aborted"
	}
	return "failed"
}
