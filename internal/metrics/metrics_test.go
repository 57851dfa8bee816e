package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
)

func TestObserveLedgerRead_LabelsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(LedgerReadsTotal.WithLabelValues("sui_getObject", "not_found"))

	ObserveLedgerRead("sui_getObject", fmt.Errorf("object 0x1: %w", pkgErrors.ErrNotFound))

	after := testutil.ToFloat64(LedgerReadsTotal.WithLabelValues("sui_getObject", "not_found"))
	assert.Equal(t, before+1, after)
}

func TestTransactionStatus(t *testing.T) {
	assert.Equal(t, "success", TransactionStatus(nil))
	assert.Equal(t, "rejected", TransactionStatus(&pkgErrors.TransactionRejectedError{}))
	assert.Equal(t, "aborted", TransactionStatus(&pkgErrors.TransactionAbortedError{Code: 1}))
	assert.Equal(t, "failed", TransactionStatus(errors.New("gas")))
}
