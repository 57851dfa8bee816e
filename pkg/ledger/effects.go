package ledger

import (
	"regexp"
	"strconv"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
)

// Matches the node's abort rendering:
// MoveAbort(MoveLocation { module: ModuleId { ..., name: Identifier("marketplace") }, ... }, 6) in command 0
var moveAbortPattern = regexp.MustCompile(`MoveAbort\(.*Identifier\("([A-Za-z0-9_]+)"\).*,\s*(\d+)\)`)

// ParseAbort extracts module and abort code from a failed execution's error text.
func ParseAbort(raw string) (module string, code uint64, ok bool) {
	match := moveAbortPattern.FindStringSubmatch(raw)
	if match == nil {
		return "", 0, false
	}
	code, err := strconv.ParseUint(match[2], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return match[1], code, true
}

// EffectsError converts failed effects into the typed transaction error.
// It returns nil for successful effects.
func EffectsError(effects *Effects) error {
	if effects == nil {
		return &pkgErrors.TransactionFailedError{Raw: "no effects returned"}
	}
	if effects.Succeeded() {
		return nil
	}
	if effects.AbortCode != nil {
		return &pkgErrors.TransactionAbortedError{
			Code:   *effects.AbortCode,
			Module: effects.AbortModule,
			Raw:    effects.Error,
		}
	}
	return &pkgErrors.TransactionFailedError{Raw: effects.Error}
}
