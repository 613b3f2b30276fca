package monitor

import (
	"errors"
	"strings"
)

// MinCorrectionCommentLen is the minimum length, after trimming, of a
// correction comment. Corrections are an audit trail, so a bare "ok" is
// not accepted.
const MinCorrectionCommentLen = 5

// ErrCommentTooShort rejects correction comments below the minimum length.
var ErrCommentTooShort = errors.New(
	"correction comment must be at least 5 characters",
)

// ValidateCorrectionComment checks a correction comment before it is
// persisted.
func ValidateCorrectionComment(comment string) error {
	if len(strings.TrimSpace(comment)) < MinCorrectionCommentLen {
		return ErrCommentTooShort
	}

	return nil
}
