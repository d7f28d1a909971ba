package event

import (
	"errors"
	"fmt"
)

// Error taxonomy of the domain service. Callers branch with errors.Is; the
// wrapped message carries the human-readable detail.
//
//   - ErrValidation: bad input, rejected synchronously, never retried.
//   - ErrQuotaExceeded: subscription-tier ceiling reached.
//   - ErrNotFound: event or reminder absent, or owner mismatch. Owner
//     mismatch is deliberately reported as not-found rather than
//     unauthorized so callers cannot probe for existence.
//   - ErrConflict: mutation of an already-terminal event.
var (
	ErrValidation    = errors.New("validation failed")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func quotaErr(what string, limit int, tier Tier) error {
	return fmt.Errorf("%w: maximum number of %s (%d) reached for the %s subscription", ErrQuotaExceeded, what, limit, tier)
}

func notFoundErr(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func conflictErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
