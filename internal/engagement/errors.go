package engagement

import (
	"errors"
	"fmt"
)

// Domain outcomes. These are user-facing states, not infrastructure failures.
var (
	ErrNotFound               = errors.New("not found")
	ErrLabelNotFound          = fmt.Errorf("label %w", ErrNotFound)
	ErrAlreadyInactive        = errors.New("already inactive")
	ErrNotLiked               = errors.New("not liked")
	ErrQuotaExhausted         = errors.New("quota exhausted")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInvalidItem            = errors.New("invalid content item")
	ErrItemExists             = errors.New("content item already exists")
)

var domainErrors = []error{
	ErrNotFound,
	ErrAlreadyInactive,
	ErrNotLiked,
	ErrQuotaExhausted,
	ErrConcurrentModification,
	ErrUnauthenticated,
	ErrInvalidItem,
	ErrItemExists,
}

// QuotaError is returned when a refresh is refused for lack of quota.
type QuotaError struct {
	UserID    string
	Remaining int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("user %s: %s (remaining %d)", e.UserID, ErrQuotaExhausted, e.Remaining)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExhausted }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidItem}, args...)...)
}

// IsDomain reports whether err is one of the recoverable, user-facing outcomes.
func IsDomain(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Code returns a stable machine-readable code for a domain error, or "internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrLabelNotFound):
		return "label_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyInactive):
		return "already_inactive"
	case errors.Is(err, ErrNotLiked):
		return "not_liked"
	case errors.Is(err, ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidItem):
		return "invalid_item"
	case errors.Is(err, ErrItemExists):
		return "item_exists"
	default:
		return "internal"
	}
}
