package audible

import (
	"errors"
	"fmt"

	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

// Sentinel errors for Audible API operations.
var (
	ErrNotFound    = errors.New("audible: not found")
	ErrRateLimited = errors.New("audible: rate limited by server")
	ErrBadRequest  = errors.New("audible: bad request")
	ErrServer      = errors.New("audible: server error")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op     string
	Locale seller.Locale
	Title  string
	Err    error
}

func (e *Error) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("audible %s [%s/%q]: %v", e.Op, e.Locale, e.Title, e.Err)
	}
	return fmt.Sprintf("audible %s [%s]: %v", e.Op, e.Locale, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op string, locale seller.Locale, title string, err error) error {
	return &Error{Op: op, Locale: locale, Title: title, Err: err}
}
