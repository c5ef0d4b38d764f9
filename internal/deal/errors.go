package deal

import (
	"errors"
	"fmt"

	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrDataQuality       = errors.New("data quality")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrStoreWrite        = errors.New("store write")
	ErrIdentityMismatch  = errors.New("identity mismatch")
)

// DataQualityError reports a single record that failed validation. The
// record is dropped and the run continues.
type DataQualityError struct {
	Key    Key
	Field  string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality [%s] %s: %s", e.Key, e.Field, e.Reason)
}

func (e *DataQualityError) Is(target error) bool {
	return target == ErrDataQuality
}

// SourceUnavailableError reports a seller whose fetch failed for the run.
// Its contribution is empty; other sellers are unaffected.
type SourceUnavailableError struct {
	Seller seller.Seller
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Seller, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

func (e *SourceUnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// StoreWriteError reports an append that could not be persisted. It is
// fatal for the run.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

func (e *StoreWriteError) Is(target error) bool {
	return target == ErrStoreWrite
}

// IdentityMismatchWarning reports an entry whose identity normalized to
// empty. The entry is skipped from matching.
type IdentityMismatchWarning struct {
	Source  string
	Title   string
	Authors string
}

func (e *IdentityMismatchWarning) Error() string {
	return fmt.Sprintf("%s: no usable identity for title %q authors %q", e.Source, e.Title, e.Authors)
}

func (e *IdentityMismatchWarning) Is(target error) bool {
	return target == ErrIdentityMismatch
}
