// Package deal models seller price observations and classifies the deals
// they represent against a prior snapshot.
package deal

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

// Money is a decimal amount in a currency. Comparisons between amounts are
// numeric and ignore the currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount" yaml:"amount"`
	Currency string          `json:"currency" yaml:"currency"`
}

// NewMoney parses an amount such as "14.95".
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// String renders the amount with its currency symbol, e.g. "$4.99".
func (m Money) String() string {
	return seller.SymbolFor(m.Currency) + m.Amount.StringFixed(2)
}

// Key is the logical identity of a deal lineage: one book at one seller in
// one format. Title and Authors are normalized.
type Key struct {
	Title   string        `json:"title" yaml:"title"`
	Authors string        `json:"authors" yaml:"authors"`
	Seller  seller.Seller `json:"seller" yaml:"seller"`
	Format  seller.Format `json:"format" yaml:"format"`
}

// String returns the deal id, "title__authors__seller__format".
func (k Key) String() string {
	return strings.Join([]string{k.Title, k.Authors, string(k.Seller), string(k.Format)}, "__")
}

// Identity returns the book part of the key.
func (k Key) Identity() book.Identity {
	return book.Identity{Title: k.Title, Authors: k.Authors}
}

// CompareKeys orders keys by title, authors, seller then format.
func CompareKeys(a, b Key) int {
	return cmp.Or(
		strings.Compare(a.Title, b.Title),
		strings.Compare(a.Authors, b.Authors),
		strings.Compare(string(a.Seller), string(b.Seller)),
		strings.Compare(string(a.Format), string(b.Format)),
	)
}

// Record is one seller's observed price for one (book, format) at one point
// in time. Records are immutable once appended; a deal that disappears is
// represented by a later Record with Deleted set.
type Record struct {
	Title   string        `json:"title" yaml:"title"`
	Authors string        `json:"authors" yaml:"authors"`
	Seller  seller.Seller `json:"seller" yaml:"seller"`
	Format  seller.Format `json:"format" yaml:"format"`
	Price   Money         `json:"price" yaml:"price"`
	// ListPrice is zero when the seller does not report one.
	ListPrice decimal.Decimal `json:"list_price" yaml:"list_price"`
	Timepoint time.Time       `json:"timepoint" yaml:"timepoint"`
	Deleted   bool            `json:"deleted" yaml:"deleted"`
}

// Identity returns the normalized book identity of the record.
func (r Record) Identity() book.Identity {
	return book.Normalize(r.Title, r.Authors)
}

// Key returns the logical key of the record.
func (r Record) Key() Key {
	id := r.Identity()
	return Key{Title: id.Title, Authors: id.Authors, Seller: r.Seller, Format: r.Format}
}

// DealID returns the string form of Key.
func (r Record) DealID() string {
	return r.Key().String()
}

// Discount returns 1 - price/list_price, or zero when there is no list price.
func (r Record) Discount() decimal.Decimal {
	if !r.ListPrice.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Sub(r.Price.Amount.Div(r.ListPrice))
}

// Validate reports whether the record can be classified. Deleted markers are
// always valid.
func (r Record) Validate() error {
	key := r.Key()
	if key.Title == "" {
		return &DataQualityError{Key: key, Field: "title", Reason: "empty identity"}
	}
	if r.Deleted {
		return nil
	}
	if !r.Price.Amount.IsPositive() {
		return &DataQualityError{Key: key, Field: "price", Reason: "non-positive price " + r.Price.Amount.String()}
	}
	if !r.ListPrice.IsPositive() {
		return &DataQualityError{Key: key, Field: "list_price", Reason: "missing or non-positive list price"}
	}
	return nil
}

// Tombstone returns a deleted marker for the record's key at t.
func (r Record) Tombstone(t time.Time) Record {
	r.Timepoint = t
	r.Deleted = true
	return r
}

// View is a record as returned by a store, carrying its insertion sequence.
// Seq breaks ties between records of one key sharing a timepoint: the higher
// Seq wins.
type View struct {
	Record
	Seq int64 `json:"seq" yaml:"seq"`
}

// Newer reports whether v supersedes other for the same key.
func (v View) Newer(other View) bool {
	if !v.Timepoint.Equal(other.Timepoint) {
		return v.Timepoint.After(other.Timepoint)
	}
	return v.Seq > other.Seq
}
