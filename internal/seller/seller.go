// Package seller defines the closed set of retailers and book formats that
// deals are tracked for, along with the marketplace locales they serve.
package seller

import (
	"fmt"
	"strings"
)

// Seller identifies a retailer. New sellers are additions to the set below,
// each with an entry in the metadata table.
type Seller string

const (
	Audible Seller = "audible"
	Chirp   Seller = "chirp"
	LibroFM Seller = "librofm"
)

// Format is the medium a deal is offered in.
type Format string

const (
	Audiobook Format = "audiobook"
	Ebook     Format = "ebook"
)

// Info describes a seller's capabilities.
type Info struct {
	DisplayName string
	Formats     []Format
	// HasClient is false for sellers that can be stored and imported but
	// have no fetch client yet.
	HasClient bool
	// ListPrice reports whether the seller's API exposes a list price.
	ListPrice bool
}

var registry = map[Seller]Info{
	Audible: {DisplayName: "Audible", Formats: []Format{Audiobook}, HasClient: true, ListPrice: true},
	Chirp:   {DisplayName: "Chirp", Formats: []Format{Audiobook}, HasClient: true, ListPrice: true},
	LibroFM: {DisplayName: "Libro.fm", Formats: []Format{Audiobook}, HasClient: false, ListPrice: false},
}

// All returns every known seller in stable order.
func All() []Seller {
	return []Seller{Audible, Chirp, LibroFM}
}

// Parse resolves a seller from its identifier or display name.
func Parse(s string) (Seller, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, sel := range All() {
		if key == string(sel) || key == strings.ToLower(registry[sel].DisplayName) {
			return sel, nil
		}
	}
	return "", fmt.Errorf("unknown seller %q", s)
}

// Valid reports whether s is a known seller.
func (s Seller) Valid() bool {
	_, ok := registry[s]
	return ok
}

// Info returns the seller's metadata. Unknown sellers yield a zero Info.
func (s Seller) Info() Info {
	return registry[s]
}

// String returns the display name.
func (s Seller) String() string {
	if info, ok := registry[s]; ok {
		return info.DisplayName
	}
	return string(s)
}

// Supports reports whether the seller offers the given format.
func (s Seller) Supports(f Format) bool {
	for _, sf := range registry[s].Formats {
		if sf == f {
			return true
		}
	}
	return false
}

// ParseFormat resolves a format from its identifier.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case Audiobook, Ebook:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == Audiobook || f == Ebook
}

// String returns the display form used in reports.
func (f Format) String() string {
	switch f {
	case Audiobook:
		return "Audiobook"
	case Ebook:
		return "E-Book"
	}
	return string(f)
}

// Query asks a seller for one book in one format. Title and Authors are the
// raw TBR values; clients echo them into the records they return so the
// record key matches the TBR identity.
type Query struct {
	Title   string
	Authors string
	// SearchTitle overrides Title in the request, e.g. the title without
	// its subtitle on a retry.
	SearchTitle string
	Format      Format
}

// Term returns the title to send to the seller.
func (q Query) Term() string {
	if q.SearchTitle != "" {
		return q.SearchTitle
	}
	return q.Title
}
