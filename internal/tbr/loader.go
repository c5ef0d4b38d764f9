// Package tbr reads to-be-read lists from StoryGraph, Goodreads or custom
// CSV exports.
package tbr

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
)

// Source is the kind of export a CSV file came from.
type Source string

const (
	StoryGraph Source = "storygraph"
	Goodreads  Source = "goodreads"
	Custom     Source = "custom"
)

// ToRead is the status value that marks a book as on the TBR list.
const ToRead = "to-read"

// Goodreads appends the series to the title: "Leviathan Wakes (The Expanse, #1)".
var seriesSuffix = regexp.MustCompile(`\s*\([^()]*#\s*\d+(?:\.\d+)?(?:-\d+)?\)\s*$`)

// Book is one TBR entry with its normalized identity.
type Book struct {
	Title    string
	Authors  string
	Identity book.Identity
	Source   string
}

// Result holds the loaded books and entries skipped for having no usable
// identity.
type Result struct {
	Books    []Book
	Warnings []error
}

// Loader reads one or more exports.
type Loader struct {
	paths []string
}

// NewLoader creates a loader over the given export paths.
func NewLoader(paths ...string) *Loader {
	return &Loader{paths: paths}
}

// Load reads every export and de-duplicates books by identity, keeping the
// first occurrence.
func (l *Loader) Load() (*Result, error) {
	if len(l.paths) == 0 {
		return nil, errors.New("no TBR export paths configured")
	}

	res := &Result{}
	seen := make(map[book.Identity]struct{})
	for _, path := range l.paths {
		books, warnings, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		res.Warnings = append(res.Warnings, warnings...)

		for _, b := range books {
			if _, ok := seen[b.Identity]; ok {
				continue
			}
			seen[b.Identity] = struct{}{}
			res.Books = append(res.Books, b)
		}
	}

	slog.Debug("Loaded TBR list", "files", len(l.paths), "books", len(res.Books), "skipped", len(res.Warnings))
	return res, nil
}

func loadFile(path string) ([]Book, []error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open TBR export: %w", err)
	}
	defer f.Close()

	books, warnings, err := Read(f, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return books, warnings, nil
}

// Read parses one CSV export. The export kind is detected from the header.
// Only rows whose read status is "to-read" are kept; when the export has no
// status column every row is kept.
func Read(r io.Reader, source string) ([]Book, []error, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := readHeader(cr)
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	kind, err := Detect(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		books    []Book
		warnings []error
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}

		title, authors, status, hasStatus := extract(kind, header, row)
		if hasStatus && !strings.EqualFold(status, ToRead) {
			continue
		}

		id := book.Normalize(title, authors)
		if id.IsZero() {
			warnings = append(warnings, &deal.IdentityMismatchWarning{Source: source, Title: title, Authors: authors})
			continue
		}
		books = append(books, Book{Title: title, Authors: authors, Identity: id, Source: source})
	}

	slog.Debug("Read TBR export", "source", source, "kind", kind, "books", len(books))
	return books, warnings, nil
}

// Detect identifies the export kind from its lowercased header.
func Detect(header map[string]int) (Source, error) {
	has := func(k string) bool {
		_, ok := header[k]
		return ok
	}

	switch {
	case !has("title"):
		return "", errors.New("export has no Title column")
	case has("exclusive shelf") && has("author"):
		return Goodreads, nil
	case has("read status") && has("authors"):
		return StoryGraph, nil
	case has("authors"):
		return Custom, nil
	default:
		return "", errors.New("export has no Authors column")
	}
}

func extract(kind Source, header map[string]int, row []string) (title, authors, status string, hasStatus bool) {
	title = valueAt(header, row, "title")

	switch kind {
	case Goodreads:
		title = seriesSuffix.ReplaceAllString(title, "")
		names := []string{valueAt(header, row, "author")}
		if extra := valueAt(header, row, "additional authors"); extra != "" {
			names = append(names, extra)
		}
		authors = strings.Join(names, ", ")
		status = valueAt(header, row, "exclusive shelf")
		hasStatus = true
	default:
		authors = valueAt(header, row, "authors")
		_, hasStatus = header["read status"]
		status = valueAt(header, row, "read status")
	}
	return title, authors, status, hasStatus
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		name = strings.TrimPrefix(name, "\ufeff")
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
