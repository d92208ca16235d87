// Package feed defines the boundary with the raw record adapters.
//
// Fetching pages from data.ny.gov is out of scope for this module: a Source
// hands the pipeline pages that are already decoded into string fields, with
// field names exactly as published. Two Sources live here: FileSource reads
// pages saved as JSON arrays (the Socrata response shape), SliceSource serves
// in-memory pages for tests and scenarios.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/cnyre/internal/model"
)

// ErrNoMorePages is returned by Source.Next when the feed is exhausted.
var ErrNoMorePages = errors.New("feed: no more pages")

// Record is one decoded source row.
type Record struct {
	Feed   model.Feed
	Page   string
	Index  int
	Fields map[string]string
}

// Get returns the raw value of a field and whether the field was present.
func (r Record) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Value returns the trimmed value of a field ("" when absent).
func (r Record) Value(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// SourceKey identifies the record's position in the feed. Used to key
// rejections of records whose identity cannot be resolved.
func (r Record) SourceKey() string {
	return fmt.Sprintf("%s#%d", r.Page, r.Index)
}

// FieldNames returns the record's field names in sorted order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Page is one fetched page of a feed.
type Page struct {
	Feed    model.Feed
	Number  int
	Label   string
	Records []Record
}

// NewPage builds a page and stamps each record with its position.
func NewPage(f model.Feed, number int, rows []map[string]string) Page {
	label := fmt.Sprintf("%s-%d", f, number)
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record{Feed: f, Page: label, Index: i, Fields: row}
	}
	return Page{Feed: f, Number: number, Label: label, Records: records}
}

// Source yields pages of one feed. Next returns ErrNoMorePages at the end.
// Any other error must be a *FetchError; the pipeline treats it as the end
// of that feed and records it in the run report.
type Source interface {
	Feed() model.Feed
	Next(ctx context.Context) (Page, error)
}

// FetchError reports a failed page fetch.
type FetchError struct {
	Feed model.Feed
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s page %d: %v", e.Feed, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError returns true if err is a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
