package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/cnyre/internal/model"
)

// FileSource reads a feed from a directory of *.json files, one page per
// file, in lexical file name order. Each file holds a JSON array of objects,
// the shape the Socrata API returns.
//
// Non-string scalars are rendered back to their JSON text so the normalizer
// always sees the source's own spelling of a value.
type FileSource struct {
	feed  model.Feed
	files []string
	pos   int
}

// NewFileSource lists the page files in dir. A missing directory yields an
// empty source, not an error, so one feed may be absent from a run.
func NewFileSource(f model.Feed, dir string) (*FileSource, error) {
	s := &FileSource{feed: f}
	if dir == "" {
		return s, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s pages: %w", f, err)
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			s.files = append(s.files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(s.files)
	return s, nil
}

// Feed implements Source.
func (s *FileSource) Feed() model.Feed { return s.feed }

// Next implements Source.
func (s *FileSource) Next(ctx context.Context) (Page, error) {
	if s.pos >= len(s.files) {
		return Page{}, ErrNoMorePages
	}
	number := s.pos + 1
	path := s.files[s.pos]
	s.pos++

	if err := ctx.Err(); err != nil {
		return Page{}, &FetchError{Feed: s.feed, Page: number, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Page{}, &FetchError{Feed: s.feed, Page: number, Err: err}
	}
	rows, err := decodeRows(data)
	if err != nil {
		return Page{}, &FetchError{Feed: s.feed, Page: number, Err: fmt.Errorf("%s: %w", filepath.Base(path), err)}
	}
	return NewPage(s.feed, number, rows), nil
}

func decodeRows(data []byte) ([]map[string]string, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	rows := make([]map[string]string, len(raw))
	for i, obj := range raw {
		row := make(map[string]string, len(obj))
		for k, v := range obj {
			if string(v) == "null" {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				row[k] = s
				continue
			}
			row[k] = string(v)
		}
		rows[i] = row
	}
	return rows, nil
}
