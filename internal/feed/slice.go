package feed

import (
	"context"
	"sync"

	"github.com/roach88/cnyre/internal/model"
)

// SliceSource serves pre-built pages from memory.
//
// Thread-safety: Next is safe for concurrent use.
type SliceSource struct {
	feed  model.Feed
	mu    sync.Mutex
	pages []Page
	pos   int

	// FailAt, when > 0, makes the FailAt-th call to Next return a
	// FetchError wrapping FailErr instead of a page.
	FailAt  int
	FailErr error
}

// NewSliceSource builds a source from raw rows, one slice per page.
// Pages are numbered from 1.
func NewSliceSource(f model.Feed, pages ...[]map[string]string) *SliceSource {
	s := &SliceSource{feed: f}
	for i, rows := range pages {
		s.pages = append(s.pages, NewPage(f, i+1, rows))
	}
	return s
}

// Feed implements Source.
func (s *SliceSource) Feed() model.Feed { return s.feed }

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, &FetchError{Feed: s.feed, Page: s.pos + 1, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAt > 0 && s.pos+1 == s.FailAt {
		s.pos++
		return Page{}, &FetchError{Feed: s.feed, Page: s.pos, Err: s.FailErr}
	}
	if s.pos >= len(s.pages) {
		return Page{}, ErrNoMorePages
	}
	p := s.pages[s.pos]
	s.pos++
	return p, nil
}

// SequenceSource serves pages of any feed in one fixed order. Independent
// per-feed sources interleave nondeterministically; scenarios that depend on
// cross-feed arrival order use a SequenceSource instead.
type SequenceSource struct {
	mu    sync.Mutex
	pages []Page
	pos   int

	// FailAt and FailErr behave as on SliceSource.
	FailAt  int
	FailErr error
}

// NewSequenceSource serves pages in the order given.
func NewSequenceSource(pages ...Page) *SequenceSource {
	return &SequenceSource{pages: pages}
}

// Feed implements Source. A sequence spans feeds; pages carry their own.
func (s *SequenceSource) Feed() model.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedAt(0)
}

// Next implements Source. A failed position still consumes its page slot.
func (s *SequenceSource) Next(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Page{}, &FetchError{Feed: s.feedAt(s.pos), Page: s.pos + 1, Err: err}
	}
	if s.FailAt > 0 && s.pos+1 == s.FailAt {
		f := s.feedAt(s.pos)
		s.pos++
		return Page{}, &FetchError{Feed: f, Page: s.pos, Err: s.FailErr}
	}
	if s.pos >= len(s.pages) {
		return Page{}, ErrNoMorePages
	}
	p := s.pages[s.pos]
	s.pos++
	return p, nil
}

func (s *SequenceSource) feedAt(i int) model.Feed {
	if i < len(s.pages) {
		return s.pages[i].Feed
	}
	return model.FeedRolls
}
