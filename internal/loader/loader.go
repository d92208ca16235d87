// Package loader writes admitted batches to the store, one transaction per
// source page.
//
// A page whose transaction fails is rolled back and retried; after the last
// retry it is skipped and reported as *model.LoadFailure, and the run goes
// on. Only a store that is unusable altogether stops the run.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/store"
)

// DefaultRetries is the number of extra attempts per page.
const DefaultRetries = 1

// Writer persists a batch atomically.
type Writer interface {
	WriteBatch(ctx context.Context, batch model.Batch) error
}

// Options configures a Loader.
type Options struct {
	// Retries is the number of extra attempts after a failed transaction.
	// Negative means DefaultRetries.
	Retries int

	// IsFatal classifies errors that mean the store is unusable. Defaults
	// to store.IsUnavailable.
	IsFatal func(error) bool

	Logger *slog.Logger
}

// Result describes one loaded page.
type Result struct {
	Page     string
	Loaded   model.Counts
	Attempts int
}

// Loader is the single writer of base tables during a run.
type Loader struct {
	w       Writer
	retries int
	isFatal func(error) bool
	logger  *slog.Logger
}

// New creates a Loader.
func New(w Writer, opts Options) *Loader {
	l := &Loader{w: w, retries: opts.Retries, isFatal: opts.IsFatal, logger: opts.Logger}
	if l.retries < 0 {
		l.retries = DefaultRetries
	}
	if l.isFatal == nil {
		l.isFatal = store.IsUnavailable
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// LoadPage writes one page's admitted entities.
//
// Returns *model.LoadFailure when every attempt failed; the page is then
// skipped and nothing from it is persisted. Returns an error wrapping
// model.ErrStoreUnavailable when the store cannot be used, and ctx.Err()
// when the context ends between attempts. An empty batch is a no-op.
func (l *Loader) LoadPage(ctx context.Context, page string, batch model.Batch) (Result, error) {
	res := Result{Page: page}
	if batch.Len() == 0 {
		return res, nil
	}

	var lastErr error
	for attempt := 0; attempt <= l.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempts++

		err := l.w.WriteBatch(ctx, batch)
		if err == nil {
			res.Loaded = batch.Counts()
			l.logger.Debug("page loaded",
				"page", page,
				"attempts", res.Attempts,
				"ratios", res.Loaded.Ratios,
				"properties", res.Loaded.Properties,
				"assessments", res.Loaded.Assessments)
			return res, nil
		}
		if l.isFatal(err) {
			if errors.Is(err, model.ErrStoreUnavailable) {
				return res, err
			}
			return res, fmt.Errorf("%w: load page %s: %w", model.ErrStoreUnavailable, page, err)
		}
		lastErr = err
		l.logger.Warn("page rolled back",
			"page", page,
			"attempt", res.Attempts,
			"error", err)
	}

	l.logger.Warn("page skipped", "page", page, "attempts", res.Attempts, "error", lastErr)
	return res, &model.LoadFailure{Page: page, Cause: lastErr}
}
