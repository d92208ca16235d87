// Package pipeline runs the two feeds through resolution, normalization,
// the integrity gate, the loader and the trend enricher.
//
// # Concurrency
//
// Each feed is fetched by its own goroutine. Pages from both feeds meet on
// one channel and are consumed by a single goroutine, which owns the
// normalizer, the gate and the loader. Only fetching is concurrent; every
// write to the store happens in arrival order on the consumer.
//
// # Failure policy
//
// Per-record errors are tallied and routed to the rejected sink. A page
// whose transaction keeps failing is skipped and listed in the report. The
// run itself fails only when no record was fetched at all, when the store
// is unavailable, or when a feed's schema drifted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/cnyre/internal/enrich"
	"github.com/roach88/cnyre/internal/feed"
	"github.com/roach88/cnyre/internal/gate"
	"github.com/roach88/cnyre/internal/loader"
	"github.com/roach88/cnyre/internal/metrics"
	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/normalize"
	"github.com/roach88/cnyre/internal/store"
)

// Options configures a Pipeline.
type Options struct {
	// Counties, EarliestYear and LatestYear configure the normalizer.
	Counties     []string
	EarliestYear int
	LatestYear   int

	// ExtraPasses is the number of gate retry passes, clamped to
	// [1, gate.MaxExtraPasses].
	ExtraPasses int

	// PageRetries is the number of extra attempts per page transaction.
	// Negative means loader.DefaultRetries.
	PageRetries int

	// FullRecompute enriches every stored property instead of the ones
	// this run touched.
	FullRecompute bool

	// RunIDs defaults to UUIDv7Generator.
	RunIDs RunIDGenerator

	// Now defaults to time.Now.
	Now func() time.Time

	// Metrics is optional.
	Metrics *metrics.Metrics

	Logger *slog.Logger
}

// Pipeline runs the feeds into one store.
type Pipeline struct {
	store   *store.Store
	sources []feed.Source
	opts    Options
	logger  *slog.Logger
}

// New creates a Pipeline over the given sources.
func New(st *store.Store, sources []feed.Source, opts Options) *Pipeline {
	if opts.RunIDs == nil {
		opts.RunIDs = UUIDv7Generator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: st, sources: sources, opts: opts, logger: logger}
}

// fetched is one item on the page channel: a page or the error that ended
// a feed.
type fetched struct {
	page feed.Page
	err  error
}

// Run executes one pipeline run and returns its report. The report is
// returned even when the run fails; its Status is then store.RunFailed and
// the error wraps model.ErrNoSourceData or model.ErrStoreUnavailable.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	runID := p.opts.RunIDs.Generate()
	logger := p.logger.With("run_id", runID)
	r := &run{
		p:        p,
		logger:   logger,
		report:   newReport(runID, p.opts.Now()),
		touched:  make(map[string]bool),
		munis:    make(map[string]bool),
		sinkKeys: make(map[rejectionKey]int),
		norm: normalize.New(normalize.Options{
			Counties:     p.opts.Counties,
			EarliestYear: p.opts.EarliestYear,
			LatestYear:   p.opts.LatestYear,
			Logger:       logger,
		}),
		gate: gate.New(p.store, p.opts.ExtraPasses),
		loader: loader.New(p.store, loader.Options{
			Retries: p.opts.PageRetries,
			Logger:  logger,
		}),
	}
	logger.Info("run started", "feeds", len(p.sources))

	err := r.execute(ctx)
	return r.finish(ctx, err)
}

// run is the state of one Run call.
type run struct {
	p      *Pipeline
	logger *slog.Logger
	report *Report

	norm   *normalize.Normalizer
	gate   *gate.Gate
	loader *loader.Loader

	// touched holds properties whose assessments or descriptions were
	// loaded; munis holds municipalities whose ratios were loaded.
	touched map[string]bool
	munis   map[string]bool

	rejections []store.Rejection
	sinkKeys   map[rejectionKey]int
}

func (r *run) execute(ctx context.Context) error {
	if err := r.ingest(ctx); err != nil {
		return err
	}
	if r.report.TotalFetched() == 0 {
		return model.ErrNoSourceData
	}
	if err := r.retryDeferred(ctx); err != nil {
		return err
	}
	return r.enrich(ctx)
}

// ingest drains both feeds through the single consumer.
func (r *run) ingest(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make(chan fetched)
	var wg sync.WaitGroup
	for _, src := range r.p.sources {
		wg.Add(1)
		go func(src feed.Source) {
			defer wg.Done()
			fetchAll(ctx, src, pages)
		}(src)
	}
	go func() {
		wg.Wait()
		close(pages)
	}()

	// After a fatal error the channel is still drained so the fetchers
	// can exit.
	var fatal error
	for item := range pages {
		if fatal != nil {
			continue
		}
		if item.err != nil {
			r.fetchFailed(item.err)
			continue
		}
		if err := r.consume(ctx, item.page); err != nil {
			fatal = err
			cancel()
		}
	}
	if fatal != nil {
		return fatal
	}
	return ctx.Err()
}

func fetchAll(ctx context.Context, src feed.Source, out chan<- fetched) {
	for {
		page, err := src.Next(ctx)
		if errors.Is(err, feed.ErrNoMorePages) {
			return
		}
		select {
		case out <- fetched{page: page, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (r *run) fetchFailed(err error) {
	var fe *feed.FetchError
	f := model.Feed("unknown")
	if errors.As(err, &fe) {
		f = fe.Feed
	}
	r.report.FetchFailures = append(r.report.FetchFailures, err.Error())
	if m := r.p.opts.Metrics; m != nil {
		m.FetchFailures.WithLabelValues(string(f)).Inc()
	}
	r.logger.Warn("feed ended early", "feed", f, "error", err)
}

// consume normalizes one page and loads what the gate admits.
func (r *run) consume(ctx context.Context, page feed.Page) error {
	r.report.Fetched[page.Feed] += len(page.Records)
	if m := r.p.opts.Metrics; m != nil {
		m.RecordsFetched.WithLabelValues(string(page.Feed)).Add(float64(len(page.Records)))
	}

	// A drifted page is rejected record by record; the other pages of the
	// run still load and enrich.
	if err := r.norm.CheckSchema(page); err != nil {
		r.logger.Error("schema drift, page rejected",
			"feed", page.Feed,
			"page", page.Label,
			"records", len(page.Records),
			"error", err)
		for _, rec := range page.Records {
			r.rejectRecord(rec, err)
		}
		return nil
	}

	var batch model.Batch
	for _, rec := range page.Records {
		res, err := r.norm.Normalize(rec)
		if err != nil {
			r.rejectRecord(rec, err)
			continue
		}
		if res.Filtered {
			r.report.Filtered++
			if m := r.p.opts.Metrics; m != nil {
				m.RecordsFiltered.WithLabelValues(string(rec.Feed)).Inc()
			}
			continue
		}
		for _, e := range res.Entities {
			batch.Add(e)
		}
	}
	r.report.Normalized.Add(batch.Counts())

	d, err := r.gate.Admit(ctx, batch)
	if err != nil {
		return r.storeErr(fmt.Errorf("admit page %s: %w", page.Label, err))
	}
	r.report.Deferred += d.Deferred
	if d.Deferred > 0 {
		r.logger.Debug("assessments deferred", "page", page.Label, "count", d.Deferred)
	}
	return r.load(ctx, page.Label, d.Ready)
}

// load writes one admitted batch. A skipped page is recorded and is not an
// error; only an unusable store is.
func (r *run) load(ctx context.Context, label string, batch model.Batch) error {
	res, err := r.loader.LoadPage(ctx, label, batch)
	var lf *model.LoadFailure
	if errors.As(err, &lf) {
		r.report.LoadFailures = append(r.report.LoadFailures, lf.Page)
		if m := r.p.opts.Metrics; m != nil {
			m.PagesSkipped.Inc()
		}
		return nil
	}
	if err != nil {
		return r.storeErr(err)
	}

	r.gate.Commit(batch)
	r.report.Loaded.Add(res.Loaded)
	if m := r.p.opts.Metrics; m != nil {
		m.EntitiesLoaded.WithLabelValues("ratio").Add(float64(res.Loaded.Ratios))
		m.EntitiesLoaded.WithLabelValues("property").Add(float64(res.Loaded.Properties))
		m.EntitiesLoaded.WithLabelValues("assessment").Add(float64(res.Loaded.Assessments))
	}
	for _, p := range batch.Properties {
		r.touched[p.ID] = true
	}
	for _, a := range batch.Assessments {
		r.touched[a.PropertyID] = true
	}
	for _, rt := range batch.Ratios {
		r.munis[rt.MunicipalityCode] = true
	}
	return nil
}

// retryDeferred runs gate retry passes until nothing is held back. Each
// pass loads as its own synthetic page.
func (r *run) retryDeferred(ctx context.Context) error {
	for r.gate.HasDeferred() {
		d, err := r.gate.RetryPass(ctx)
		if err != nil {
			return r.storeErr(fmt.Errorf("gate retry pass: %w", err))
		}
		r.report.RetryPasses = r.gate.Passes()
		for _, rej := range d.Rejected {
			r.rejectUnresolved(rej)
		}
		label := fmt.Sprintf("retry-%d", r.gate.Passes())
		if err := r.load(ctx, label, d.Ready); err != nil {
			return err
		}
		r.logger.Info("retry pass done",
			"page", label,
			"loaded", len(d.Ready.Assessments),
			"rejected", len(d.Rejected))
	}
	return nil
}

// enrich recomputes trends for every property this run could have changed:
// the ones loaded directly and the ones in municipalities whose ratios
// were loaded.
func (r *run) enrich(ctx context.Context) error {
	var ids []string
	if r.p.opts.FullRecompute {
		all, err := r.p.store.AllPropertyIDs(ctx)
		if err != nil {
			return r.storeErr(err)
		}
		ids = all
	} else {
		for _, code := range sortedKeys(r.munis) {
			inMuni, err := r.p.store.PropertyIDsInMunicipality(ctx, code)
			if err != nil {
				return r.storeErr(err)
			}
			for _, id := range inMuni {
				r.touched[id] = true
			}
		}
		ids = sortedKeys(r.touched)
	}

	stats, err := enrich.New(r.p.store, r.logger).Run(ctx, ids)
	r.report.Enriched = stats
	if m := r.p.opts.Metrics; m != nil {
		m.PropertiesEnriched.Add(float64(stats.Properties))
		m.Inconsistencies.Add(float64(len(stats.Inconsistent)))
	}
	if err != nil {
		return r.storeErr(err)
	}
	return nil
}

// storeErr marks errors from an unusable store so the CLI can classify
// them without knowing the driver.
func (r *run) storeErr(err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) || !store.IsUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
}

// finish stamps the report, persists it with the run's rejections and
// publishes metrics.
func (r *run) finish(ctx context.Context, runErr error) (*Report, error) {
	rep := r.report
	rep.FinishedAt = r.p.opts.Now()
	switch {
	case runErr != nil:
		rep.Status = store.RunFailed
		rep.Error = runErr.Error()
	case rep.Clean():
		rep.Status = store.RunSucceeded
	default:
		rep.Status = store.RunCompletedRejection
	}

	if m := r.p.opts.Metrics; m != nil {
		m.ObserveRun(rep.Status, Statuses, rep.StartedAt, rep.FinishedAt)
	}

	// A run that failed on the store cannot record itself.
	if !errors.Is(runErr, model.ErrStoreUnavailable) {
		if err := r.record(ctx); err != nil {
			if runErr == nil {
				runErr = r.storeErr(err)
				rep.Status = store.RunFailed
				rep.Error = runErr.Error()
			} else {
				r.logger.Warn("run record not stored", "error", err)
			}
		}
	}

	logArgs := []any{
		"status", rep.Status,
		"fetched", rep.TotalFetched(),
		"filtered", rep.Filtered,
		"rejected", rep.TotalRejected(),
		"loaded", rep.Loaded.Total(),
		"enriched", rep.Enriched.Properties,
		"skipped_pages", len(rep.LoadFailures),
	}
	if runErr != nil {
		r.logger.Error("run failed", append(logArgs, "error", runErr)...)
		return rep, runErr
	}
	r.logger.Info("run finished", logArgs...)
	return rep, nil
}

func (r *run) record(ctx context.Context) error {
	data, err := r.report.JSON()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return r.p.store.RecordRun(context.WithoutCancel(ctx), store.RunRecord{
		RunID:      r.report.RunID,
		StartedAt:  r.report.StartedAt,
		FinishedAt: r.report.FinishedAt,
		Status:     r.report.Status,
		Report:     data,
	}, r.rejections)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
