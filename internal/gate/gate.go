// Package gate holds assessments back until the rows they reference exist.
//
// An assessment is ready when its property exists and a ratio exists for
// (property.municipality_code, assessment.roll_year). Both are looked up in
// three places, in order: the batch being admitted, the pending set of
// batches this run has already committed, and the persisted store. The two
// feeds paginate independently, so an assessment may arrive before its
// ratio; such assessments are deferred and reconsidered by RetryPass once
// both feeds are drained. A bounded number of retry passes is allowed; what
// is still unresolved after the last one is rejected.
package gate

import (
	"context"
	"fmt"

	"github.com/roach88/cnyre/internal/model"
)

// MaxExtraPasses is the hard cap on retry passes per run.
const MaxExtraPasses = 3

// Lookup answers reference questions against persisted state.
type Lookup interface {
	// PropertyMunicipality returns the municipality code of a stored property.
	PropertyMunicipality(ctx context.Context, propertyID string) (code string, ok bool, err error)

	// HasRatio reports whether a ratio is stored for the key.
	HasRatio(ctx context.Context, key model.RatioKey) (bool, error)
}

// Decision is the outcome of admitting a batch or running a retry pass.
type Decision struct {
	// Ready holds the entities that may be loaded now.
	Ready model.Batch

	// Deferred counts assessments held back. From Admit it counts keys
	// deferred for the first time in the run, so a newer copy of a held key
	// does not count again. From RetryPass it counts keys still held for the
	// next pass.
	Deferred int

	// Rejected holds assessments that exhausted their retry passes.
	Rejected []*model.UnresolvedReferenceError
}

// Gate tracks pending state for one run. It is driven by the pipeline's
// single consumer and is not safe for concurrent use.
type Gate struct {
	lookup    Lookup
	maxPasses int
	passes    int

	// Committed by this run, keyed for lookup.
	properties map[string]string
	ratios     map[model.RatioKey]bool

	// Deferred assessments in arrival order.
	deferred []model.AssessmentKey
	held     map[model.AssessmentKey]model.Assessment

	// Every key deferred at least once this run.
	seen map[model.AssessmentKey]bool
}

// New creates a Gate. maxPasses is clamped to [1, MaxExtraPasses].
func New(lookup Lookup, maxPasses int) *Gate {
	if maxPasses < 1 {
		maxPasses = 1
	}
	if maxPasses > MaxExtraPasses {
		maxPasses = MaxExtraPasses
	}
	return &Gate{
		lookup:     lookup,
		maxPasses:  maxPasses,
		properties: make(map[string]string),
		ratios:     make(map[model.RatioKey]bool),
		held:       make(map[model.AssessmentKey]model.Assessment),
		seen:       make(map[model.AssessmentKey]bool),
	}
}

// Admit partitions a normalized batch. Ratios and properties have no
// dependencies and are always ready. Assessments are ready when their
// references resolve and are deferred otherwise.
func (g *Gate) Admit(ctx context.Context, batch model.Batch) (Decision, error) {
	d := Decision{Ready: model.Batch{Ratios: batch.Ratios, Properties: batch.Properties}}

	local := newScope(batch)
	for _, a := range batch.Assessments {
		res, err := g.resolve(ctx, a, local)
		if err != nil {
			return Decision{}, err
		}
		if res.ok() {
			d.Ready.Assessments = append(d.Ready.Assessments, a)
			// A newer copy of a held assessment supersedes it.
			g.release(a.Key())
			continue
		}
		if g.hold(a) {
			d.Deferred++
		}
	}
	return d, nil
}

// Commit records a loaded batch in the pending set. Call it only after the
// batch's transaction committed, so a rolled-back page never satisfies a
// reference.
func (g *Gate) Commit(batch model.Batch) {
	for _, p := range batch.Properties {
		g.properties[p.ID] = p.MunicipalityCode
	}
	for _, r := range batch.Ratios {
		g.ratios[r.Key()] = true
	}
}

// HasDeferred reports whether assessments are waiting for a retry pass.
func (g *Gate) HasDeferred() bool {
	return len(g.deferred) > 0
}

// Passes returns the number of retry passes run so far.
func (g *Gate) Passes() int {
	return g.passes
}

// RetryPass reconsiders every deferred assessment against the pending set
// and the store. On the last allowed pass, whatever still does not resolve
// is rejected, so the deferred queue is always empty afterwards.
func (g *Gate) RetryPass(ctx context.Context) (Decision, error) {
	if g.passes >= g.maxPasses {
		return Decision{}, fmt.Errorf("gate: retry passes exhausted (%d)", g.maxPasses)
	}
	g.passes++
	final := g.passes == g.maxPasses

	var d Decision
	var still []model.AssessmentKey
	empty := newScope(model.Batch{})
	for _, key := range g.deferred {
		a := g.held[key]
		res, err := g.resolve(ctx, a, empty)
		if err != nil {
			return Decision{}, err
		}
		switch {
		case res.ok():
			d.Ready.Assessments = append(d.Ready.Assessments, a)
			delete(g.held, key)
		case final:
			d.Rejected = append(d.Rejected, res.rejection(key))
			delete(g.held, key)
		default:
			still = append(still, key)
			d.Deferred++
		}
	}
	g.deferred = still
	return d, nil
}

// hold queues a or replaces the held copy of its key. It reports whether
// the key is deferred for the first time this run.
func (g *Gate) hold(a model.Assessment) bool {
	key := a.Key()
	if _, ok := g.held[key]; !ok {
		g.deferred = append(g.deferred, key)
	}
	g.held[key] = a
	if g.seen[key] {
		return false
	}
	g.seen[key] = true
	return true
}

func (g *Gate) release(key model.AssessmentKey) {
	if _, ok := g.held[key]; !ok {
		return
	}
	delete(g.held, key)
	for i, k := range g.deferred {
		if k == key {
			g.deferred = append(g.deferred[:i], g.deferred[i+1:]...)
			break
		}
	}
}

// scope is the set of references carried by the batch being admitted.
type scope struct {
	properties map[string]string
	ratios     map[model.RatioKey]bool
}

func newScope(b model.Batch) scope {
	s := scope{
		properties: make(map[string]string, len(b.Properties)),
		ratios:     make(map[model.RatioKey]bool, len(b.Ratios)),
	}
	for _, p := range b.Properties {
		s.properties[p.ID] = p.MunicipalityCode
	}
	for _, r := range b.Ratios {
		s.ratios[r.Key()] = true
	}
	return s
}

type resolution struct {
	propertyFound bool
	ratio         model.RatioKey
	ratioFound    bool
}

func (r resolution) ok() bool {
	return r.propertyFound && r.ratioFound
}

func (r resolution) rejection(key model.AssessmentKey) *model.UnresolvedReferenceError {
	if !r.propertyFound {
		return &model.UnresolvedReferenceError{Assessment: key, MissingProperty: true}
	}
	missing := r.ratio
	return &model.UnresolvedReferenceError{Assessment: key, MissingRatio: &missing}
}

func (g *Gate) resolve(ctx context.Context, a model.Assessment, local scope) (resolution, error) {
	var res resolution

	code, ok := local.properties[a.PropertyID]
	if !ok {
		code, ok = g.properties[a.PropertyID]
	}
	if !ok {
		var err error
		code, ok, err = g.lookup.PropertyMunicipality(ctx, a.PropertyID)
		if err != nil {
			return res, fmt.Errorf("gate: lookup property %s: %w", a.PropertyID, err)
		}
	}
	if !ok {
		return res, nil
	}
	res.propertyFound = true
	res.ratio = model.RatioKey{MunicipalityCode: code, RateYear: a.RollYear}

	if local.ratios[res.ratio] || g.ratios[res.ratio] {
		res.ratioFound = true
		return res, nil
	}
	found, err := g.lookup.HasRatio(ctx, res.ratio)
	if err != nil {
		return res, fmt.Errorf("gate: lookup ratio %s: %w", res.ratio, err)
	}
	res.ratioFound = found
	return res, nil
}
