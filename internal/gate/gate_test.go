package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cnyre/internal/model"
)

type fakeLookup struct {
	properties map[string]string
	ratios     map[model.RatioKey]bool
	err        error
	calls      int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{properties: map[string]string{}, ratios: map[model.RatioKey]bool{}}
}

func (f *fakeLookup) PropertyMunicipality(_ context.Context, id string) (string, bool, error) {
	f.calls++
	if f.err != nil {
		return "", false, f.err
	}
	code, ok := f.properties[id]
	return code, ok, nil
}

func (f *fakeLookup) HasRatio(_ context.Context, key model.RatioKey) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.ratios[key], nil
}

func property(id, muni string) model.Property {
	return model.Property{ID: id, MunicipalityCode: muni, LastRollYear: 2024}
}

func assessment(id string, year int) model.Assessment {
	return model.Assessment{PropertyID: id, RollYear: year, AssessmentTotal: 88000}
}

func ratio(muni string, year int) model.Ratio {
	return model.Ratio{MunicipalityCode: muni, RateYear: year, Ratio: decimal.RequireFromString("0.88")}
}

func rollBatch(id, muni string, year int) model.Batch {
	return model.Batch{
		Properties:  []model.Property{property(id, muni)},
		Assessments: []model.Assessment{assessment(id, year)},
	}
}

func TestAdmit_ResolvesWithinBatch(t *testing.T) {
	g := New(newFakeLookup(), 1)
	b := rollBatch("050100|1", "050100", 2024)
	b.Ratios = []model.Ratio{ratio("050100", 2024)}

	d, err := g.Admit(context.Background(), b)
	require.NoError(t, err)
	assert.Len(t, d.Ready.Assessments, 1)
	assert.Len(t, d.Ready.Properties, 1)
	assert.Len(t, d.Ready.Ratios, 1)
	assert.Zero(t, d.Deferred)
	assert.False(t, g.HasDeferred())
}

func TestAdmit_ResolvesAgainstStore(t *testing.T) {
	lookup := newFakeLookup()
	lookup.ratios[model.RatioKey{MunicipalityCode: "050100", RateYear: 2024}] = true
	g := New(lookup, 1)

	d, err := g.Admit(context.Background(), rollBatch("050100|1", "050100", 2024))
	require.NoError(t, err)
	assert.Len(t, d.Ready.Assessments, 1)
}

func TestAdmit_UsesBatchMunicipalityOverStored(t *testing.T) {
	lookup := newFakeLookup()
	lookup.properties["050100|1"] = "050199"
	lookup.ratios[model.RatioKey{MunicipalityCode: "050100", RateYear: 2024}] = true
	g := New(lookup, 1)

	d, err := g.Admit(context.Background(), rollBatch("050100|1", "050100", 2024))
	require.NoError(t, err)
	assert.Len(t, d.Ready.Assessments, 1)
}

func TestOutOfOrder_RatioAfterAssessment(t *testing.T) {
	ctx := context.Background()
	g := New(newFakeLookup(), 1)

	rolls := rollBatch("050100|1", "050100", 2024)
	d, err := g.Admit(ctx, rolls)
	require.NoError(t, err)
	assert.Empty(t, d.Ready.Assessments)
	assert.Len(t, d.Ready.Properties, 1, "properties are never held back")
	assert.Equal(t, 1, d.Deferred)
	g.Commit(d.Ready)

	ratios := model.Batch{Ratios: []model.Ratio{ratio("050100", 2024)}}
	d, err = g.Admit(ctx, ratios)
	require.NoError(t, err)
	g.Commit(d.Ready)

	require.True(t, g.HasDeferred())
	d, err = g.RetryPass(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Ready.Assessments, 1)
	assert.Empty(t, d.Rejected)
	assert.False(t, g.HasDeferred())
}

func TestRetryPass_RejectsUnresolved(t *testing.T) {
	ctx := context.Background()
	g := New(newFakeLookup(), 1)

	d, err := g.Admit(ctx, rollBatch("050100|1", "050100", 2024))
	require.NoError(t, err)
	g.Commit(d.Ready)

	// Property reference that never appears anywhere.
	d, err = g.Admit(ctx, model.Batch{Assessments: []model.Assessment{assessment("999999|9", 2024)}})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Deferred)

	d, err = g.RetryPass(ctx)
	require.NoError(t, err)
	require.Len(t, d.Rejected, 2)

	assert.Equal(t, model.AssessmentKey{PropertyID: "050100|1", RollYear: 2024}, d.Rejected[0].Assessment)
	require.NotNil(t, d.Rejected[0].MissingRatio)
	assert.Equal(t, "050100/2024", d.Rejected[0].MissingRatio.String())

	assert.True(t, d.Rejected[1].MissingProperty)
	assert.False(t, g.HasDeferred())

	_, err = g.RetryPass(ctx)
	assert.Error(t, err, "passes are bounded")
}

func TestRetryPass_KeepsDeferredUntilLastPass(t *testing.T) {
	ctx := context.Background()
	g := New(newFakeLookup(), 2)

	d, err := g.Admit(ctx, rollBatch("050100|1", "050100", 2024))
	require.NoError(t, err)
	g.Commit(d.Ready)

	d, err = g.RetryPass(ctx)
	require.NoError(t, err)
	assert.Empty(t, d.Rejected)
	assert.Equal(t, 1, d.Deferred)

	d, err = g.RetryPass(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Rejected, 1)
	assert.Equal(t, 2, g.Passes())
}

func TestCommit_OnlyAfterLoad(t *testing.T) {
	ctx := context.Background()
	g := New(newFakeLookup(), 1)

	// Ratio page admitted but never committed, as after a failed load.
	_, err := g.Admit(ctx, model.Batch{Ratios: []model.Ratio{ratio("050100", 2024)}})
	require.NoError(t, err)

	d, err := g.Admit(ctx, rollBatch("050100|1", "050100", 2024))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Deferred)
}

func TestAdmit_NewerCopySupersedesHeld(t *testing.T) {
	ctx := context.Background()
	lookup := newFakeLookup()
	g := New(lookup, 1)

	d, err := g.Admit(ctx, rollBatch("050100|1", "050100", 2024))
	require.NoError(t, err)
	g.Commit(d.Ready)
	require.True(t, g.HasDeferred())

	lookup.ratios[model.RatioKey{MunicipalityCode: "050100", RateYear: 2024}] = true
	d, err = g.Admit(ctx, rollBatch("050100|1", "050100", 2024))
	require.NoError(t, err)
	assert.Len(t, d.Ready.Assessments, 1)
	assert.False(t, g.HasDeferred())
}

func TestAdmit_CountsEachKeyDeferredOnce(t *testing.T) {
	ctx := context.Background()
	g := New(newFakeLookup(), 1)

	d, err := g.Admit(ctx, rollBatch("050100|1", "050100", 2024))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Deferred)
	g.Commit(d.Ready)

	// A corrected copy of the same assessment, still without a ratio.
	again := model.Batch{Assessments: []model.Assessment{assessment("050100|1", 2024)}}
	again.Assessments[0].AssessmentTotal = 90000
	d, err = g.Admit(ctx, again)
	require.NoError(t, err)
	assert.Zero(t, d.Deferred)

	d, err = g.RetryPass(ctx)
	require.NoError(t, err)
	require.Len(t, d.Rejected, 1, "one held copy, not two")
}

func TestAdmit_LookupErrorPropagates(t *testing.T) {
	lookup := newFakeLookup()
	lookup.err = errors.New("disk I/O error")
	g := New(lookup, 1)

	_, err := g.Admit(context.Background(), model.Batch{Assessments: []model.Assessment{assessment("x|1", 2024)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, lookup.err)
}

func TestNew_ClampsPasses(t *testing.T) {
	assert.Equal(t, 1, New(nil, 0).maxPasses)
	assert.Equal(t, MaxExtraPasses, New(nil, 10).maxPasses)
}
