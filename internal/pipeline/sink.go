package pipeline

import (
	"errors"
	"strconv"
	"strings"

	"github.com/roach88/cnyre/internal/canon"
	"github.com/roach88/cnyre/internal/feed"
	"github.com/roach88/cnyre/internal/identity"
	"github.com/roach88/cnyre/internal/model"
	"github.com/roach88/cnyre/internal/normalize"
	"github.com/roach88/cnyre/internal/store"
)

// rejectionKey is the primary key of rejected_records.
type rejectionKey struct {
	feed      string
	sourceKey string
	reason    string
}

// rejectRecord tallies a record that failed resolution or normalization,
// or sat on a drifted page, and adds it to the rejected sink.
func (r *run) rejectRecord(rec feed.Record, err error) {
	code, ok := model.CodeOf(err)
	if !ok {
		code = model.CodeNormalization
	}

	var field string
	var ie *model.IdentityError
	var ne *model.NormalizationError
	var sd *model.SchemaDrift
	switch {
	case errors.As(err, &ie):
		field = ie.Field
	case errors.As(err, &ne):
		field = ne.Field
	case errors.As(err, &sd):
		field = strings.Join(sd.Missing, ",")
	}

	r.sink(code, store.Rejection{
		Feed:      string(rec.Feed),
		SourceKey: sourceKey(rec),
		Reason:    string(code),
		Field:     field,
		Detail:    err.Error(),
	})
	r.logger.Debug("record rejected",
		"feed", rec.Feed,
		"page", rec.Page,
		"reason", code,
		"error", err)
}

// rejectUnresolved tallies an assessment the gate gave up on.
func (r *run) rejectUnresolved(e *model.UnresolvedReferenceError) {
	r.sink(model.CodeUnresolvedReference, store.Rejection{
		Feed:      string(model.FeedRolls),
		SourceKey: e.Assessment.String(),
		Reason:    string(model.CodeUnresolvedReference),
		Detail:    e.Error(),
	})
	r.logger.Debug("record rejected",
		"feed", model.FeedRolls,
		"property_id", e.Assessment.PropertyID,
		"reason", model.CodeUnresolvedReference,
		"error", e)
}

func (r *run) sink(code model.ErrorCode, rej store.Rejection) {
	r.report.Rejected[code]++
	if m := r.p.opts.Metrics; m != nil {
		m.RecordsRejected.WithLabelValues(string(code)).Inc()
	}

	key := rejectionKey{feed: rej.Feed, sourceKey: rej.SourceKey, reason: rej.Reason}
	if i, ok := r.sinkKeys[key]; ok {
		r.rejections[i] = rej
		return
	}
	r.sinkKeys[key] = len(r.rejections)
	r.rejections = append(r.rejections, rej)
}

// sourceKey identifies a rejected record across runs. Records with a
// resolvable identity use their natural key; the rest are keyed by a hash
// of their raw fields, which a page position would not survive.
func sourceKey(rec feed.Record) string {
	switch rec.Feed {
	case model.FeedRolls:
		if id, err := identity.ForRoll(rec); err == nil {
			if year, err := strconv.Atoi(rec.Value(normalize.FieldRollYear)); err == nil {
				return model.AssessmentKey{PropertyID: id.ID, RollYear: year}.String()
			}
		}
	case model.FeedRatios:
		if key, err := identity.ForRatio(rec); err == nil {
			return key.String()
		}
	}

	row := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		row[k] = v
	}
	h, err := canon.RowHash(row)
	if err != nil {
		return rec.SourceKey()
	}
	return "sha256:" + h
}
