package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes pipeline errors. Codes double as reason keys in the
// run report's rejection tally.
type ErrorCode string

const (
	// CodeMalformedIdentity: an identifying field is missing, empty or
	// contains the ID separator.
	CodeMalformedIdentity ErrorCode = "MalformedIdentity"

	// CodeNormalization: a field failed type coercion or validation.
	CodeNormalization ErrorCode = "NormalizationError"

	// CodeSuspiciousRatio: a ratio outside (0, 2], routed to the rejected sink.
	CodeSuspiciousRatio ErrorCode = "SuspiciousRatio"

	// CodeUnresolvedReference: an assessment's property or ratio never
	// appeared, even after the retry pass.
	CodeUnresolvedReference ErrorCode = "UnresolvedReference"

	// CodeLoadFailure: a page transaction failed twice and was skipped.
	CodeLoadFailure ErrorCode = "LoadFailure"

	// CodeEnrichmentInconsistency: an assessment without a resolvable ratio
	// at enrichment time.
	CodeEnrichmentInconsistency ErrorCode = "EnrichmentInconsistency"

	// CodeSchemaDrift: a required source field vanished from a whole page.
	CodeSchemaDrift ErrorCode = "SchemaDrift"
)

// Run-fatal conditions.
var (
	// ErrNoSourceData means zero records were fetched across both feeds.
	ErrNoSourceData = errors.New("no records fetched from any feed")

	// ErrStoreUnavailable means the persistent store cannot be reached.
	ErrStoreUnavailable = errors.New("persistent store unavailable")
)

// coded is implemented by every error in the taxonomy.
type coded interface {
	ErrorCode() ErrorCode
}

// CodeOf returns the taxonomy code of err, if it has one.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) (ErrorCode, bool) {
	var c coded
	if errors.As(err, &c) {
		return c.ErrorCode(), true
	}
	return "", false
}

// IdentityError reports a record whose identity cannot be derived.
type IdentityError struct {
	Feed   Feed
	Field  string
	Reason string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%s: %s field %q: %s", CodeMalformedIdentity, e.Feed, e.Field, e.Reason)
}

// ErrorCode implements coded.
func (e *IdentityError) ErrorCode() ErrorCode { return CodeMalformedIdentity }

// NormalizationError reports a single record that failed normalization.
// Code is CodeNormalization or CodeSuspiciousRatio.
type NormalizationError struct {
	Code   ErrorCode
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", e.Code, e.Field, e.Reason)
}

// ErrorCode implements coded.
func (e *NormalizationError) ErrorCode() ErrorCode {
	if e.Code == "" {
		return CodeNormalization
	}
	return e.Code
}

// UnresolvedReferenceError reports an assessment rejected after the retry pass.
type UnresolvedReferenceError struct {
	Assessment AssessmentKey

	// MissingProperty is set when no Property with the ID exists.
	MissingProperty bool

	// MissingRatio is set when the property resolved but its municipality
	// has no ratio for the roll year.
	MissingRatio *RatioKey
}

func (e *UnresolvedReferenceError) Error() string {
	if e.MissingProperty {
		return fmt.Sprintf("%s: assessment %s: property not found", CodeUnresolvedReference, e.Assessment)
	}
	return fmt.Sprintf("%s: assessment %s: no ratio for %s", CodeUnresolvedReference, e.Assessment, e.MissingRatio)
}

// ErrorCode implements coded.
func (e *UnresolvedReferenceError) ErrorCode() ErrorCode { return CodeUnresolvedReference }

// LoadFailure reports a page whose transaction was rolled back.
type LoadFailure struct {
	Page  string
	Cause error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("%s: page %s: %v", CodeLoadFailure, e.Page, e.Cause)
}

func (e *LoadFailure) Unwrap() error { return e.Cause }

// ErrorCode implements coded.
func (e *LoadFailure) ErrorCode() ErrorCode { return CodeLoadFailure }

// EnrichmentInconsistency reports an assessment whose trend cannot be
// derived: no ratio at enrichment time (a gate bug), or a ratio-adjusted
// value past the currency range. It is fatal for that property only.
type EnrichmentInconsistency struct {
	PropertyID string
	Missing    RatioKey

	// Reason replaces the "no ratio" message when set.
	Reason string
}

func (e *EnrichmentInconsistency) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: property %s: %s", CodeEnrichmentInconsistency, e.PropertyID, e.Reason)
	}
	return fmt.Sprintf("%s: property %s: no ratio for %s", CodeEnrichmentInconsistency, e.PropertyID, e.Missing)
}

// ErrorCode implements coded.
func (e *EnrichmentInconsistency) ErrorCode() ErrorCode { return CodeEnrichmentInconsistency }

// SchemaDrift reports required fields that vanished from a whole page,
// which is how a published field rename shows up.
type SchemaDrift struct {
	Feed    Feed
	Page    string
	Missing []string
}

func (e *SchemaDrift) Error() string {
	return fmt.Sprintf("%s: %s page %s: required fields missing from every record: %s",
		CodeSchemaDrift, e.Feed, e.Page, strings.Join(e.Missing, ", "))
}

// ErrorCode implements coded.
func (e *SchemaDrift) ErrorCode() ErrorCode { return CodeSchemaDrift }

// IsSchemaDrift returns true if err is a schema drift error.
func IsSchemaDrift(err error) bool {
	var sd *SchemaDrift
	return errors.As(err, &sd)
}
