package domain

import (
	"errors"
	"fmt"
)

// Normalization failure codes. These are expected outcomes, not crashes;
// the decision engine maps them to needs_info or reject.
var (
	ErrAmbiguousLocation = errors.New("ambiguous location")
	ErrOutsideBounds     = errors.New("outside plausible range")
	ErrUnresolvable      = errors.New("unresolvable location")
)

// Fatal configuration errors. These abort the run instead of producing
// corrupted output.
var (
	ErrMissingTable   = errors.New("curated table missing or unreadable")
	ErrMalformedAudit = errors.New("malformed audit file")
	ErrMalformedState = errors.New("malformed persisted state")
)

// Validation reason codes, shared between Validator verdicts and public
// reply texts.
const (
	ReasonMissingPhoto      = "missing_photo"
	ReasonExtraPhotos       = "extra_photos"
	ReasonMissingLocation   = "missing_location"
	ReasonAmbiguousLocation = "ambiguous_location"
	ReasonMissingMention    = "missing_mention"
	ReasonKindConflict      = "kind_conflict"
	ReasonIllegalSymbol     = "illegal_symbol"
	ReasonOutsideBounds     = "outside_plausible_range"
	ReasonUnresolvable      = "unresolvable_location"
	ReasonNoMatchingSpot    = "no_matching_spot"
)

// NormalizeError wraps a normalization sentinel with the offending
// expression for logs and replies.
type NormalizeError struct {
	Expr    string
	Wrapped error
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize %q: %s", e.Expr, e.Wrapped)
}

func (e *NormalizeError) Unwrap() error { return e.Wrapped }

// NewNormalizeError wraps a sentinel with the raw expression.
func NewNormalizeError(expr string, wrapped error) *NormalizeError {
	return &NormalizeError{Expr: expr, Wrapped: wrapped}
}
