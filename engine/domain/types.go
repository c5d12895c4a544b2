// Package domain defines the core types, closed enumerations, and validation
// rules for the propwatch engine. It acts as the validation gate at pipeline
// entry points and imports nothing I/O-capable.
package domain

import "time"

// Kind classifies what a report is about. Exactly one kind per report.
type Kind string

const (
	KindSticker  Kind = "sticker"
	KindGraffiti Kind = "graffiti"
	KindUnknown  Kind = "unknown"
)

// Status is the lifecycle state of a tracked spot.
type Status string

const (
	StatusPresent Status = "present"
	StatusRemoved Status = "removed"
	StatusStale   Status = "stale"
)

// Outcome is the decision taken for one ingested post.
type Outcome string

const (
	OutcomePublish   Outcome = "publish"
	OutcomePending   Outcome = "pending"
	OutcomeNeedsInfo Outcome = "needs_info"
	OutcomeIgnore    Outcome = "ignore"
	OutcomeReject    Outcome = "reject"
)

// Decision pairs an outcome with a reason code. Reason is set for
// needs_info and reject outcomes and empty otherwise.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// SnapSource records how a normalized coordinate was obtained.
type SnapSource string

const (
	SnapGPS      SnapSource = "gps"
	SnapStreet   SnapSource = "street"
	SnapCrossing SnapSource = "crossing"
	SnapNone     SnapSource = "unsnapped"
)

// ExprKind classifies a raw location expression.
type ExprKind string

const (
	ExprCoords   ExprKind = "coords"
	ExprAddress  ExprKind = "address"
	ExprCrossing ExprKind = "crossing"
)

// LocationExpr is a location expression extracted from post text.
// For ExprCoords, Lat/Lon hold the parsed coordinate and Precise reports
// whether the source text carried full GPS precision. For address and
// crossing expressions, Query holds the normalized geocoder query.
type LocationExpr struct {
	Raw     string
	Kind    ExprKind
	Lat     float64
	Lon     float64
	Precise bool
	Query   string
}

// RawPost is one post as delivered by the transport adapter.
type RawPost struct {
	ID              string    `json:"id"`
	AuthorID        string    `json:"author_id"`
	URL             string    `json:"url"`
	Body            string    `json:"body"`
	AttachmentCount int       `json:"attachment_count"`
	Media           []string  `json:"media,omitempty"`
	Hashtags        []string  `json:"hashtags,omitempty"`
	MentionTargets  []string  `json:"mention_targets,omitempty"`
	CreatedAtRemote time.Time `json:"created_at_remote"`
	// ReviewerApproved is true when an allowlisted reviewer has favorited
	// the post. The reply-chain lookup behind it is the transport's job.
	ReviewerApproved bool `json:"reviewer_approved"`
	// FlaggedIllegal is set by moderation when the post shows an
	// unblurred illegal symbol.
	FlaggedIllegal bool `json:"flagged_illegal,omitempty"`
}

// ParsedPost is the immutable extraction result for one post.
type ParsedPost struct {
	PostID          string
	AuthorID        string
	SourceURL       string
	PhotoCount      int
	Media           []string
	Location        *LocationExpr
	// AmbiguousLocation is set when the post carries more than one
	// conflicting location expression; the parser never guesses.
	AmbiguousLocation bool
	Hashtags          []string
	MentionsTarget    bool
	Kind              Kind
	// KindConflict is set when both sticker and graffiti markers appear.
	KindConflict bool
	// Removal marks a removal-confirmation post rather than a sighting.
	Removal          bool
	FreeTextCategory string
	Note             string
	CreatedAtRemote  time.Time
	ReviewerApproved bool
	FlaggedIllegal   bool
}

// NormalizedLocation is a resolved coordinate with honest uncertainty.
type NormalizedLocation struct {
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	AccuracyM int        `json:"accuracy_m"`
	Snap      SnapSource `json:"snap_source"`
}

// EntityRef points at a curated entity, or at the universal Unknown.
type EntityRef struct {
	Key               string `json:"key,omitempty"`
	Display           string `json:"display"`
	Desc              string `json:"desc"`
	NeedsVerification bool   `json:"needs_verification"`
}

// UnknownEntity is the only EntityRef an unresolvable hint may yield.
// The resolver must never synthesize a plausible-looking name.
func UnknownEntity() EntityRef {
	return EntityRef{
		Display:           "Unknown",
		Desc:              "Unknown (needs verification)",
		NeedsVerification: true,
	}
}

// Report is one tracked spot in the public dataset.
type Report struct {
	ID                string             `json:"id"`
	Kind              Kind               `json:"kind"`
	Category          string             `json:"category"`
	Entity            EntityRef          `json:"entity"`
	Location          NormalizedLocation `json:"location"`
	FirstSeen         time.Time          `json:"first_seen"`
	LastSeen          time.Time          `json:"last_seen"`
	SeenCount         int                `json:"seen_count"`
	Status            Status             `json:"status"`
	NeedsVerification bool               `json:"needs_verification"`
	SourceURL         string             `json:"source_url,omitempty"`
	// Sources lists the URLs of posts that confirmed this spot after its
	// creation. Together with SourceURL it is the ledger that keeps
	// re-processing a batch from counting the same post twice.
	Sources []string `json:"sources,omitempty"`
	Media   []string `json:"media,omitempty"`
}

// HasSource reports whether the post at url already contributed to this
// spot, either by creating it or by confirming it.
func (r Report) HasSource(url string) bool {
	if url == "" {
		return false
	}
	if r.SourceURL == url {
		return true
	}
	for _, s := range r.Sources {
		if s == url {
			return true
		}
	}
	return false
}

// MutationOp enumerates the report-store side effects a pipeline pass
// may request. The store applies them; the pipeline never touches state.
type MutationOp string

const (
	// OpCreate creates a new spot from Mutation.Spot.
	OpCreate MutationOp = "create"
	// OpConfirm advances LastSeen, bumps SeenCount, and merges media and
	// category of the spot named by SpotID from Mutation.Spot.
	OpConfirm MutationOp = "confirm"
	// OpRemove marks the spot named by SpotID removed.
	OpRemove MutationOp = "remove"
	// OpStale marks the spot named by SpotID stale.
	OpStale MutationOp = "stale"
	// OpReply asks the (external) reply adapter to answer the post
	// named by PostID with Text.
	OpReply MutationOp = "reply"
)

// Mutation is a single requested side effect, returned as data.
type Mutation struct {
	Op     MutationOp
	SpotID string
	Spot   *Report
	PostID string
	Text   string
}

// PipelineResult aggregates one pipeline pass. It is a pure value; the
// caller owns applying Mutations in order.
type PipelineResult struct {
	Ingested  int
	Published int
	Pending   int
	Rejected  int
	NeedsInfo int
	Ignored   int
	Mutations []Mutation
}

// Count bumps the counter matching an outcome.
func (r *PipelineResult) Count(o Outcome) {
	switch o {
	case OutcomePublish:
		r.Published++
	case OutcomePending:
		r.Pending++
	case OutcomeReject:
		r.Rejected++
	case OutcomeNeedsInfo:
		r.NeedsInfo++
	case OutcomeIgnore:
		r.Ignored++
	}
}
