// Package decide turns one fully-analyzed post into a Decision and the
// report-store mutations it implies. Everything here is pure: side effects
// are returned as data and applied by the caller.
package decide

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/propwatch/propwatch/engine/domain"
)

// DefaultStaleWindow is how long a present spot may go unconfirmed before
// it is swept to stale.
const DefaultStaleWindow = 30 * 24 * time.Hour

// Input gathers everything the engine needs for one post. Location and
// NormErr are mutually exclusive; Matched is nil when no existing spot
// matched.
type Input struct {
	Post     domain.ParsedPost
	Verdict  domain.Verdict
	Location *domain.NormalizedLocation
	NormErr  error
	Entity   domain.EntityRef
	Matched  *domain.Report
	// TrustedAuthor marks posts from the controlled account or an
	// allowlisted reporter; only they may confirm removals directly.
	TrustedAuthor bool
	// Now is the pipeline clock at processing time; it caps forged
	// future remote timestamps. Zero means trust CreatedAtRemote as is.
	Now time.Time
}

// Engine maps analyzed posts to decisions.
type Engine struct {
	StaleWindow time.Duration
}

func (e Engine) staleWindow() time.Duration {
	if e.StaleWindow > 0 {
		return e.StaleWindow
	}
	return DefaultStaleWindow
}

// Decide returns the decision for one post and the mutations to apply, in
// order. Reply mutations carry the full public reply text.
func (e Engine) Decide(in Input) (domain.Decision, []domain.Mutation) {
	p := in.Post

	// A post that never mentioned us is not a submission; stay silent.
	if !p.MentionsTarget {
		return domain.Decision{Outcome: domain.OutcomeIgnore}, nil
	}

	if p.FlaggedIllegal {
		return reject(p.PostID, domain.ReasonIllegalSymbol)
	}

	if reason, severity := worstFailure(in.Verdict); severity == sevReject {
		return reject(p.PostID, reason)
	} else if severity == sevNeedsInfo {
		return needsInfo(p.PostID, reason)
	}

	if in.NormErr != nil {
		switch {
		case errors.Is(in.NormErr, domain.ErrOutsideBounds):
			return reject(p.PostID, domain.ReasonOutsideBounds)
		default:
			return needsInfo(p.PostID, domain.ReasonUnresolvable)
		}
	}

	if p.Removal {
		return e.decideRemoval(in)
	}

	if !p.ReviewerApproved {
		return domain.Decision{Outcome: domain.OutcomePending},
			[]domain.Mutation{{Op: domain.OpReply, PostID: p.PostID, Text: ReplyPending()}}
	}

	return e.decideSighting(in)
}

func (e Engine) decideRemoval(in Input) (domain.Decision, []domain.Mutation) {
	p := in.Post
	if !in.TrustedAuthor && !p.ReviewerApproved {
		return domain.Decision{Outcome: domain.OutcomePending},
			[]domain.Mutation{{Op: domain.OpReply, PostID: p.PostID, Text: ReplyPending()}}
	}
	if in.Matched == nil || in.Matched.Status == domain.StatusRemoved {
		return needsInfo(p.PostID, domain.ReasonNoMatchingSpot)
	}
	return domain.Decision{Outcome: domain.OutcomePublish}, []domain.Mutation{
		{Op: domain.OpRemove, SpotID: in.Matched.ID},
		{Op: domain.OpReply, PostID: p.PostID, Text: ReplyRemoved()},
	}
}

func (e Engine) decideSighting(in Input) (domain.Decision, []domain.Mutation) {
	p := in.Post

	// A post that already contributed to this spot, whether it created it
	// or confirmed it by proximity on an earlier pass: nothing to change.
	// Re-runs must not inflate seen counts.
	if in.Matched != nil && in.Matched.HasSource(p.SourceURL) {
		return domain.Decision{Outcome: domain.OutcomePublish}, nil
	}

	// A confirmed sighting of a removed spot opens a fresh instance; the
	// removed feature keeps its history.
	if in.Matched != nil && in.Matched.Status != domain.StatusRemoved {
		update := &domain.Report{
			Category:  p.FreeTextCategory,
			LastSeen:  e.observedAt(in),
			SourceURL: p.SourceURL,
			Media:     p.Media,
		}
		return domain.Decision{Outcome: domain.OutcomePublish},
			[]domain.Mutation{{Op: domain.OpConfirm, SpotID: in.Matched.ID, Spot: update}}
	}

	spot := e.newSpot(in)
	return domain.Decision{Outcome: domain.OutcomePublish},
		[]domain.Mutation{{Op: domain.OpCreate, Spot: &spot}}
}

func (e Engine) newSpot(in Input) domain.Report {
	p := in.Post
	seen := e.observedAt(in)
	return domain.Report{
		ID:                SpotID(p.SourceURL),
		Kind:              p.Kind,
		Category:          p.FreeTextCategory,
		Entity:            in.Entity,
		Location:          *in.Location,
		FirstSeen:         seen,
		LastSeen:          seen,
		SeenCount:         1,
		Status:            domain.StatusPresent,
		NeedsVerification: in.Entity.NeedsVerification || in.Verdict.SoftVerify,
		SourceURL:         p.SourceURL,
		Media:             p.Media,
	}
}

// observedAt is the sighting timestamp written to the dataset: the
// post's remote creation time, clamped to the processing clock so a
// forged future timestamp cannot pin a spot ahead of the stale sweep.
func (e Engine) observedAt(in Input) time.Time {
	ts := in.Post.CreatedAtRemote
	if !in.Now.IsZero() && ts.After(in.Now) {
		return in.Now
	}
	return ts
}

// SweepStale returns the stale transitions due at now: every present spot
// whose last confirmation is older than the window. Spots confirmed within
// the window are untouched.
func (e Engine) SweepStale(view []domain.Report, now time.Time) []domain.Mutation {
	var out []domain.Mutation
	for _, s := range view {
		if s.Status != domain.StatusPresent {
			continue
		}
		if now.Sub(s.LastSeen) > e.staleWindow() {
			out = append(out, domain.Mutation{Op: domain.OpStale, SpotID: s.ID})
		}
	}
	return out
}

// SpotID derives the stable spot identifier from the source post URL.
func SpotID(sourceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()
}

type severity int

const (
	sevNone severity = iota
	sevNeedsInfo
	sevReject
)

// worstFailure classifies accumulated validation failures. Hard structural
// problems reject; recoverable gaps ask for more information. The reply
// quotes the most severe reason.
func worstFailure(v domain.Verdict) (string, severity) {
	reason, sev := "", sevNone
	for _, f := range v.Failures {
		switch f {
		case domain.ReasonMissingPhoto, domain.ReasonExtraPhotos, domain.ReasonKindConflict:
			if sev < sevReject {
				reason, sev = f, sevReject
			}
		case domain.ReasonMissingLocation, domain.ReasonAmbiguousLocation:
			if sev < sevNeedsInfo {
				reason, sev = f, sevNeedsInfo
			}
		}
	}
	return reason, sev
}

func reject(postID, reason string) (domain.Decision, []domain.Mutation) {
	return domain.Decision{Outcome: domain.OutcomeReject, Reason: reason},
		[]domain.Mutation{{Op: domain.OpReply, PostID: postID, Text: ReplyForReason(reason)}}
}

func needsInfo(postID, reason string) (domain.Decision, []domain.Mutation) {
	return domain.Decision{Outcome: domain.OutcomeNeedsInfo, Reason: reason},
		[]domain.Mutation{{Op: domain.OpReply, PostID: postID, Text: ReplyForReason(reason)}}
}
