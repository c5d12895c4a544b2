package decide

import (
	"testing"
	"time"

	"github.com/propwatch/propwatch/engine/domain"
)

var seen = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func validPost() domain.ParsedPost {
	return domain.ParsedPost{
		PostID:          "p1",
		AuthorID:        "a1",
		SourceURL:       "https://example.social/@a1/1",
		PhotoCount:      1,
		Location:        &domain.LocationExpr{Raw: "52.52, 13.405", Kind: domain.ExprCoords},
		MentionsTarget:  true,
		Kind:            domain.KindSticker,
		CreatedAtRemote: seen,
	}
}

func validInput() Input {
	p := validPost()
	return Input{
		Post:     p,
		Verdict:  domain.Validate(p),
		Location: &domain.NormalizedLocation{Lat: 52.52, Lon: 13.405, AccuracyM: 15, Snap: domain.SnapGPS},
		Entity:   domain.UnknownEntity(),
	}
}

func mutationOps(muts []domain.Mutation) []domain.MutationOp {
	ops := make([]domain.MutationOp, len(muts))
	for i, m := range muts {
		ops[i] = m.Op
	}
	return ops
}

func TestDecide_NoMentionIgnoredSilently(t *testing.T) {
	in := validInput()
	in.Post.MentionsTarget = false
	in.Verdict = domain.Validate(in.Post)

	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomeIgnore {
		t.Errorf("outcome = %s", d.Outcome)
	}
	if len(muts) != 0 {
		t.Errorf("ignored posts must not produce replies: %v", mutationOps(muts))
	}
}

func TestDecide_MissingPhotoRejects(t *testing.T) {
	in := validInput()
	in.Post.PhotoCount = 0
	in.Verdict = domain.Validate(in.Post)

	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomeReject || d.Reason != domain.ReasonMissingPhoto {
		t.Errorf("got %+v", d)
	}
	if len(muts) != 1 || muts[0].Op != domain.OpReply || muts[0].Text == "" {
		t.Errorf("expected one reply mutation, got %+v", muts)
	}
}

func TestDecide_IllegalSymbolRejects(t *testing.T) {
	in := validInput()
	in.Post.FlaggedIllegal = true

	d, _ := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomeReject || d.Reason != domain.ReasonIllegalSymbol {
		t.Errorf("got %+v", d)
	}
}

func TestDecide_AmbiguousLocationNeedsInfo(t *testing.T) {
	in := validInput()
	in.Post.Location = nil
	in.Post.AmbiguousLocation = true
	in.Verdict = domain.Validate(in.Post)
	in.Location = nil

	d, _ := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomeNeedsInfo || d.Reason != domain.ReasonAmbiguousLocation {
		t.Errorf("got %+v", d)
	}
}

func TestDecide_NormalizationErrors(t *testing.T) {
	in := validInput()
	in.Location = nil
	in.NormErr = domain.NewNormalizeError("99.9, 200.1", domain.ErrOutsideBounds)
	d, _ := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomeReject || d.Reason != domain.ReasonOutsideBounds {
		t.Errorf("outside bounds: got %+v", d)
	}

	in.NormErr = domain.NewNormalizeError("Nowhere", domain.ErrUnresolvable)
	d, _ = Engine{}.Decide(in)
	if d.Outcome != domain.OutcomeNeedsInfo || d.Reason != domain.ReasonUnresolvable {
		t.Errorf("unresolvable: got %+v", d)
	}
}

func TestDecide_UnconfirmedGoesPending(t *testing.T) {
	in := validInput()
	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomePending {
		t.Errorf("outcome = %s", d.Outcome)
	}
	if len(muts) != 1 || muts[0].Op != domain.OpReply {
		t.Errorf("pending must reply, got %+v", mutationOps(muts))
	}
}

func TestDecide_ConfirmedNewSpotPublishes(t *testing.T) {
	in := validInput()
	in.Post.ReviewerApproved = true

	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomePublish {
		t.Fatalf("outcome = %s", d.Outcome)
	}
	if len(muts) != 1 || muts[0].Op != domain.OpCreate {
		t.Fatalf("ops = %v", mutationOps(muts))
	}
	spot := muts[0].Spot
	if spot.Status != domain.StatusPresent || spot.SeenCount != 1 {
		t.Errorf("new spot %+v", spot)
	}
	if spot.FirstSeen != seen || spot.LastSeen != seen {
		t.Errorf("dataset times must come from the post, got %v/%v", spot.FirstSeen, spot.LastSeen)
	}
	if spot.ID != SpotID(in.Post.SourceURL) {
		t.Errorf("spot ID must derive from the source URL")
	}
	if !spot.NeedsVerification {
		t.Error("unknown entity must flag the spot for verification")
	}
}

func TestDecide_ConfirmedMatchConfirmsExisting(t *testing.T) {
	in := validInput()
	in.Post.ReviewerApproved = true
	in.Matched = &domain.Report{ID: "spot-1", Status: domain.StatusPresent}

	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomePublish {
		t.Fatalf("outcome = %s", d.Outcome)
	}
	if len(muts) != 1 || muts[0].Op != domain.OpConfirm || muts[0].SpotID != "spot-1" {
		t.Errorf("got %+v", muts)
	}
	if muts[0].Spot.LastSeen != seen {
		t.Errorf("confirm must carry the new lastSeen")
	}
}

func TestDecide_ReprocessedPostIsANoop(t *testing.T) {
	in := validInput()
	in.Post.ReviewerApproved = true
	in.Matched = &domain.Report{
		ID:        SpotID(in.Post.SourceURL),
		Status:    domain.StatusPresent,
		SourceURL: in.Post.SourceURL,
	}

	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomePublish {
		t.Errorf("outcome = %s", d.Outcome)
	}
	if len(muts) != 0 {
		t.Errorf("re-processing the same post must not mutate: %v", mutationOps(muts))
	}
}

func TestDecide_ReconfirmingPostIsANoop(t *testing.T) {
	in := validInput()
	in.Post.ReviewerApproved = true
	// The post confirmed this spot by proximity on an earlier pass; its
	// URL is in the spot's contributing sources, not SourceURL.
	in.Matched = &domain.Report{
		ID:        "spot-1",
		Status:    domain.StatusPresent,
		SourceURL: "https://example.social/@someone/0",
		Sources:   []string{in.Post.SourceURL},
	}

	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomePublish {
		t.Errorf("outcome = %s", d.Outcome)
	}
	if len(muts) != 0 {
		t.Errorf("a post that already confirmed the spot must not confirm again: %v", mutationOps(muts))
	}
}

func TestDecide_ConfirmCarriesContributingSource(t *testing.T) {
	in := validInput()
	in.Post.ReviewerApproved = true
	in.Matched = &domain.Report{ID: "spot-1", Status: domain.StatusPresent}

	_, muts := Engine{}.Decide(in)
	if len(muts) != 1 || muts[0].Spot.SourceURL != in.Post.SourceURL {
		t.Errorf("confirm must name its post for the source ledger: %+v", muts)
	}
}

func TestDecide_FutureRemoteTimestampClamped(t *testing.T) {
	now := seen.Add(24 * time.Hour)
	in := validInput()
	in.Post.ReviewerApproved = true
	in.Post.CreatedAtRemote = now.Add(48 * time.Hour)
	in.Now = now

	_, muts := Engine{}.Decide(in)
	spot := muts[0].Spot
	if spot.FirstSeen != now || spot.LastSeen != now {
		t.Errorf("forged future timestamp must clamp to the clock, got %v/%v", spot.FirstSeen, spot.LastSeen)
	}

	in.Matched = &domain.Report{ID: "spot-1", Status: domain.StatusPresent}
	_, muts = Engine{}.Decide(in)
	if muts[0].Spot.LastSeen != now {
		t.Errorf("confirm lastSeen = %v, want clamped %v", muts[0].Spot.LastSeen, now)
	}
}

func TestDecide_RemovedSpotGetsFreshInstance(t *testing.T) {
	in := validInput()
	in.Post.ReviewerApproved = true
	in.Matched = &domain.Report{ID: "spot-old", Status: domain.StatusRemoved}

	_, muts := Engine{}.Decide(in)
	if len(muts) != 1 || muts[0].Op != domain.OpCreate {
		t.Fatalf("re-seen removed spot must create a fresh instance, got %v", mutationOps(muts))
	}
	if muts[0].Spot.ID == "spot-old" {
		t.Error("fresh instance must not reuse the removed spot's ID")
	}
}

func TestDecide_TrustedRemoval(t *testing.T) {
	in := validInput()
	in.Post.Removal = true
	in.TrustedAuthor = true
	in.Matched = &domain.Report{ID: "spot-1", Status: domain.StatusPresent}

	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomePublish {
		t.Fatalf("outcome = %s", d.Outcome)
	}
	ops := mutationOps(muts)
	if len(ops) != 2 || ops[0] != domain.OpRemove || ops[1] != domain.OpReply {
		t.Errorf("ops = %v", ops)
	}
}

func TestDecide_RemovalWithoutMatch(t *testing.T) {
	in := validInput()
	in.Post.Removal = true
	in.TrustedAuthor = true

	d, _ := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomeNeedsInfo || d.Reason != domain.ReasonNoMatchingSpot {
		t.Errorf("got %+v", d)
	}
}

func TestDecide_UntrustedRemovalPends(t *testing.T) {
	in := validInput()
	in.Post.Removal = true
	in.Matched = &domain.Report{ID: "spot-1", Status: domain.StatusPresent}

	d, muts := Engine{}.Decide(in)
	if d.Outcome != domain.OutcomePending {
		t.Errorf("outcome = %s", d.Outcome)
	}
	for _, m := range muts {
		if m.Op == domain.OpRemove {
			t.Error("untrusted removal must not touch the store")
		}
	}
}

func TestSweepStale(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	e := Engine{StaleWindow: 30 * 24 * time.Hour}
	view := []domain.Report{
		{ID: "old", Status: domain.StatusPresent, LastSeen: now.Add(-31 * 24 * time.Hour)},
		{ID: "fresh", Status: domain.StatusPresent, LastSeen: now.Add(-5 * 24 * time.Hour)},
		{ID: "edge", Status: domain.StatusPresent, LastSeen: now.Add(-30 * 24 * time.Hour)},
		{ID: "gone", Status: domain.StatusRemoved, LastSeen: now.Add(-90 * 24 * time.Hour)},
	}

	muts := e.SweepStale(view, now)
	if len(muts) != 1 || muts[0].SpotID != "old" || muts[0].Op != domain.OpStale {
		t.Errorf("got %+v", muts)
	}
}

func TestSpotIDDeterministic(t *testing.T) {
	a := SpotID("https://example.social/@a1/1")
	b := SpotID("https://example.social/@a1/1")
	if a != b {
		t.Error("same URL must yield the same ID")
	}
	if a == SpotID("https://example.social/@a1/2") {
		t.Error("different URLs must yield different IDs")
	}
}
