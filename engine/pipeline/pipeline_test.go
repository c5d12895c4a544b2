package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/propwatch/propwatch/engine/decide"
	"github.com/propwatch/propwatch/engine/domain"
	"github.com/propwatch/propwatch/engine/entity"
	"github.com/propwatch/propwatch/engine/geo"
	"github.com/propwatch/propwatch/engine/match"
	"github.com/propwatch/propwatch/engine/parse"
	"github.com/propwatch/propwatch/engine/store"
)

var frozenNow = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
var posted = frozenNow.Add(-2 * time.Hour)

func newPipeline() *Pipeline {
	return &Pipeline{
		Parser: parse.New("heatmap"),
		Normalizer: geo.Normalizer{
			Bounds: geo.Bounds{MinLat: 47, MaxLat: 55.5, MinLon: 5, MaxLon: 16},
		},
		Registry: entity.NewRegistry(entity.Table{}, slog.New(slog.DiscardHandler)),
		Matcher:  match.Matcher{RadiusM: 10},
		Engine:   decide.Engine{},
		Trusted:  map[string]bool{"trusted-1": true},
		Log:      slog.New(slog.DiscardHandler),
		Now:      func() time.Time { return frozenNow },
	}
}

func sighting(id, body string, approved bool) domain.RawPost {
	return domain.RawPost{
		ID:               id,
		AuthorID:         "author-" + id,
		URL:              "https://example.social/@author/" + id,
		Body:             body,
		AttachmentCount:  1,
		Media:            []string{"https://files.example/" + id + ".jpg"},
		MentionTargets:   []string{"heatmap@example.social"},
		CreatedAtRemote:  posted,
		ReviewerApproved: approved,
	}
}

func TestProcessBatch_PendingScenario(t *testing.T) {
	p := newPipeline()
	posts := []domain.RawPost{sighting("1", "52.5200, 13.4050 #sticker_report", false)}

	res := p.ProcessBatch(context.Background(), posts, nil)
	if res.Ingested != 1 || res.Pending != 1 || res.Published != 0 {
		t.Fatalf("counters: %+v", res)
	}
	if len(res.Mutations) != 1 || res.Mutations[0].Op != domain.OpReply {
		t.Errorf("pending must only reply, got %+v", res.Mutations)
	}
}

func TestProcessBatch_RejectScenario(t *testing.T) {
	p := newPipeline()
	post := sighting("1", "52.5200, 13.4050 #sticker_report", false)
	post.AttachmentCount = 0

	res := p.ProcessBatch(context.Background(), []domain.RawPost{post}, nil)
	if res.Rejected != 1 {
		t.Fatalf("counters: %+v", res)
	}
}

func TestProcessBatch_PublishCreatesSpot(t *testing.T) {
	p := newPipeline()
	posts := []domain.RawPost{sighting("1", "52.5200, 13.4050 #sticker_report", true)}

	res := p.ProcessBatch(context.Background(), posts, nil)
	if res.Published != 1 {
		t.Fatalf("counters: %+v", res)
	}
	if len(res.Mutations) != 1 || res.Mutations[0].Op != domain.OpCreate {
		t.Fatalf("mutations: %+v", res.Mutations)
	}
	spot := res.Mutations[0].Spot
	if spot.Kind != domain.KindSticker || spot.Status != domain.StatusPresent || spot.SeenCount != 1 {
		t.Errorf("spot: %+v", spot)
	}
	if spot.Location.AccuracyM != 10 {
		t.Errorf("accuracy = %d, want 10 for full-precision GPS", spot.Location.AccuracyM)
	}
}

func TestProcessBatch_OverlayMatchesWithinBatch(t *testing.T) {
	p := newPipeline()
	posts := []domain.RawPost{
		sighting("1", "52.5200, 13.4050 #sticker_report", true),
		sighting("2", "52.5200, 13.4050 #sticker_report", true),
	}

	res := p.ProcessBatch(context.Background(), posts, nil)
	if res.Published != 2 {
		t.Fatalf("counters: %+v", res)
	}
	if len(res.Mutations) != 2 {
		t.Fatalf("mutations: %+v", res.Mutations)
	}
	if res.Mutations[0].Op != domain.OpCreate || res.Mutations[1].Op != domain.OpConfirm {
		t.Errorf("second post must confirm the first's spot: %v %v",
			res.Mutations[0].Op, res.Mutations[1].Op)
	}
	if res.Mutations[1].SpotID != res.Mutations[0].Spot.ID {
		t.Error("confirm must target the spot created earlier in the batch")
	}
}

func TestProcessBatch_IdempotentAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "spots.geojson"), filepath.Join(dir, "state.json"),
		slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}

	p := newPipeline()
	posts := []domain.RawPost{
		sighting("1", "52.5200, 13.4050 #sticker_report", true),
		sighting("2", "Hauptstraße 5, Berlin #graffiti_report", true),
	}
	// Post 2 has a textual location and no geocoder is wired, so it lands
	// on needs_info; its reply must still go out only once.
	first := p.ProcessBatch(context.Background(), posts, st.View())
	st.Apply(first.Mutations)

	second := p.ProcessBatch(context.Background(), posts, st.View())
	st.Apply(second.Mutations)

	if first.Published != second.Published || first.Ingested != second.Ingested {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
	if st.Len() != 1 {
		t.Errorf("re-run created duplicate spots: %d", st.Len())
	}
	for _, s := range st.View() {
		if s.SeenCount != 1 {
			t.Errorf("re-run inflated seen_count: %d", s.SeenCount)
		}
	}
}

func TestProcessBatch_ReappliedProximityConfirmIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "spots.geojson"), filepath.Join(dir, "state.json"),
		slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}

	p := newPipeline()
	// Two distinct posts at the same coordinate: the second confirms the
	// first's spot by proximity, not by URL.
	posts := []domain.RawPost{
		sighting("1", "52.5200, 13.4050 #sticker_report", true),
		sighting("2", "52.5200, 13.4050 #sticker_report", true),
	}

	first := p.ProcessBatch(context.Background(), posts, st.View())
	st.Apply(first.Mutations)
	if len(first.Mutations) != 2 {
		t.Fatalf("first run mutations: %+v", first.Mutations)
	}

	second := p.ProcessBatch(context.Background(), posts, st.View())
	st.Apply(second.Mutations)
	third := p.ProcessBatch(context.Background(), posts, st.View())
	st.Apply(third.Mutations)

	if len(second.Mutations) != 0 || len(third.Mutations) != 0 {
		t.Errorf("re-running an applied batch must not mutate: %v then %v",
			second.Mutations, third.Mutations)
	}
	if second.Published != third.Published || second.Ingested != third.Ingested {
		t.Errorf("re-runs differ: %+v vs %+v", second, third)
	}
	if st.Len() != 1 {
		t.Fatalf("spots = %d", st.Len())
	}
	if got := st.View()[0].SeenCount; got != 2 {
		t.Errorf("seen_count = %d, want 2 however often the batch is re-applied", got)
	}
}

func TestProcessBatch_RemovalByTrustedAuthor(t *testing.T) {
	p := newPipeline()
	existing := domain.Report{
		ID:        "spot-1",
		Kind:      domain.KindSticker,
		Status:    domain.StatusPresent,
		Location:  domain.NormalizedLocation{Lat: 52.52, Lon: 13.405},
		SourceURL: "https://example.social/@author/0",
	}
	post := sighting("9", "52.5200, 13.4050 #sticker_removed", false)
	post.AuthorID = "trusted-1"

	res := p.ProcessBatch(context.Background(), []domain.RawPost{post}, []domain.Report{existing})
	if res.Published != 1 {
		t.Fatalf("counters: %+v", res)
	}
	var ops []domain.MutationOp
	for _, m := range res.Mutations {
		ops = append(ops, m.Op)
	}
	if !reflect.DeepEqual(ops, []domain.MutationOp{domain.OpRemove, domain.OpReply}) {
		t.Errorf("ops = %v", ops)
	}
	if res.Mutations[0].SpotID != "spot-1" {
		t.Errorf("remove targets %q", res.Mutations[0].SpotID)
	}
}

func TestProcessBatch_SweepAppendsStale(t *testing.T) {
	p := newPipeline()
	old := domain.Report{
		ID:       "spot-old",
		Kind:     domain.KindSticker,
		Status:   domain.StatusPresent,
		Location: domain.NormalizedLocation{Lat: 50.0, Lon: 10.0},
		LastSeen: frozenNow.Add(-40 * 24 * time.Hour),
	}

	res := p.ProcessBatch(context.Background(), nil, []domain.Report{old})
	if len(res.Mutations) != 1 || res.Mutations[0].Op != domain.OpStale || res.Mutations[0].SpotID != "spot-old" {
		t.Errorf("mutations = %+v", res.Mutations)
	}
}

func TestProcessBatch_NoMentionIgnored(t *testing.T) {
	p := newPipeline()
	post := sighting("1", "52.5200, 13.4050 #sticker_report", false)
	post.MentionTargets = nil

	res := p.ProcessBatch(context.Background(), []domain.RawPost{post}, nil)
	if res.Ignored != 1 || len(res.Mutations) != 0 {
		t.Errorf("got %+v", res)
	}
}
