// Package pipeline orchestrates one ingestion pass: parse, validate,
// normalize, resolve, match, decide — per post, in stable input order.
// The pass is pure with respect to the dataset: it reads the caller's view
// and returns counters plus an ordered mutation list.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/propwatch/propwatch/engine/decide"
	"github.com/propwatch/propwatch/engine/domain"
	"github.com/propwatch/propwatch/engine/entity"
	"github.com/propwatch/propwatch/engine/geo"
	"github.com/propwatch/propwatch/engine/match"
	"github.com/propwatch/propwatch/engine/parse"
	"github.com/propwatch/propwatch/pkg/fn"
	"github.com/propwatch/propwatch/pkg/metrics"
)

// Pipeline wires the pure stages together. Now is injected so passes are
// reproducible in tests; it defaults to time.Now.
type Pipeline struct {
	Parser     parse.Parser
	Normalizer geo.Normalizer
	Registry   *entity.Registry
	Matcher    match.Matcher
	Engine     decide.Engine
	// Trusted authors may confirm removals without reviewer approval.
	Trusted map[string]bool
	Metrics *metrics.Metrics
	Log     *slog.Logger
	Now     func() time.Time
}

// analysis accumulates per-post stage output.
type analysis struct {
	post    domain.ParsedPost
	verdict domain.Verdict
	loc     *domain.NormalizedLocation
	normErr error
	entity  domain.EntityRef
	matched *domain.Report
}

// ProcessBatch runs one pass over posts against the given dataset view.
// A spot created earlier in the batch is visible to later posts; the
// caller's view is never mutated. The staleness sweep runs after the
// batch, against the overlay the batch produced.
func (p *Pipeline) ProcessBatch(ctx context.Context, posts []domain.RawPost, view []domain.Report) domain.PipelineResult {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	start := now()

	overlay := make([]domain.Report, len(view), len(view)+len(posts))
	copy(overlay, view)

	stage := p.postStage(&overlay, now)

	var result domain.PipelineResult
	for _, raw := range posts {
		result.Ingested++
		r := stage(ctx, raw)
		if r.IsErr() {
			// Transient collaborator failure; the post stays in the feed
			// and is retried on the next pass.
			_, err := r.Unwrap()
			log.Warn("post skipped this pass", "post_id", raw.ID, "error", err)
			continue
		}
		out, _ := r.Unwrap()
		result.Count(out.decision.Outcome)
		result.Mutations = append(result.Mutations, out.mutations...)
		p.recordDecision(out)
	}

	for _, m := range p.Engine.SweepStale(overlay, now()) {
		result.Mutations = append(result.Mutations, m)
	}

	if p.Metrics != nil {
		p.Metrics.BatchDuration.Observe(now().Sub(start).Seconds())
	}
	return result
}

// decided is the final per-post stage output.
type decided struct {
	analysis  analysis
	decision  domain.Decision
	mutations []domain.Mutation
}

// postStage builds the composed per-post stage chain. The overlay pointer
// lets the match stage see spots created earlier in the same batch.
func (p *Pipeline) postStage(overlay *[]domain.Report, now func() time.Time) fn.Stage[domain.RawPost, decided] {
	parseStage := fn.TracedStage("parse", fn.MapStage(func(raw domain.RawPost) analysis {
		return analysis{post: p.Parser.Parse(raw)}
	}))

	validateStage := fn.TracedStage("validate", fn.MapStage(func(a analysis) analysis {
		a.verdict = domain.Validate(a.post)
		return a
	}))

	normalizeStage := fn.TracedStage("normalize", p.normalize)

	resolveStage := fn.TracedStage("resolve", fn.MapStage(func(a analysis) analysis {
		a.entity = p.Registry.Resolve(a.post.FreeTextCategory)
		return a
	}))

	matchStage := fn.TracedStage("match", fn.MapStage(func(a analysis) analysis {
		if a.loc == nil {
			// No coordinate to match on; removal posts may still match by URL.
			if a.post.SourceURL != "" {
				if m, ok := p.Matcher.Match(domain.NormalizedLocation{}, a.post.Kind, a.post.SourceURL, *overlay); ok && m.HasSource(a.post.SourceURL) {
					a.matched = &m
				}
			}
			return a
		}
		if m, ok := p.Matcher.Match(*a.loc, a.post.Kind, a.post.SourceURL, *overlay); ok {
			a.matched = &m
		}
		return a
	}))

	decideStage := fn.TracedStage("decide", fn.MapStage(func(a analysis) decided {
		d, muts := p.Engine.Decide(decide.Input{
			Post:          a.post,
			Verdict:       a.verdict,
			Location:      a.loc,
			NormErr:       a.normErr,
			Entity:        a.entity,
			Matched:       a.matched,
			TrustedAuthor: p.Trusted[a.post.AuthorID],
			Now:           now(),
		})
		for _, m := range muts {
			switch {
			case m.Op == domain.OpCreate && m.Spot != nil:
				*overlay = append(*overlay, *m.Spot)
			case m.Op == domain.OpConfirm && m.Spot != nil && m.Spot.SourceURL != "":
				// Keep the overlay's source ledger current so a duplicate
				// post later in the same batch is a no-op too.
				for i := range *overlay {
					if (*overlay)[i].ID == m.SpotID {
						(*overlay)[i].Sources = append((*overlay)[i].Sources, m.Spot.SourceURL)
						break
					}
				}
			}
		}
		return decided{analysis: a, decision: d, mutations: muts}
	}))

	return fn.Then(fn.Then(fn.Then(fn.Then(fn.Then(
		parseStage, validateStage), normalizeStage), resolveStage), matchStage), decideStage)
}

// normalize resolves the post's location expression. Expected failures
// (out of bounds, unresolvable, ambiguous) ride along in the analysis for
// the decision stage; transport failures abort the post's chain.
func (p *Pipeline) normalize(ctx context.Context, a analysis) fn.Result[analysis] {
	if !a.verdict.OK || a.post.Location == nil {
		return fn.Ok(a)
	}
	loc, err := p.Normalizer.Normalize(ctx, *a.post.Location)
	if err != nil {
		var ne *domain.NormalizeError
		if errors.As(err, &ne) {
			a.normErr = err
			return fn.Ok(a)
		}
		return fn.Err[analysis](err)
	}
	a.loc = &loc
	if p.Metrics != nil {
		p.Metrics.Snaps.WithLabelValues(string(loc.Snap)).Inc()
	}
	return fn.Ok(a)
}

func (p *Pipeline) recordDecision(out decided) {
	if p.Metrics == nil {
		return
	}
	p.Metrics.Decisions.WithLabelValues(string(out.decision.Outcome)).Inc()
}
