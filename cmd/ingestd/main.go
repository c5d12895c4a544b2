// Command ingestd consumes report batches from NATS, runs each batch
// through the decision pipeline, applies the resulting mutations to the
// public dataset, and answers reporters. It is the single writer of the
// dataset file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/propwatch/propwatch/adapters/geocode"
	"github.com/propwatch/propwatch/adapters/social"
	"github.com/propwatch/propwatch/engine/decide"
	"github.com/propwatch/propwatch/engine/domain"
	"github.com/propwatch/propwatch/engine/entity"
	"github.com/propwatch/propwatch/engine/geo"
	"github.com/propwatch/propwatch/engine/match"
	"github.com/propwatch/propwatch/engine/parse"
	"github.com/propwatch/propwatch/engine/pipeline"
	"github.com/propwatch/propwatch/engine/store"
	"github.com/propwatch/propwatch/pkg/config"
	"github.com/propwatch/propwatch/pkg/metrics"
	"github.com/propwatch/propwatch/pkg/mid"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("ingestd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	st, err := store.Open(cfg.Paths.Dataset, cfg.Paths.State, logger)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	if repaired := st.Normalize(); repaired > 0 {
		logger.Warn("dataset repaired on load", "fields", repaired)
	}
	m.SpotsTracked.Set(float64(st.Len()))

	reg, err := loadRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cache, err := geo.LoadGeocodeCache(cfg.Paths.GeocodeCache)
	if err != nil {
		return fmt.Errorf("geocode cache: %w", err)
	}

	var geocoder geo.Geocoder
	if cfg.Geocode.NominatimURL != "" {
		geocoder = geocode.NewNominatim(cfg.Geocode.NominatimURL, cfg.Geocode.UserAgent, m, logger)
	} else {
		logger.Warn("no geocoder configured, textual locations will not resolve")
	}

	var anchors geo.AnchorSource
	if len(cfg.Geocode.OverpassURLs) > 0 {
		anchors = geocode.NewOverpass(cfg.Geocode.OverpassURLs, cfg.Geocode.UserAgent, logger)
	}

	var poster *social.Client
	if cfg.Social.BaseURL != "" && cfg.Social.Token != "" {
		poster = social.New(cfg.Social.BaseURL, cfg.Social.Token, logger)
		acct, err := poster.VerifyCredentials(ctx)
		if err != nil {
			return fmt.Errorf("social account: %w", err)
		}
		logger.Info("replying as", "acct", acct.Acct)
	} else {
		logger.Warn("no social credentials, replies will be skipped")
	}

	trusted := make(map[string]bool, len(cfg.TrustedAuthors))
	for _, a := range cfg.TrustedAuthors {
		trusted[a] = true
	}

	pipe := &pipeline.Pipeline{
		Parser: parse.New(cfg.Target),
		Normalizer: geo.Normalizer{
			Geocoder: geocoder,
			Snapper:  geo.Snapper{Anchors: anchors},
			Bounds:   cfg.Bounds,
			Cache:    cache,
		},
		Registry: reg,
		Matcher:  match.Matcher{RadiusM: cfg.MatchRadiusM},
		Engine:   decide.Engine{StaleWindow: cfg.StaleWindow()},
		Trusted:  trusted,
		Metrics:  m,
		Log:      logger,
	}

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("propwatch-ingestd"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	handle := func(ctx context.Context, posts []domain.RawPost) {
		res := pipe.ProcessBatch(ctx, posts, st.View())
		replies := st.Apply(res.Mutations)
		sendReplies(ctx, poster, replies, logger)

		if err := st.Save(); err != nil {
			logger.Error("dataset save failed", "error", err)
			return
		}
		if err := cache.Save(); err != nil {
			logger.Error("geocode cache save failed", "error", err)
		}
		m.SpotsTracked.Set(float64(st.Len()))

		logger.Info("batch done",
			"ingested", res.Ingested,
			"published", res.Published,
			"pending", res.Pending,
			"rejected", res.Rejected,
			"needs_info", res.NeedsInfo,
			"ignored", res.Ignored,
		)
		if err := pipeline.PublishResult(ctx, nc, cfg.NATS.ResultSubject, res); err != nil {
			logger.Warn("result publish failed", "error", err)
		}
	}

	sub, err := pipeline.StartConsumer(nc, cfg.NATS.BatchSubject, handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.NATS.BatchSubject, err)
	}
	defer sub.Unsubscribe()
	logger.Info("consuming batches", "subject", cfg.NATS.BatchSubject, "spots", st.Len())

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr: cfg.Admin.Addr,
		Handler: mid.Chain(mux,
			mid.Recover(logger),
			mid.Logger(logger),
			mid.OTel("propwatch-ingestd"),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// loadRegistry builds the entity registry from the graph when Neo4j is
// configured, falling back to the table file otherwise.
func loadRegistry(ctx context.Context, cfg config.Config, logger *slog.Logger) (*entity.Registry, error) {
	var src entity.Source
	if cfg.Neo4j.URI != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URI, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
		if err != nil {
			return nil, fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		if err := driver.VerifyConnectivity(ctx); err != nil {
			return nil, fmt.Errorf("neo4j verify: %w", err)
		}
		src = entity.GraphSource{Driver: driver}
	} else {
		src = entity.FileSource{Path: cfg.Paths.EntityTable}
	}

	table, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("entity table: %w", err)
	}
	reg := entity.NewRegistry(table, logger)
	logger.Info("entity registry loaded", "entities", reg.Len())
	return reg, nil
}

func sendReplies(ctx context.Context, poster *social.Client, replies []domain.Mutation, logger *slog.Logger) {
	if poster == nil {
		if len(replies) > 0 {
			logger.Warn("dropping replies, no social client", "count", len(replies))
		}
		return
	}
	for _, rep := range replies {
		if err := poster.Reply(ctx, rep.PostID, rep.Text); err != nil {
			logger.Warn("reply failed", "post_id", rep.PostID, "error", err)
		}
	}
}
