// Package geocode implements the engine's Geocoder and AnchorSource
// interfaces against the public Nominatim and Overpass services. Both are
// shared community infrastructure: every call goes through a politeness
// rate limiter, and Overpass endpoints sit behind circuit breakers with
// failover.
package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/propwatch/propwatch/engine/geo"
	"github.com/propwatch/propwatch/pkg/fn"
	"github.com/propwatch/propwatch/pkg/metrics"
	"github.com/propwatch/propwatch/pkg/resilience"
)

// Nominatim resolves textual queries to coordinates.
type Nominatim struct {
	client  *resty.Client
	limiter *resilience.Limiter
	retry   fn.RetryOpts
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewNominatim builds a geocoder client for the given base URL. The
// user agent identifies us to the service operators, per usage policy.
func NewNominatim(baseURL, userAgent string, m *metrics.Metrics, log *slog.Logger) *Nominatim {
	if log == nil {
		log = slog.Default()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", userAgent).
		SetTimeout(15 * time.Second)
	return &Nominatim{
		client:  client,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: 1, Burst: 1}),
		retry:   fn.DefaultRetry,
		log:     log,
		metrics: m,
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves a query to a coordinate. ok is false when the service
// found nothing; transport and server errors are returned as errors.
func (n *Nominatim) Geocode(ctx context.Context, query string) (geo.LatLon, bool, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return geo.LatLon{}, false, err
	}

	// Transient transport and server failures retry with backoff; a clean
	// empty answer never does.
	res := fn.Retry(ctx, n.retry, func(ctx context.Context) fn.Result[[]nominatimResult] {
		var results []nominatimResult
		resp, err := n.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":      query,
				"format": "jsonv2",
				"limit":  "1",
			}).
			SetResult(&results).
			Get("/search")
		if err != nil {
			return fn.Errf[[]nominatimResult]("geocode %q: %w", query, err)
		}
		if resp.IsError() {
			return fn.Errf[[]nominatimResult]("geocode %q: status %d", query, resp.StatusCode())
		}
		return fn.Ok(results)
	})
	results, err := res.Unwrap()
	if err != nil {
		n.count("error")
		return geo.LatLon{}, false, err
	}
	if len(results) == 0 {
		n.count("miss")
		n.log.Debug("geocode miss", "query", query)
		return geo.LatLon{}, false, nil
	}

	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		n.count("error")
		return geo.LatLon{}, false, fmt.Errorf("geocode %q: malformed coordinates in response", query)
	}
	n.count("resolved")
	return geo.LatLon{Lat: lat, Lon: lon}, true, nil
}

func (n *Nominatim) count(result string) {
	if n.metrics != nil {
		n.metrics.GeocodeLookups.WithLabelValues(result).Inc()
	}
}
