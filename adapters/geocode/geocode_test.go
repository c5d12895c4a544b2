package geocode

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/propwatch/propwatch/engine/geo"
	"github.com/propwatch/propwatch/pkg/fn"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestNominatimGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "Hauptstraße 5, Berlin" {
			t.Errorf("q = %q", got)
		}
		if r.URL.Query().Get("format") != "jsonv2" {
			t.Error("format param missing")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"52.5108","lon":"13.3989"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, "propwatch-test/1.0", nil, discard())
	at, ok, err := n.Geocode(context.Background(), "Hauptstraße 5, Berlin")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if at.Lat != 52.5108 || at.Lon != 13.3989 {
		t.Errorf("got %+v", at)
	}
}

func TestNominatimMissIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, "propwatch-test/1.0", nil, discard())
	_, ok, err := n.Geocode(context.Background(), "Nowhere, Atlantis")
	if err != nil || ok {
		t.Errorf("ok=%v err=%v", ok, err)
	}
}

func TestNominatimServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, "propwatch-test/1.0", nil, discard())
	n.retry = fastRetry
	if _, _, err := n.Geocode(context.Background(), "anything"); err == nil {
		t.Error("expected error")
	}
}

var fastRetry = fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

func TestNominatimRetriesTransientServerError(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"52.5108","lon":"13.3989"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, "propwatch-test/1.0", nil, discard())
	n.retry = fastRetry
	at, ok, err := n.Geocode(context.Background(), "Hauptstraße 5, Berlin")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if hits != 2 {
		t.Errorf("requests = %d, want a single retry", hits)
	}
	if at.Lat != 52.5108 {
		t.Errorf("got %+v", at)
	}
}

const waysJSON = `{"elements":[
  {"type":"way","tags":{"highway":"footway"},"geometry":[{"lat":52.5201,"lon":13.4040},{"lat":52.5201,"lon":13.4060}]},
  {"type":"way","tags":{"highway":"residential"},"geometry":[{"lat":52.5203,"lon":13.4040},{"lat":52.5203,"lon":13.4060}]}
]}`

func TestOverpassWays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("data") == "" {
			t.Error("expected form-encoded query in data field")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(waysJSON))
	}))
	defer srv.Close()

	o := NewOverpass([]string{srv.URL}, "propwatch-test/1.0", discard())
	ways, err := o.Ways(context.Background(), geo.LatLon{Lat: 52.52, Lon: 13.405}, 120, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ways) != 2 {
		t.Fatalf("ways = %d", len(ways))
	}
	if !ways[0].Walkable || ways[1].Walkable {
		t.Errorf("walkable classification: %+v", ways)
	}
	if len(ways[0].Points) != 2 {
		t.Errorf("geometry lost: %+v", ways[0])
	}
}

func TestOverpassPOIs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elements":[
  {"type":"node","lat":52.5201,"lon":13.4051,"tags":{"amenity":"bench"}},
  {"type":"node","lat":52.5202,"lon":13.4052,"tags":{"highway":"street_lamp"}},
  {"type":"node","lat":52.5203,"lon":13.4053,"tags":{"amenity":"fountain"}}
]}`))
	}))
	defer srv.Close()

	o := NewOverpass([]string{srv.URL}, "propwatch-test/1.0", discard())
	pois, err := o.POIs(context.Background(), geo.LatLon{Lat: 52.52, Lon: 13.405}, 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(pois) != 2 {
		t.Fatalf("pois = %+v", pois)
	}
	if pois[0].Kind != geo.POIBench || pois[1].Kind != geo.POILamp {
		t.Errorf("kinds = %v, %v", pois[0].Kind, pois[1].Kind)
	}
}

func TestOverpassFailover(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elements":[{"type":"way","tags":{"building":"yes"}}]}`))
	}))
	defer good.Close()

	o := NewOverpass([]string{bad.URL, good.URL}, "propwatch-test/1.0", discard())
	near, err := o.BuildingNearby(context.Background(), geo.LatLon{Lat: 52.52, Lon: 13.405}, 6)
	if err != nil {
		t.Fatal(err)
	}
	if !near {
		t.Error("failover endpoint's answer was lost")
	}
}

func TestOverpassAllEndpointsDown(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer bad.Close()

	o := NewOverpass([]string{bad.URL}, "propwatch-test/1.0", discard())
	if _, err := o.BuildingNearby(context.Background(), geo.LatLon{Lat: 52.52, Lon: 13.405}, 6); err == nil {
		t.Error("expected error")
	}
}
