package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_GetOrCreate(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("x_total", "x", `k="v"`)
	b := c.Counter("x_total", "x", `k="v"`)
	if a != b {
		t.Fatal("same name and labels should return the same counter")
	}
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Errorf("expected 3, got %d", a.Value())
	}
	if c.Counter("x_total", "x", `k="w"`) == a {
		t.Error("different labels should be a different series")
	}
}

func TestHistogram_Buckets(t *testing.T) {
	c := NewMetricsCollector()
	h := c.Histogram("lat_seconds", "lat", "", []float64{5, 1})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(10)

	out := c.Render()
	for _, want := range []string{
		`lat_seconds_bucket{le="1"} 1`,
		`lat_seconds_bucket{le="5"} 2`,
		`lat_seconds_count 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q\n%s", want, out)
		}
	}
}

func TestRender_LabelledSeries(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("psi09_relay_outcomes_total", "outcomes", `outcome="replied"`).Inc()
	c.Counter("psi09_relay_outcomes_total", "outcomes", `outcome="errored"`).Add(2)

	out := c.Render()
	if strings.Count(out, "# TYPE psi09_relay_outcomes_total counter") != 1 {
		t.Errorf("TYPE line should be written once\n%s", out)
	}
	if !strings.Contains(out, `psi09_relay_outcomes_total{outcome="errored"} 2`) {
		t.Errorf("missing errored series\n%s", out)
	}
	if strings.Index(out, `outcome="errored"`) > strings.Index(out, `outcome="replied"`) {
		t.Error("series should be sorted by labels")
	}
}

func TestHandler_ContentType(t *testing.T) {
	c := NewMetricsCollector()
	rr := httptest.NewRecorder()
	c.Handler()(rr, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "psi09_uptime_seconds") {
		t.Error("uptime gauge missing")
	}
}

func TestRelayHelpers(t *testing.T) {
	MessageReceived("discord", true)
	RelayOutcome("replied")
	BackendError("status")

	out := Collector.Render()
	for _, want := range []string{
		`psi09_messages_total{platform="discord",mode="active"}`,
		`psi09_relay_outcomes_total{outcome="replied"}`,
		`psi09_backend_errors_total{kind="status"}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q", want)
		}
	}
}
