// Package metrics is a small Prometheus-text collector for the relay.
// It renders the exposition format directly instead of pulling in
// prometheus/client_golang.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide collector served on /metrics.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters and histograms.
type MetricsCollector struct {
	counters   sync.Map // name{labels} -> *Counter
	histograms sync.Map // name{labels} -> *Histogram
	startTime  time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	buckets []histBucket
}

type histBucket struct {
	le    float64
	count int64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i := range h.buckets {
		if v <= h.buckets[i].le {
			h.buckets[i].count++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns or creates the counter for name and label set.
// labels is a rendered label list such as `platform="discord"`.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	actual, _ := c.counters.LoadOrStore(key, &Counter{name: name, help: help, labels: labels})
	return actual.(*Counter)
}

// Histogram returns or creates the histogram for name and label set.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := name + "{" + labels + "}"
	if v, ok := c.histograms.Load(key); ok {
		return v.(*Histogram)
	}
	bs := append([]float64(nil), buckets...)
	sort.Float64s(bs)
	hb := make([]histBucket, len(bs))
	for i, b := range bs {
		hb[i] = histBucket{le: b}
	}
	actual, _ := c.histograms.LoadOrStore(key, &Histogram{name: name, help: help, labels: labels, buckets: hb})
	return actual.(*Histogram)
}

// Render writes all series in Prometheus text format, sorted by series key.
func (c *MetricsCollector) Render() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP psi09_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE psi09_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "psi09_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	var counters []*Counter
	c.counters.Range(func(_, value any) bool {
		counters = append(counters, value.(*Counter))
		return true
	})
	sort.Slice(counters, func(i, j int) bool {
		if counters[i].name != counters[j].name {
			return counters[i].name < counters[j].name
		}
		return counters[i].labels < counters[j].labels
	})
	written := make(map[string]bool)
	for _, ctr := range counters {
		if !written[ctr.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", ctr.name, ctr.help, ctr.name)
			written[ctr.name] = true
		}
		fmt.Fprintf(&sb, "%s %d\n", series(ctr.name, ctr.labels), ctr.Value())
	}

	var hists []*Histogram
	c.histograms.Range(func(_, value any) bool {
		hists = append(hists, value.(*Histogram))
		return true
	})
	sort.Slice(hists, func(i, j int) bool { return hists[i].name+hists[i].labels < hists[j].name+hists[j].labels })
	for _, h := range hists {
		h.mu.Lock()
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
		for _, b := range h.buckets {
			le := fmt.Sprintf("%g", b.le)
			if math.IsInf(b.le, 1) {
				le = "+Inf"
			}
			fmt.Fprintf(&sb, "%s %d\n", series(h.name+"_bucket", joinLabels(h.labels, `le="`+le+`"`)), b.count)
		}
		fmt.Fprintf(&sb, "%s %d\n", series(h.name+"_count", h.labels), h.count)
		fmt.Fprintf(&sb, "%s %f\n", series(h.name+"_sum", h.labels), h.sum)
		h.mu.Unlock()
	}

	return sb.String()
}

// Handler serves Render as text/plain.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, c.Render())
	}
}

func series(name, labels string) string {
	if labels == "" {
		return name
	}
	return name + "{" + labels + "}"
}

func joinLabels(a, b string) string {
	if a == "" {
		return b
	}
	return a + "," + b
}

// Relay series.

var (
	ReplyFallbacks = Collector.Counter("psi09_reply_fallbacks_total", "Replies delivered through the plain-send fallback", "")
	BackendLatency = Collector.Histogram("psi09_backend_latency_seconds", "Backend relay latency in seconds", "",
		[]float64{0.25, 0.5, 1, 2, 5, 10, 20})
)

// MessageReceived counts an inbound message by platform and mode (active|passive).
func MessageReceived(platform string, active bool) {
	mode := "passive"
	if active {
		mode = "active"
	}
	Collector.Counter("psi09_messages_total", "Inbound chat messages handled",
		fmt.Sprintf(`platform=%q,mode=%q`, platform, mode)).Inc()
}

// RelayOutcome counts a terminal relay outcome.
func RelayOutcome(outcome string) {
	Collector.Counter("psi09_relay_outcomes_total", "Terminal relay outcomes",
		fmt.Sprintf(`outcome=%q`, outcome)).Inc()
}

// BackendError counts a failed backend call by kind (status|transport|timeout|decode).
func BackendError(kind string) {
	Collector.Counter("psi09_backend_errors_total", "Failed backend relay calls",
		fmt.Sprintf(`kind=%q`, kind)).Inc()
}
