package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	r := New()
	c := r.Counter("jobs_total", "Jobs processed")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Fatalf("counter = %d", c.Value())
	}

	g := r.Gauge("queue_depth", "Jobs waiting")
	g.Set(3)
	g.Inc()
	g.Dec()
	if g.Value() != 3 {
		t.Fatalf("gauge = %d", g.Value())
	}

	// Same name returns the same metric.
	if r.Counter("jobs_total", "") != c {
		t.Fatal("counter not deduplicated by name")
	}
}

func TestLabeled(t *testing.T) {
	if got := Labeled("hits_total", "collection", "code"); got != `hits_total{collection="code"}` {
		t.Fatalf("Labeled = %q", got)
	}
	if got := Labeled("plain"); got != "plain" {
		t.Fatalf("Labeled no-pairs = %q", got)
	}
	if got := Labeled("odd", "k"); got != "odd" {
		t.Fatalf("Labeled odd-pairs = %q", got)
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(Labeled("hits_total", "collection", "code"), "Hits").Add(7)
	r.Counter(Labeled("hits_total", "collection", "issue"), "").Add(2)
	r.Gauge("depth", "Depth").Set(1)

	out := r.Render()
	for _, want := range []string{
		"# HELP hits_total Hits",
		"# TYPE hits_total counter",
		`hits_total{collection="code"} 7`,
		`hits_total{collection="issue"} 2`,
		"# TYPE depth gauge",
		"depth 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q in:\n%s", want, out)
		}
	}
	// One family header even with two label series.
	if strings.Count(out, "# TYPE hits_total") != 1 {
		t.Fatal("family header duplicated")
	}
}

func TestHistogramRender(t *testing.T) {
	r := New()
	h := r.Histogram("latency_seconds", "Latency", []float64{1, 5})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(10)

	out := r.Render()
	for _, want := range []string{
		"# TYPE latency_seconds histogram",
		`latency_seconds_bucket{le="1"} 1`,
		`latency_seconds_bucket{le="5"} 2`,
		`latency_seconds_bucket{le="+Inf"} 3`,
		"latency_seconds_sum 13.5",
		"latency_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q in:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("x_total", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "x_total 1") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}
