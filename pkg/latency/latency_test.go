package latency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"speedtest-cli/pkg/fetch"
)

// scriptedGetter returns the next scripted outcome per call and advances the
// fake clock by the scripted duration.
type scriptedGetter struct {
	clock    *fakeClock
	steps    []step
	calls    []string
	inFlight int
	maxSeen  int
}

type step struct {
	d      time.Duration
	status int
	err    error
}

func (g *scriptedGetter) Get(ctx context.Context, rawURL string) (*fetch.Result, error) {
	g.inFlight++
	if g.inFlight > g.maxSeen {
		g.maxSeen = g.inFlight
	}
	defer func() { g.inFlight-- }()

	s := g.steps[len(g.calls)]
	g.calls = append(g.calls, rawURL)
	g.clock.advance(s.d)
	if s.err != nil {
		return nil, s.err
	}
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	return &fetch.Result{Response: &http.Response{StatusCode: status}, Body: []byte("test=test")}, nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newScriptedProber(steps ...step) (*Prober, *scriptedGetter) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	g := &scriptedGetter{clock: clock, steps: steps}
	p := NewProber(g, nil)
	p.now = clock.now
	return p, g
}

func TestProbeDropsMinimum(t *testing.T) {
	p, g := newScriptedProber(
		step{d: 50 * time.Millisecond},
		step{d: 10 * time.Millisecond},
		step{d: 30 * time.Millisecond},
	)

	got, err := p.Probe(context.Background(), "http://speed.example.net", 3)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if got != 40 {
		t.Errorf("Probe() = %v, want 40", got)
	}
	for _, u := range g.calls {
		if u != "http://speed.example.net/speedtest/latency.txt" {
			t.Errorf("Probe() requested %v", u)
		}
	}
	if g.maxSeen != 1 {
		t.Errorf("Probe() ran %d requests at once, want sequential", g.maxSeen)
	}
}

func TestProbeFailuresBecomeSentinel(t *testing.T) {
	refused := &fetch.TransportError{Method: "GET", URL: "x", Err: errors.New("connection refused")}

	tests := []struct {
		name  string
		steps []step
		want  float64
	}{
		{
			name:  "All transport errors",
			steps: []step{{err: refused}, {err: refused}, {err: refused}, {err: refused}},
			want:  Sentinel,
		},
		{
			name:  "All not found",
			steps: []step{{status: 404}, {status: 404}},
			want:  Sentinel,
		},
		{
			name:  "One failure ranks behind healthy servers",
			steps: []step{{d: 20 * time.Millisecond}, {err: refused}, {d: 20 * time.Millisecond}, {d: 20 * time.Millisecond}},
			want:  (20 + 20 + Sentinel) / 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newScriptedProber(tt.steps...)
			got, err := p.Probe(context.Background(), "http://speed.example.net", len(tt.steps))
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Probe() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbeInvalidSampleCount(t *testing.T) {
	p, g := newScriptedProber()
	for _, n := range []int{-1, 0, 1} {
		if _, err := p.Probe(context.Background(), "http://speed.example.net", n); !errors.Is(err, ErrInvalidSampleCount) {
			t.Errorf("Probe(%d) error = %v, want ErrInvalidSampleCount", n, err)
		}
	}
	if len(g.calls) != 0 {
		t.Errorf("Probe() issued %d requests for an invalid count", len(g.calls))
	}
}

func TestProbeCancelled(t *testing.T) {
	p, _ := newScriptedProber(step{d: time.Millisecond}, step{d: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Probe(ctx, "http://speed.example.net", 2); !errors.Is(err, context.Canceled) {
		t.Errorf("Probe() error = %v, want context.Canceled", err)
	}
}

func TestReduce(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{name: "Minimum not first", samples: []float64{50, 10, 30}, want: 40},
		{name: "Minimum first", samples: []float64{10, 50, 30}, want: 40},
		{name: "Duplicates", samples: []float64{5, 5, 5, 5}, want: 5},
		{name: "Single", samples: []float64{12}, want: 12},
		{name: "Empty", samples: nil, want: Sentinel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]float64(nil), tt.samples...)
			if got := Reduce(in); got != tt.want {
				t.Errorf("Reduce(%v) = %v, want %v", tt.samples, got, tt.want)
			}
			for i := range in {
				if in[i] != tt.samples[i] {
					t.Errorf("Reduce() modified its input: %v", in)
					break
				}
			}
		})
	}
}
