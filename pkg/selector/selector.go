// Package selector picks the test server to measure against: the candidate
// list is narrowed by great-circle distance, then the nearest few are
// latency-probed and the fastest one wins.
package selector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"speedtest-cli/pkg/discovery"
	"speedtest-cli/pkg/latency"
	"speedtest-cli/pkg/models"
)

// DefaultProbeLimit is how many of the nearest candidates get latency-probed.
const DefaultProbeLimit = 10

// Locator reports the caller's own position.
type Locator interface {
	Locate(ctx context.Context) (models.ClientInfo, error)
}

// Prober measures latency to a server base URL.
type Prober interface {
	Probe(ctx context.Context, baseURL string, samples int) (float64, error)
}

type Options struct {
	// Number of latency samples per candidate, at least 2
	PingRuns int
	// Candidates probed after the distance sort (default: DefaultProbeLimit)
	ProbeLimit int
	// Server list endpoint (default: discovery.ServersURL)
	ServersURL string
}

type Selector struct {
	client  discovery.Getter
	locator Locator
	prober  Prober
	opts    Options
	logger  *slog.Logger
}

func New(client discovery.Getter, locator Locator, prober Prober, opts Options, logger *slog.Logger) *Selector {
	if opts.ProbeLimit <= 0 {
		opts.ProbeLimit = DefaultProbeLimit
	}
	if opts.ServersURL == "" {
		opts.ServersURL = discovery.ServersURL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Selector{client: client, locator: locator, prober: prober, opts: opts, logger: logger}
}

// Select returns the lowest-latency server among the nearest candidates.
func (s *Selector) Select(ctx context.Context) (models.RankedServer, error) {
	client, candidates, err := s.rankByDistance(ctx)
	if err != nil {
		return models.RankedServer{}, err
	}
	s.logger.Debug("Client located", "ip", client.IP, "coordinate", client.Coordinate.String(), "candidates", len(candidates))

	n := s.opts.ProbeLimit
	if n > len(candidates) {
		n = len(candidates)
	}

	ranked := make([]models.RankedServer, 0, n)
	for _, c := range candidates[:n] {
		ms, err := s.prober.Probe(ctx, c.URL, s.opts.PingRuns)
		if err != nil {
			return models.RankedServer{}, fmt.Errorf("failed to probe %s: %w", c.URL, err)
		}
		s.logger.Debug("Probed candidate", "url", c.URL, "distanceKm", c.DistanceKm, "latencyMs", ms)
		ranked = append(ranked, models.RankedServer{CandidateServer: c, LatencyMs: ms})
	}

	// stable so equal latencies keep distance order
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].LatencyMs < ranked[j].LatencyMs })

	best := ranked[0]
	if latency.Unreachable(best.LatencyMs) {
		return models.RankedServer{}, fmt.Errorf("%w: probed %d candidates", models.ErrNoReachableServers, n)
	}

	s.logger.Debug("Automatically selected server",
		"url", best.URL,
		"latencyMs", best.LatencyMs,
		"distanceKm", best.DistanceKm)
	return best, nil
}

// Nearest returns the caller's location and up to n candidates ordered by
// distance, without probing them.
func (s *Selector) Nearest(ctx context.Context, n int) (models.ClientInfo, []models.CandidateServer, error) {
	client, candidates, err := s.rankByDistance(ctx)
	if err != nil {
		return models.ClientInfo{}, nil, err
	}
	if n > 0 && n < len(candidates) {
		candidates = candidates[:n]
	}
	return client, candidates, nil
}

// Pin probes a caller-chosen server instead of running discovery.
func (s *Selector) Pin(ctx context.Context, baseURL string) (models.RankedServer, error) {
	ms, err := s.prober.Probe(ctx, baseURL, s.opts.PingRuns)
	if err != nil {
		return models.RankedServer{}, fmt.Errorf("failed to probe %s: %w", baseURL, err)
	}
	if latency.Unreachable(ms) {
		return models.RankedServer{}, fmt.Errorf("%w: %s", models.ErrNoReachableServers, baseURL)
	}
	return models.RankedServer{CandidateServer: models.CandidateServer{URL: baseURL}, LatencyMs: ms}, nil
}

func (s *Selector) rankByDistance(ctx context.Context) (models.ClientInfo, []models.CandidateServer, error) {
	client, err := s.locator.Locate(ctx)
	if err != nil {
		return models.ClientInfo{}, nil, err
	}

	candidates, err := discovery.FetchServers(ctx, s.client, s.opts.ServersURL, s.logger)
	if err != nil {
		return models.ClientInfo{}, nil, err
	}
	if len(candidates) == 0 {
		return models.ClientInfo{}, nil, models.ErrNoServersAvailable
	}

	for i := range candidates {
		candidates[i].DistanceKm = client.Coordinate.DistanceTo(candidates[i].Coordinate)
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].DistanceKm < candidates[j].DistanceKm })

	return client, candidates, nil
}
