// Package latency measures round-trip latency to a test server with
// sequential HTTP probes.
package latency

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"speedtest-cli/pkg/fetch"
)

// Sentinel is recorded in place of a failed probe so that unreachable
// servers sort last instead of aborting selection.
const Sentinel = 999999.0

const probePath = "/speedtest/latency.txt"

var ErrInvalidSampleCount = errors.New("latency probe needs at least 2 samples")

type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// Prober times GET requests against a server's latency endpoint. Probes are
// issued one after another so that a probe never contends with itself.
type Prober struct {
	client Getter
	logger *slog.Logger
	now    func() time.Time
}

func NewProber(client Getter, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prober{client: client, logger: logger, now: time.Now}
}

// Probe returns the trimmed mean latency in milliseconds of samples requests
// to baseURL. Failed requests count as Sentinel; the only errors returned are
// an invalid sample count and cancellation of ctx.
func (p *Prober) Probe(ctx context.Context, baseURL string, samples int) (float64, error) {
	if samples < 2 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidSampleCount, samples)
	}

	target := baseURL + probePath
	times := make([]float64, 0, samples)
	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		start := p.now()
		res, err := p.client.Get(ctx, target)
		elapsed := p.now().Sub(start)

		if err == nil {
			err = res.CheckStatus()
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			p.logger.Debug("Latency probe failed", "url", target, "sample", i, "error", err)
			times = append(times, Sentinel)
			continue
		}

		ms := float64(elapsed) / float64(time.Millisecond)
		p.logger.Debug("Latency probe", "url", target, "sample", i, "ms", ms)
		times = append(times, ms)
	}

	return Reduce(times), nil
}

// Reduce drops the fastest sample, which usually carries connection setup
// or cache warm-up effects, and averages the rest.
func Reduce(samples []float64) float64 {
	if len(samples) == 0 {
		return Sentinel
	}
	if len(samples) == 1 {
		return samples[0]
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted[1:] {
		sum += v
	}
	return sum / float64(len(sorted)-1)
}

// Unreachable reports whether a reduced latency means every sample failed.
func Unreachable(ms float64) bool {
	return ms >= Sentinel
}
