package speedtest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"speedtest-cli/pkg/config"
	"speedtest-cli/pkg/discovery"
	"speedtest-cli/pkg/fetch"
	"speedtest-cli/pkg/ipinfo"
	"speedtest-cli/pkg/latency"
	"speedtest-cli/pkg/models"
	"speedtest-cli/pkg/selector"
	"speedtest-cli/pkg/throughput"
)

// NewClient builds the HTTP client every component of a run shares.
func NewClient(s config.Settings) (*fetch.Client, error) {
	client, err := fetch.NewClient(fetch.Options{Transport: s.Transport, TimeoutSec: s.TimeoutSec})
	if err != nil {
		return nil, fmt.Errorf("failed to create client for transport %q: %w", s.Transport, err)
	}
	return client, nil
}

// NewSelector wires a selector.Selector from s, choosing the locator named
// by s.Locator.
func NewSelector(s config.Settings, client *fetch.Client, logger *slog.Logger) *selector.Selector {
	var locator selector.Locator
	switch s.Locator {
	case config.LocatorIPInfo:
		locator = ipinfo.NewLocator(client, s.IPInfoToken, logger)
	default:
		locator = discovery.NewConfigLocator(client, logger)
	}
	return selector.New(client, locator, latency.NewProber(client, logger), selector.Options{PingRuns: s.PingRuns}, logger)
}

// New wires a Test with the default components. A pinned s.Server skips
// discovery and only latency-checks that server.
func New(s config.Settings, client *fetch.Client, logger *slog.Logger) *Test {
	sel := NewSelector(s, client, logger)
	var chooser ServerSelector = sel
	if s.Server != "" {
		chooser = pinned{sel: sel, url: s.Server}
	}
	plan := Plan{
		DownloadSizes: s.DownloadSizes,
		DownloadRuns:  s.DownloadRuns,
		UploadSizes:   s.UploadSizes,
		UploadRuns:    s.UploadRuns,
	}
	return NewTest(chooser, throughput.NewMeasurer(client, logger), plan, logger)
}

type pinned struct {
	sel *selector.Selector
	url string
}

func (p pinned) Select(ctx context.Context) (models.RankedServer, error) {
	// accept both http://host:8080 and a full .../speedtest/upload.php URL
	raw := p.url
	if !strings.Contains(raw, "/speedtest") {
		raw = strings.TrimRight(raw, "/") + "/speedtest"
	}
	base, err := discovery.BaseURL(raw)
	if err != nil {
		return models.RankedServer{}, fmt.Errorf("invalid pinned server: %w", err)
	}
	return p.sel.Pin(ctx, base)
}
