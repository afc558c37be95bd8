package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"speedtest-cli/pkg/fetch"
	"speedtest-cli/pkg/models"
)

// Getter is the subset of the HTTP capability discovery needs.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// ConfigLocator finds the caller through the speedtest.net configuration endpoint.
type ConfigLocator struct {
	client Getter
	url    string
	logger *slog.Logger
}

func NewConfigLocator(client Getter, logger *slog.Logger) *ConfigLocator {
	return &ConfigLocator{client: client, url: ConfigURL, logger: logger}
}

// WithURL returns a copy of the locator that queries configURL instead.
func (l *ConfigLocator) WithURL(configURL string) *ConfigLocator {
	c := *l
	c.url = configURL
	return &c
}

func (l *ConfigLocator) Locate(ctx context.Context) (models.ClientInfo, error) {
	res, err := l.client.Get(ctx, l.url)
	if err != nil {
		return models.ClientInfo{}, fmt.Errorf("failed to fetch configuration: %w", err)
	}
	if err := res.CheckStatus(); err != nil {
		return models.ClientInfo{}, fmt.Errorf("failed to fetch configuration: %w", err)
	}

	info, err := ParseClientConfig(res.Body)
	if err != nil {
		return models.ClientInfo{}, err
	}

	if l.logger != nil {
		l.logger.Debug("Located client", "ip", info.IP, "isp", info.ISP, "coordinate", info.Coordinate.String())
	}
	return info, nil
}

// FetchServers downloads and parses the server list at serversURL.
func FetchServers(ctx context.Context, client Getter, serversURL string, logger *slog.Logger) ([]models.CandidateServer, error) {
	res, err := client.Get(ctx, serversURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server list: %w", err)
	}
	if err := res.CheckStatus(); err != nil {
		return nil, fmt.Errorf("failed to fetch server list: %w", err)
	}

	servers, dropped, err := ParseServerList(res.Body)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		for _, m := range dropped {
			logger.Debug("Discarding malformed server entry", "url", m.URL, "reason", m.Reason)
		}
	}
	return servers, nil
}
