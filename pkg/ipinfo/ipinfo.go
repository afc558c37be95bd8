package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"speedtest-cli/pkg/fetch"
	"speedtest-cli/pkg/geo"
	"speedtest-cli/pkg/models"
)

const endpoint = "https://ipinfo.io"

type IPInfoResponse struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Timezone string `json:"timezone"`
}

type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// GetIPInfo looks up ip, or the caller's own address when ip is empty.
func GetIPInfo(ctx context.Context, client Getter, ip, token string) (IPInfoResponse, error) {
	u := endpoint + "/json"
	if ip != "" {
		u = endpoint + "/" + url.PathEscape(ip) + "/json"
	}
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}

	res, err := client.Get(ctx, u)
	if err != nil {
		return IPInfoResponse{}, err
	}
	if err := res.CheckStatus(); err != nil {
		return IPInfoResponse{}, err
	}

	var ipInfo IPInfoResponse
	if err := json.Unmarshal(res.Body, &ipInfo); err != nil {
		return IPInfoResponse{}, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	return ipInfo, nil
}

// Coordinate parses the "lat,lon" loc field.
func (r IPInfoResponse) Coordinate() (geo.Point, error) {
	lat, lon, ok := strings.Cut(r.Loc, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("%w: loc %q", geo.ErrInvalidCoordinate, r.Loc)
	}
	return geo.Parse(lat, lon)
}

// Locator finds the caller through ipinfo.io instead of the speedtest.net
// configuration endpoint.
type Locator struct {
	client Getter
	token  string
	logger *slog.Logger
}

func NewLocator(client Getter, token string, logger *slog.Logger) *Locator {
	return &Locator{client: client, token: token, logger: logger}
}

func (l *Locator) Locate(ctx context.Context) (models.ClientInfo, error) {
	ipInfo, err := GetIPInfo(ctx, l.client, "", l.token)
	if err != nil {
		return models.ClientInfo{}, fmt.Errorf("failed to get local IP info: %w", err)
	}

	point, err := ipInfo.Coordinate()
	if err != nil {
		return models.ClientInfo{}, fmt.Errorf("%w: %w", models.ErrMalformedResponse, err)
	}

	// org looks like "AS1136 KPN B.V."
	isp := ipInfo.Org
	if parts := strings.SplitN(ipInfo.Org, " ", 2); len(parts) == 2 && strings.HasPrefix(parts[0], "AS") {
		isp = parts[1]
	}

	if l.logger != nil {
		l.logger.Debug("IP info retrieved", "ip", ipInfo.IP, "city", ipInfo.City, "loc", ipInfo.Loc)
	}
	return models.ClientInfo{IP: ipInfo.IP, ISP: isp, Coordinate: point}, nil
}
