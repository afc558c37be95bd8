// Package discovery parses the speedtest.net configuration and server list
// payloads and locates the client through the configuration endpoint.
package discovery

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"speedtest-cli/pkg/geo"
	"speedtest-cli/pkg/models"
)

const (
	ConfigURL  = "http://www.speedtest.net/speedtest-config.php"
	ServersURL = "http://www.speedtest.net/speedtest-servers.php"
)

// ParseClientConfig extracts the caller's IP and coordinate from the
// <client ip=".." lat=".." lon=".."> element of a configuration payload.
func ParseClientConfig(body []byte) (models.ClientInfo, error) {
	var (
		info     models.ClientInfo
		found    bool
		coordErr error
	)
	err := walkElements(body, func(name string, attrs map[string]string) bool {
		if name != "client" {
			return true
		}
		point, err := geo.Parse(attrs["lat"], attrs["lon"])
		if err != nil {
			coordErr = err
			return false
		}
		info = models.ClientInfo{IP: attrs["ip"], ISP: attrs["isp"], Coordinate: point}
		found = true
		return false
	})
	if err != nil {
		return models.ClientInfo{}, err
	}
	if coordErr != nil {
		return models.ClientInfo{}, fmt.Errorf("%w: client element: %w", models.ErrMalformedResponse, coordErr)
	}
	if !found {
		return models.ClientInfo{}, fmt.Errorf("%w: no valid client element in configuration", models.ErrMalformedResponse)
	}
	return info, nil
}

// Malformed describes a server entry dropped while parsing a server list.
type Malformed struct {
	URL    string
	Reason string
}

// ParseServerList returns every well-formed <server> entry of a server list
// payload in document order, plus the entries it had to discard. Distances
// are left at zero; they depend on the caller's position.
func ParseServerList(body []byte) ([]models.CandidateServer, []Malformed, error) {
	var (
		servers []models.CandidateServer
		dropped []Malformed
	)
	err := walkElements(body, func(name string, attrs map[string]string) bool {
		if name != "server" {
			return true
		}
		base, err := BaseURL(attrs["url"])
		if err != nil {
			dropped = append(dropped, Malformed{URL: attrs["url"], Reason: err.Error()})
			return true
		}
		point, err := geo.Parse(attrs["lat"], attrs["lon"])
		if err != nil {
			dropped = append(dropped, Malformed{URL: attrs["url"], Reason: err.Error()})
			return true
		}
		servers = append(servers, models.CandidateServer{
			URL:        base,
			Coordinate: point,
			ID:         attrs["id"],
			Name:       attrs["name"],
			Country:    attrs["country"],
			Sponsor:    attrs["sponsor"],
		})
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	return servers, dropped, nil
}

// BaseURL reduces an advertised server URL such as
// http://host:8080/speedtest/upload.php to its scheme, host and port.
// The path must begin with /speedtest.
func BaseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return "", errors.New("missing host")
	}
	if u.User != nil {
		return "", errors.New("unexpected userinfo")
	}
	// the host itself may be named speedtest.*; only the path counts
	if u.Path != "/speedtest" && !strings.HasPrefix(u.Path, "/speedtest/") {
		return "", errors.New("no /speedtest path")
	}
	return u.Scheme + "://" + u.Host, nil
}

// walkElements calls fn with the name and attributes of every start element
// until fn returns false. Non-strict mode tolerates the HTML-ish payloads the
// endpoints sometimes return.
func walkElements(body []byte, fn func(name string, attrs map[string]string) bool) error {
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity

	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		attrs := make(map[string]string, len(se.Attr))
		for _, a := range se.Attr {
			attrs[a.Name.Local] = a.Value
		}
		if !fn(se.Name.Local, attrs) {
			return nil
		}
	}
}
