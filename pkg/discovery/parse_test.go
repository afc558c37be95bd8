package discovery

import (
	"errors"
	"reflect"
	"testing"

	"speedtest-cli/pkg/geo"
	"speedtest-cli/pkg/models"
)

const configPayload = `<?xml version="1.0" encoding="UTF-8"?>
<settings>
<client ip="203.0.113.7" lat="52.3824" lon="4.8995" isp="Example Telecom" isprating="3.7" rating="0" ispdlavg="0" ispulavg="0" loggedin="0" country="NL" />
<server-config threadcount="4" ignoreids="1,2,3" notonmap="" forcepingid="" preferredserverid=""/>
</settings>`

const serversPayload = `<?xml version="1.0" encoding="UTF-8"?>
<settings>
<servers>
<server url="http://speedtest.ams.example.net:8080/speedtest/upload.php" lat="52.3702" lon="4.8952" name="Amsterdam" country="Netherlands" cc="NL" sponsor="Example AMS" id="1001" host="speedtest.ams.example.net:8080" />
<server url="https://speed.lon.example.org/speedtest/upload.php" lat="51.5074" lon="-0.1278" name="London" country="United Kingdom" cc="GB" sponsor="Example LON" id="1002" />
<server url="speedtest/upload.php" lat="1" lon="1" name="No host" id="1003" />
<server url="ftp://files.example.com/speedtest/upload.php" lat="1" lon="1" name="Wrong scheme" id="1004" />
<server url="http://broken.example.com:8080/speedtest/upload.php" lat="north" lon="1" name="Bad coordinate" id="1005" />
<server url="http://nested.example.com/mirror/speedtest/upload.php" lat="1" lon="1" name="Nested path" id="1006" />
</servers>
</settings>`

func TestParseClientConfig(t *testing.T) {
	want, _ := geo.New(52.3824, 4.8995)

	tests := []struct {
		name      string
		body      string
		wantIP    string
		wantErr   error
		wantCoord bool
	}{
		{name: "Valid payload", body: configPayload, wantIP: "203.0.113.7", wantCoord: true},
		{name: "No client element", body: `<settings><server-config/></settings>`, wantErr: models.ErrMalformedResponse},
		{name: "Bad coordinate", body: `<client ip="1.1.1.1" lat="x" lon="2"/>`, wantErr: geo.ErrInvalidCoordinate},
		{name: "Empty body", body: ``, wantErr: models.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientConfig([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseClientConfig() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClientConfig() error = %v", err)
			}
			if got.IP != tt.wantIP {
				t.Errorf("ParseClientConfig() got IP = %v, want %v", got.IP, tt.wantIP)
			}
			if tt.wantCoord && got.Coordinate != want {
				t.Errorf("ParseClientConfig() got coordinate = %v, want %v", got.Coordinate, want)
			}
			if got.ISP != "Example Telecom" {
				t.Errorf("ParseClientConfig() got ISP = %q", got.ISP)
			}
		})
	}
}

func TestParseServerList(t *testing.T) {
	servers, dropped, err := ParseServerList([]byte(serversPayload))
	if err != nil {
		t.Fatalf("ParseServerList() error = %v", err)
	}

	var urls []string
	for _, s := range servers {
		urls = append(urls, s.URL)
	}
	wantURLs := []string{"http://speedtest.ams.example.net:8080", "https://speed.lon.example.org"}
	if !reflect.DeepEqual(urls, wantURLs) {
		t.Errorf("ParseServerList() got URLs = %v, want %v", urls, wantURLs)
	}
	if len(dropped) != 4 {
		t.Errorf("ParseServerList() dropped %d entries, want 4: %+v", len(dropped), dropped)
	}

	first := servers[0]
	if first.ID != "1001" || first.Sponsor != "Example AMS" || first.Country != "Netherlands" || first.Name != "Amsterdam" {
		t.Errorf("ParseServerList() first server attributes = %+v", first)
	}
	if first.DistanceKm != 0 {
		t.Errorf("ParseServerList() DistanceKm = %v, want 0 before ranking", first.DistanceKm)
	}
}

func TestParseServerListEmpty(t *testing.T) {
	servers, dropped, err := ParseServerList([]byte(`<settings><servers></servers></settings>`))
	if err != nil {
		t.Fatalf("ParseServerList() error = %v", err)
	}
	if len(servers) != 0 || len(dropped) != 0 {
		t.Errorf("ParseServerList() got %d servers and %d dropped, want none", len(servers), len(dropped))
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "http://speedtest.example.net:8080/speedtest/upload.php", want: "http://speedtest.example.net:8080"},
		{raw: "https://speedtest.example.net/speedtest/upload.php", want: "https://speedtest.example.net"},
		{raw: "http://[2001:db8::1]:8080/speedtest/upload.php", want: "http://[2001:db8::1]:8080"},
		{raw: "http://speedtest-ams.example.net/speedtest/upload.php", want: "http://speedtest-ams.example.net"},
		{raw: "http://speed.example.net:8080/speedtest/upload.php", want: "http://speed.example.net:8080"},
		{raw: "http://speedtest.example.net", wantErr: true},
		{raw: "http://host/mirror/speedtest/upload.php", wantErr: true},
		{raw: "ftp://speedtest.example.net/speedtest/upload.php", wantErr: true},
		{raw: "http://speedtest.example.net/upload.php", wantErr: true},
		{raw: "/speedtest/upload.php", wantErr: true},
		{raw: "http:///speedtest/upload.php", wantErr: true},
		{raw: "http://user:pw@host/speedtest/upload.php", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := BaseURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BaseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("BaseURL() = %v, want %v", got, tt.want)
			}
		})
	}
}
