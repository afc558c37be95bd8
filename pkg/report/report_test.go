package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"speedtest-cli/pkg/models"
)

var sample = models.Result{
	RunID:          "0b6f3c1e-5d7a-4c39-9a8e-2f4f1c0d9e11",
	ServerURL:      "http://speedtest.example.net:8080",
	ServerName:     "Example ISP",
	DistanceKm:     12.345,
	LatencyMs:      18.5,
	DownloadBps:    93500000,
	UploadBps:      12250000,
	PrettyDownload: "93.50 Mbps",
	PrettyUpload:   "12.25 Mbps",
	Timestamp:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sample); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}

	want := []string{
		"Server:    Example ISP (http://speedtest.example.net:8080)",
		"Distance:  12.35 km",
		"Latency:   18.50 ms",
		"Download:  93.50 Mbps",
		"Upload:    12.25 Mbps",
		"Time:      2024-05-01T12:00:00Z",
	}
	got := buf.String()
	for _, line := range want {
		if !strings.Contains(got, line+"\n") {
			t.Errorf("WriteText() output missing %q, got:\n%s", line, got)
		}
	}
}

func TestWriteTextWithoutName(t *testing.T) {
	r := sample
	r.ServerName = ""
	var buf bytes.Buffer
	if err := WriteText(&buf, r); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Server:    http://speedtest.example.net:8080\n") {
		t.Errorf("WriteText() got:\n%s", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sample); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	checks := map[string]any{
		"run_id":          sample.RunID,
		"server":          sample.ServerURL,
		"download_bps":    93500000.0,
		"upload_bps":      12250000.0,
		"pretty_download": "93.50 Mbps",
		"latency_ms":      18.5,
		"timestamp":       "2024-05-01T12:00:00Z",
	}
	for k, want := range checks {
		if got[k] != want {
			t.Errorf("WriteJSON() %s = %v, want %v", k, got[k], want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestWrite(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		wantErr bool
		prefix  string
	}{
		{name: "Text", format: "text", prefix: "Server:"},
		{name: "Default", format: "", prefix: "Server:"},
		{name: "JSON", format: "json", prefix: "{"},
		{name: "Unknown", format: "yaml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := Write(&buf, tt.format, sample)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Write() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.HasPrefix(buf.String(), tt.prefix) {
				t.Errorf("Write() got = %q, want prefix %q", buf.String(), tt.prefix)
			}
		})
	}
}

func TestWriteErrors(t *testing.T) {
	if err := WriteText(failingWriter{}, sample); err == nil {
		t.Error("WriteText() error = nil, want error")
	}
	if err := WriteJSON(failingWriter{}, sample); err == nil {
		t.Error("WriteJSON() error = nil, want error")
	}
}
