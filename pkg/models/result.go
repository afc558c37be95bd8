package models

import (
	"fmt"
	"time"
)

// Result is the outcome of a complete speed test run.
type Result struct {
	RunID          string    `json:"run_id"`
	ServerURL      string    `json:"server"`
	ServerName     string    `json:"server_name,omitempty"`
	DistanceKm     float64   `json:"distance_km"`
	LatencyMs      float64   `json:"latency_ms"`
	DownloadBps    float64   `json:"download_bps"`
	UploadBps      float64   `json:"upload_bps"`
	PrettyDownload string    `json:"pretty_download"`
	PrettyUpload   string    `json:"pretty_upload"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewResult assembles the final Result for a run against server.
func NewResult(runID string, server RankedServer, download, upload float64, at time.Time) Result {
	return Result{
		RunID:          runID,
		ServerURL:      server.URL,
		ServerName:     server.Sponsor,
		DistanceKm:     server.DistanceKm,
		LatencyMs:      server.LatencyMs,
		DownloadBps:    download,
		UploadBps:      upload,
		PrettyDownload: FormatRate(download),
		PrettyUpload:   FormatRate(upload),
		Timestamp:      at,
	}
}

var rateUnits = [...]string{"bps", "Kbps", "Mbps", "Gbps", "Tbps"}

// FormatRate renders a bit rate with decimal (1000-based) units.
func FormatRate(bps float64) string {
	i := 0
	for bps > 1000 && i < len(rateUnits)-1 {
		bps /= 1000
		i++
	}
	return fmt.Sprintf("%.2f %s", bps, rateUnits[i])
}
