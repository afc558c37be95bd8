package models

import (
	"time"

	"speedtest-cli/pkg/geo"
)

// ClientInfo describes the machine running the test as seen by a locator.
type ClientInfo struct {
	IP         string
	ISP        string
	Coordinate geo.Point
}

// CandidateServer is a test server advertised by discovery but not yet probed.
type CandidateServer struct {
	URL        string
	Coordinate geo.Point
	DistanceKm float64

	ID      string
	Name    string
	Country string
	Sponsor string
}

// RankedServer is a candidate together with its probed latency.
type RankedServer struct {
	CandidateServer
	LatencyMs float64
}

// TransferSample is the outcome of a single download or upload task.
type TransferSample struct {
	Bytes   int64
	Elapsed time.Duration
}

// MeasurementResult aggregates one throughput phase. Span is the wall-clock
// time of the whole concurrent batch, not a sum of sample durations.
type MeasurementResult struct {
	TotalBytes int64
	Span       time.Duration
	Samples    int
}

// Rate returns the phase throughput in bits per second.
func (m MeasurementResult) Rate() float64 {
	if m.Span <= 0 {
		return 0
	}
	return float64(m.TotalBytes) * 8 / m.Span.Seconds()
}
