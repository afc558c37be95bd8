// Package report renders a speed test Result for humans or machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"speedtest-cli/pkg/models"
)

// WriteText writes r as an aligned two-column table.
func WriteText(w io.Writer, r models.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	server := r.ServerURL
	if r.ServerName != "" {
		server = fmt.Sprintf("%s (%s)", r.ServerName, r.ServerURL)
	}
	rows := [][2]string{
		{"Server:", server},
		{"Distance:", fmt.Sprintf("%.2f km", r.DistanceKm)},
		{"Latency:", fmt.Sprintf("%.2f ms", r.LatencyMs)},
		{"Download:", r.PrettyDownload},
		{"Upload:", r.PrettyUpload},
		{"Run:", r.RunID},
		{"Time:", r.Timestamp.Format(time.RFC3339)},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteJSON writes r as a single indented JSON object.
func WriteJSON(w io.Writer, r models.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// Write renders r in the named format, "text" or "json".
func Write(w io.Writer, format string, r models.Result) error {
	switch format {
	case "json":
		return WriteJSON(w, r)
	case "text", "":
		return WriteText(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
