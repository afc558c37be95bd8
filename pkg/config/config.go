// Package config loads speed test settings from viper.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

const (
	LocatorSpeedtest = "speedtest"
	LocatorIPInfo    = "ipinfo"

	OutputText = "text"
	OutputJSON = "json"
)

// Settings holds every recognized option.
type Settings struct {
	DownloadRuns  int
	UploadRuns    int
	PingRuns      int
	DownloadSizes []int
	UploadSizes   []int
	Debug         bool

	// outline-sdk transport config, empty for a direct connection
	Transport  string
	TimeoutSec int
	// pinned server base URL; skips discovery when set
	Server string
	// where the client coordinate comes from: speedtest or ipinfo
	Locator     string
	IPInfoToken string
	Output      string

	Exporter ExporterSettings
}

type ExporterSettings struct {
	Listen   string
	Path     string
	Schedule string
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("download_runs", 4)
	v.SetDefault("upload_runs", 4)
	v.SetDefault("ping_runs", 4)
	v.SetDefault("download_sizes", []int{750, 1500})
	v.SetDefault("upload_sizes", []int{197190, 483960})
	v.SetDefault("debug", false)
	v.SetDefault("transport", "")
	v.SetDefault("timeout", 30)
	v.SetDefault("server", "")
	v.SetDefault("locator", LocatorSpeedtest)
	v.SetDefault("ipinfo.token", "")
	v.SetDefault("output", OutputText)
	v.SetDefault("exporter.listen", ":9516")
	v.SetDefault("exporter.path", "/metrics")
	v.SetDefault("exporter.schedule", "@every 30m")
}

// Load reads and validates Settings from v.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		DownloadRuns:  v.GetInt("download_runs"),
		UploadRuns:    v.GetInt("upload_runs"),
		PingRuns:      v.GetInt("ping_runs"),
		DownloadSizes: v.GetIntSlice("download_sizes"),
		UploadSizes:   v.GetIntSlice("upload_sizes"),
		Debug:         v.GetBool("debug"),
		Transport:     v.GetString("transport"),
		TimeoutSec:    v.GetInt("timeout"),
		Server:        v.GetString("server"),
		Locator:       v.GetString("locator"),
		IPInfoToken:   v.GetString("ipinfo.token"),
		Output:        v.GetString("output"),
		Exporter: ExporterSettings{
			Listen:   v.GetString("exporter.listen"),
			Path:     v.GetString("exporter.path"),
			Schedule: v.GetString("exporter.schedule"),
		},
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	var errs []error
	if s.DownloadRuns < 1 {
		errs = append(errs, fmt.Errorf("download_runs must be at least 1, got %d", s.DownloadRuns))
	}
	if s.UploadRuns < 1 {
		errs = append(errs, fmt.Errorf("upload_runs must be at least 1, got %d", s.UploadRuns))
	}
	if s.PingRuns < 2 {
		errs = append(errs, fmt.Errorf("ping_runs must be at least 2, got %d", s.PingRuns))
	}
	if err := validateSizes("download_sizes", s.DownloadSizes); err != nil {
		errs = append(errs, err)
	}
	if err := validateSizes("upload_sizes", s.UploadSizes); err != nil {
		errs = append(errs, err)
	}
	if s.TimeoutSec < 1 {
		errs = append(errs, fmt.Errorf("timeout must be at least 1 second, got %d", s.TimeoutSec))
	}
	switch s.Locator {
	case LocatorSpeedtest, LocatorIPInfo:
	default:
		errs = append(errs, fmt.Errorf("locator must be %q or %q, got %q", LocatorSpeedtest, LocatorIPInfo, s.Locator))
	}
	switch s.Output {
	case OutputText, OutputJSON:
	default:
		errs = append(errs, fmt.Errorf("output must be %q or %q, got %q", OutputText, OutputJSON, s.Output))
	}
	return errors.Join(errs...)
}

func validateSizes(key string, sizes []int) error {
	if len(sizes) == 0 {
		return fmt.Errorf("%s must not be empty", key)
	}
	for _, n := range sizes {
		if n <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, n)
		}
	}
	return nil
}
