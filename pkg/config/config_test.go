package config

import (
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	got, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Settings{
		DownloadRuns:  4,
		UploadRuns:    4,
		PingRuns:      4,
		DownloadSizes: []int{750, 1500},
		UploadSizes:   []int{197190, 483960},
		TimeoutSec:    30,
		Locator:       LocatorSpeedtest,
		Output:        OutputText,
		Exporter: ExporterSettings{
			Listen:   ":9516",
			Path:     "/metrics",
			Schedule: "@every 30m",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() got = %+v, want %+v", got, want)
	}
}

func TestLoadFromYAML(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
download_runs: 8
ping_runs: 6
download_sizes: [350, 4000]
transport: socks5://127.0.0.1:1080
locator: ipinfo
ipinfo:
  token: secret
exporter:
  schedule: "*/15 * * * *"
`))
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	got, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.DownloadRuns != 8 || got.PingRuns != 6 || got.UploadRuns != 4 {
		t.Errorf("Load() runs = %d/%d/%d", got.DownloadRuns, got.UploadRuns, got.PingRuns)
	}
	if !reflect.DeepEqual(got.DownloadSizes, []int{350, 4000}) {
		t.Errorf("Load() DownloadSizes = %v", got.DownloadSizes)
	}
	if got.Transport != "socks5://127.0.0.1:1080" || got.Locator != LocatorIPInfo || got.IPInfoToken != "secret" {
		t.Errorf("Load() got = %+v", got)
	}
	if got.Exporter.Schedule != "*/15 * * * *" || got.Exporter.Listen != ":9516" {
		t.Errorf("Load() Exporter = %+v", got.Exporter)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Settings {
		v := viper.New()
		SetDefaults(v)
		s, err := Load(v)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantMsg string
	}{
		{name: "Single ping", mutate: func(s *Settings) { s.PingRuns = 1 }, wantMsg: "ping_runs"},
		{name: "No download runs", mutate: func(s *Settings) { s.DownloadRuns = 0 }, wantMsg: "download_runs"},
		{name: "No upload runs", mutate: func(s *Settings) { s.UploadRuns = -2 }, wantMsg: "upload_runs"},
		{name: "Empty sizes", mutate: func(s *Settings) { s.UploadSizes = nil }, wantMsg: "upload_sizes"},
		{name: "Negative size", mutate: func(s *Settings) { s.DownloadSizes = []int{750, -1} }, wantMsg: "download_sizes"},
		{name: "Zero timeout", mutate: func(s *Settings) { s.TimeoutSec = 0 }, wantMsg: "timeout"},
		{name: "Unknown locator", mutate: func(s *Settings) { s.Locator = "gps" }, wantMsg: "locator"},
		{name: "Unknown output", mutate: func(s *Settings) { s.Output = "xml" }, wantMsg: "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}
