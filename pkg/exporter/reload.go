package exporter

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"speedtest-cli/pkg/config"
)

// WatchSettings reloads Settings from v whenever its config file changes
// and passes them to apply. Invalid edits are logged and ignored.
func WatchSettings(v *viper.Viper, apply func(config.Settings), logger *slog.Logger) {
	v.OnConfigChange(reloadHandler(v, apply, logger))
	v.WatchConfig()
}

func reloadHandler(v *viper.Viper, apply func(config.Settings), logger *slog.Logger) func(fsnotify.Event) {
	return func(ev fsnotify.Event) {
		if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		s, err := config.Load(v)
		if err != nil {
			logger.Error("Ignoring invalid configuration", "file", ev.Name, "error", err)
			return
		}
		logger.Info("Configuration reloaded", "file", ev.Name)
		apply(s)
	}
}
