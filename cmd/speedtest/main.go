package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"speedtest-cli/pkg/config"
	"speedtest-cli/pkg/exporter"
	"speedtest-cli/pkg/models"
	"speedtest-cli/pkg/report"
	"speedtest-cli/pkg/speedtest"
)

var (
	debugFlag  bool
	configFile string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "speedtest",
	Short: "Measure latency and throughput against speedtest.net servers",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logLevel slog.Level
		if debugFlag || viper.GetBool("debug") {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one speed test and print the result",
	Long: `Run one speed test: locate this client, pick the lowest-latency server
among the ten nearest, then measure download and upload throughput.`,
	Example: "speedtest run --download-runs 8 --output json",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		client, err := speedtest.NewClient(settings)
		if err != nil {
			return err
		}
		defer client.CloseIdleConnections()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		test := speedtest.New(settings, client, logger)
		logger.Debug("Starting speed test", "runID", test.RunID(), "locator", settings.Locator, "transport", settings.Transport)
		result, err := test.Run(ctx)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrNoServersAvailable):
				logger.Error("No servers were discovered", "error", err)
			case errors.Is(err, models.ErrNoReachableServers):
				logger.Error("None of the nearest servers answered", "error", err)
			}
			return err
		}
		return report.Write(cmd.OutOrStdout(), settings.Output, result)
	},
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List the nearest servers without measuring them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		client, err := speedtest.NewClient(settings)
		if err != nil {
			return err
		}
		defer client.CloseIdleConnections()

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		if limit < 0 {
			return fmt.Errorf("limit must not be negative, got %d", limit)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		info, servers, err := speedtest.NewSelector(settings, client, logger).Nearest(ctx, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Client %s (%s) at %s\n\n", info.IP, info.ISP, info.Coordinate)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSPONSOR\tNAME\tCOUNTRY\tDISTANCE\tURL")
		for _, s := range servers {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f km\t%s\n", s.ID, s.Sponsor, s.Name, s.Country, s.DistanceKm, s.URL)
		}
		return tw.Flush()
	},
}

var exporterCmd = &cobra.Command{
	Use:   "exporter",
	Short: "Run speed tests on a schedule and serve Prometheus metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(viper.GetViper())
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		var (
			mu      sync.Mutex
			current = settings
		)
		run := func(ctx context.Context) (models.Result, error) {
			mu.Lock()
			s := current
			mu.Unlock()

			client, err := speedtest.NewClient(s)
			if err != nil {
				return models.Result{}, err
			}
			defer client.CloseIdleConnections()
			return speedtest.New(s, client, logger).Run(ctx)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		exp := exporter.New(run, reg, logger)
		if err := exp.SetSchedule(settings.Exporter.Schedule); err != nil {
			return err
		}

		if viper.ConfigFileUsed() != "" {
			exporter.WatchSettings(viper.GetViper(), func(s config.Settings) {
				mu.Lock()
				current = s
				mu.Unlock()
				if err := exp.SetSchedule(s.Exporter.Schedule); err != nil {
					logger.Error("Keeping previous schedule", "error", err)
				}
			}, logger)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return exp.Serve(ctx, settings.Exporter.Listen, settings.Exporter.Path)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: speedtest.yaml in ., $HOME/.speedtest, /etc/speedtest)")
	rootCmd.PersistentFlags().String("transport", "", "Outline SDK transport config, e.g. socks5://host:port")
	rootCmd.PersistentFlags().Int("timeout", 30, "Timeout in seconds for each HTTP request")
	rootCmd.PersistentFlags().String("locator", config.LocatorSpeedtest, "How to locate this client: speedtest or ipinfo")
	rootCmd.PersistentFlags().Int("ping-runs", 4, "Latency samples per server, at least 2")

	runCmd.Flags().Int("download-runs", 4, "Downloads per image size")
	runCmd.Flags().Int("upload-runs", 4, "Uploads per payload size")
	runCmd.Flags().IntSlice("download-sizes", []int{750, 1500}, "Image sizes to download")
	runCmd.Flags().IntSlice("upload-sizes", []int{197190, 483960}, "Payload sizes in bytes to upload")
	runCmd.Flags().StringP("server", "s", "", "Test against this server base URL instead of selecting one")
	runCmd.Flags().StringP("output", "o", config.OutputText, "Output format: text or json")

	serversCmd.Flags().IntP("limit", "n", 10, "Number of servers to list, 0 for all")

	exporterCmd.Flags().String("listen", ":9516", "Address to serve metrics on")
	exporterCmd.Flags().String("path", "/metrics", "Metrics path")
	exporterCmd.Flags().String("schedule", "@every 30m", "Cron schedule for speed tests")

	bindFlags(rootCmd, map[string]string{
		"debug":     "debug",
		"transport": "transport",
		"timeout":   "timeout",
		"locator":   "locator",
		"ping-runs": "ping_runs",
	}, true)
	bindFlags(runCmd, map[string]string{
		"download-runs":  "download_runs",
		"upload-runs":    "upload_runs",
		"download-sizes": "download_sizes",
		"upload-sizes":   "upload_sizes",
		"server":         "server",
		"output":         "output",
	}, false)
	bindFlags(exporterCmd, map[string]string{
		"listen":   "exporter.listen",
		"path":     "exporter.path",
		"schedule": "exporter.schedule",
	}, false)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(exporterCmd)
}

func bindFlags(cmd *cobra.Command, keys map[string]string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for flag, key := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
		}
	}
}

func initConfig() {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("SPEEDTEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("speedtest")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.speedtest")
		viper.AddConfigPath("/etc/speedtest/")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
