// Package exporter runs speed tests on a cron schedule and serves the
// outcome as Prometheus metrics.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"speedtest-cli/pkg/metrics"
	"speedtest-cli/pkg/models"
)

// RunFunc performs one complete speed test.
type RunFunc func(ctx context.Context) (models.Result, error)

type Exporter struct {
	run      RunFunc
	recorder *metrics.Recorder
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	now      func() time.Time

	// held for the duration of a test, whoever started it
	running sync.Mutex
	runs    sync.WaitGroup

	mu       sync.Mutex
	ctx      context.Context
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
}

// New returns an Exporter that records into a recorder registered on reg.
func New(run RunFunc, reg *prometheus.Registry, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Exporter{
		run:      run,
		recorder: metrics.NewRecorder(reg),
		gatherer: reg,
		logger:   logger,
		now:      time.Now,
		ctx:      context.Background(),
	}
	// a run can outlast its interval; the next tick is dropped, not queued
	e.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})), cron.WithLogger(cronLogger{logger}))
	return e
}

// ErrRunInProgress is returned by RunOnce while another test is running.
var ErrRunInProgress = errors.New("speed test already in progress")

// RunOnce performs one test and records its outcome. At most one test runs
// at a time; a call made while one is in flight returns ErrRunInProgress
// without recording anything.
func (e *Exporter) RunOnce(ctx context.Context) error {
	if !e.running.TryLock() {
		e.logger.Debug("Skipping speed test, previous run still in progress")
		return ErrRunInProgress
	}
	defer e.running.Unlock()

	start := e.now()
	res, err := e.run(ctx)
	took := e.now().Sub(start)
	if err != nil {
		e.recorder.ObserveFailure(e.now(), took)
		e.logger.Error("Speed test failed", "error", err, "took", took)
		return err
	}
	e.recorder.ObserveResult(res, took)
	e.logger.Info("Speed test finished",
		"runID", res.RunID,
		"server", res.ServerURL,
		"latencyMs", res.LatencyMs,
		"download", res.PrettyDownload,
		"upload", res.PrettyUpload,
		"took", took)
	return nil
}

// SetSchedule replaces the current schedule with expr, in robfig/cron
// syntax ("@every 30m", "0 * * * *"). On error the old schedule is kept.
func (e *Exporter) SetSchedule(expr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if expr == e.schedule {
		return nil
	}

	id, err := e.cron.AddFunc(expr, func() {
		_ = e.RunOnce(e.context())
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	if e.entry != 0 {
		e.cron.Remove(e.entry)
	}
	e.entry = id
	e.schedule = expr
	e.logger.Debug("Schedule set", "schedule", expr)
	return nil
}

// NextRun reports when the scheduled test fires next, or the zero time.
func (e *Exporter) NextRun() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.entry == 0 {
		return time.Time{}
	}
	return e.cron.Entry(e.entry).Next
}

// Handler serves metrics at path.
func (e *Exporter) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "speedtest exporter\nmetrics: %s\n", path)
	})
	return mux
}

// Serve starts the schedule and the metrics endpoint, runs one test right
// away, and blocks until ctx is done. It returns once every test it started
// has finished.
func (e *Exporter) Serve(ctx context.Context, listen, path string) error {
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()
	e.mu.Lock()
	e.ctx = runCtx
	e.mu.Unlock()

	srv := &http.Server{
		Addr:              listen,
		Handler:           e.Handler(path),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("Serving metrics", "listen", listen, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	e.cron.Start()
	e.runs.Add(1)
	go func() {
		defer e.runs.Done()
		_ = e.RunOnce(runCtx)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("metrics server failed: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			serveErr = fmt.Errorf("failed to shut down metrics server: %w", err)
		}
	}

	stopped := e.cron.Stop()
	cancelRuns()
	<-stopped.Done()
	e.runs.Wait()
	return serveErr
}

func (e *Exporter) context() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// cronLogger routes robfig/cron logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
