package speedtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"speedtest-cli/pkg/models"
)

// State is a stage of a run. A run only moves forward through the states.
type State int

const (
	Idle State = iota
	ServerSelected
	DownloadMeasured
	UploadMeasured
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ServerSelected:
		return "server selected"
	case DownloadMeasured:
		return "download measured"
	case UploadMeasured:
		return "upload measured"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ServerSelector picks the server a run measures against.
type ServerSelector interface {
	Select(ctx context.Context) (models.RankedServer, error)
}

// ThroughputMeasurer measures aggregate rates in bits per second.
type ThroughputMeasurer interface {
	MeasureDownload(ctx context.Context, baseURL string, sizes []int, runs int) (float64, error)
	MeasureUpload(ctx context.Context, baseURL string, sizes []int, runs int) (float64, error)
}

type Plan struct {
	DownloadSizes []int
	DownloadRuns  int
	UploadSizes   []int
	UploadRuns    int
}

// Test is a single speed test run. It is not reusable: Run may be called once.
type Test struct {
	selector ServerSelector
	measurer ThroughputMeasurer
	plan     Plan
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state State
	runID string
}

func NewTest(selector ServerSelector, measurer ThroughputMeasurer, plan Plan, logger *slog.Logger) *Test {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Test{
		selector: selector,
		measurer: measurer,
		plan:     plan,
		logger:   logger,
		now:      time.Now,
		runID:    uuid.NewString(),
	}
}

// RunID identifies this run in logs and results.
func (t *Test) RunID() string { return t.runID }

// State reports how far the run has progressed.
func (t *Test) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run selects a server, then measures download and upload against it. The
// first failure aborts the run; there is no retry and no partial result.
func (t *Test) Run(ctx context.Context) (models.Result, error) {
	t.mu.Lock()
	if t.state != Idle {
		t.mu.Unlock()
		return models.Result{}, fmt.Errorf("speed test %s already run (state %s)", t.runID, t.state)
	}
	t.mu.Unlock()

	logger := t.logger.With("runID", t.runID)

	server, err := t.selector.Select(ctx)
	if err != nil {
		return models.Result{}, fmt.Errorf("server selection failed: %w", err)
	}
	t.advance(ServerSelected)
	logger.Debug("Server selected", "server", server.URL, "latencyMs", server.LatencyMs, "distanceKm", server.DistanceKm)

	download, err := t.measurer.MeasureDownload(ctx, server.URL, t.plan.DownloadSizes, t.plan.DownloadRuns)
	if err != nil {
		return models.Result{}, err
	}
	t.advance(DownloadMeasured)
	logger.Debug("Download measured", "download", models.FormatRate(download))

	upload, err := t.measurer.MeasureUpload(ctx, server.URL, t.plan.UploadSizes, t.plan.UploadRuns)
	if err != nil {
		return models.Result{}, err
	}
	t.advance(UploadMeasured)
	logger.Debug("Upload measured", "upload", models.FormatRate(upload))

	result := models.NewResult(t.runID, server, download, upload, t.now())
	t.advance(Complete)
	return result, nil
}

func (t *Test) advance(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}
