// Package throughput measures download and upload rates by running many
// transfers against a server at once and timing the whole batch.
package throughput

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"speedtest-cli/pkg/fetch"
	"speedtest-cli/pkg/models"
)

var ErrNoTransfers = errors.New("no transfers scheduled")

const payloadAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Transport is the HTTP capability transfers are made with.
type Transport interface {
	Get(ctx context.Context, rawURL string) (*fetch.Result, error)
	PostForm(ctx context.Context, rawURL string, form url.Values) (*fetch.Result, error)
}

// Measurer runs one task per transfer with no concurrency limit: capping
// the number of parallel transfers would cap the rate being measured.
// Callers choose sizes and runs with that in mind.
type Measurer struct {
	client Transport
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMeasurer(client Transport, logger *slog.Logger) *Measurer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Measurer{
		client: client,
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MeasureDownload returns the aggregate download rate in bits per second.
func (m *Measurer) MeasureDownload(ctx context.Context, baseURL string, sizes []int, runs int) (float64, error) {
	res, err := m.Download(ctx, baseURL, sizes, runs)
	if err != nil {
		return 0, err
	}
	return res.Rate(), nil
}

// MeasureUpload returns the aggregate upload rate in bits per second.
func (m *Measurer) MeasureUpload(ctx context.Context, baseURL string, sizes []int, runs int) (float64, error) {
	res, err := m.Upload(ctx, baseURL, sizes, runs)
	if err != nil {
		return 0, err
	}
	return res.Rate(), nil
}

// Download fetches random{size}x{size}.jpg runs times for every size, all at once.
func (m *Measurer) Download(ctx context.Context, baseURL string, sizes []int, runs int) (models.MeasurementResult, error) {
	var urls []string
	for _, size := range sizes {
		for i := 0; i < runs; i++ {
			urls = append(urls, fmt.Sprintf("%s/speedtest/random%dx%d.jpg", baseURL, size, size))
		}
	}

	m.logger.Debug("Starting download tests", "server", baseURL, "transfers", len(urls))
	res, err := m.run(ctx, len(urls), func(ctx context.Context, i int) (int64, error) {
		m.logger.Debug("Downloading", "url", urls[i])
		r, err := m.client.Get(ctx, urls[i])
		if err != nil {
			return 0, err
		}
		if err := r.CheckStatus(); err != nil {
			return 0, err
		}
		return int64(len(r.Body)), nil
	})
	if err != nil {
		return models.MeasurementResult{}, fmt.Errorf("download failed: %w", err)
	}

	m.logger.Debug("Download finished",
		"bytes", res.TotalBytes,
		"seconds", res.Span.Seconds(),
		"transfers", res.Samples)
	return res, nil
}

// Upload posts runs random payloads of every size, all at once. Payloads are
// generated before the clock starts.
func (m *Measurer) Upload(ctx context.Context, baseURL string, sizes []int, runs int) (models.MeasurementResult, error) {
	var payloads []string
	for _, size := range sizes {
		for i := 0; i < runs; i++ {
			payloads = append(payloads, m.randomPayload(size))
		}
	}

	target := baseURL + "/speedtest/upload.php"
	m.logger.Debug("Starting upload tests", "url", target, "transfers", len(payloads))
	res, err := m.run(ctx, len(payloads), func(ctx context.Context, i int) (int64, error) {
		m.logger.Debug("Uploading", "url", target, "size", len(payloads[i]))
		r, err := m.client.PostForm(ctx, target, url.Values{"content": {payloads[i]}})
		if err != nil {
			return 0, err
		}
		if err := r.CheckStatus(); err != nil {
			return 0, err
		}
		return ParseUploadEcho(r.Body)
	})
	if err != nil {
		return models.MeasurementResult{}, fmt.Errorf("upload failed: %w", err)
	}

	m.logger.Debug("Upload finished",
		"bytes", res.TotalBytes,
		"seconds", res.Span.Seconds(),
		"transfers", res.Samples)
	return res, nil
}

// run launches n tasks together and joins them. Each task writes only its
// own slot; the span covers launch of the first task to completion of the
// last. The first failure cancels the remaining tasks and fails the batch.
func (m *Measurer) run(ctx context.Context, n int, task func(ctx context.Context, i int) (int64, error)) (models.MeasurementResult, error) {
	if n == 0 {
		return models.MeasurementResult{}, ErrNoTransfers
	}

	samples := make([]models.TransferSample, n)
	g, gctx := errgroup.WithContext(ctx)

	start := m.now()
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			taskStart := time.Now()
			b, err := task(gctx, i)
			if err != nil {
				return err
			}
			samples[i] = models.TransferSample{Bytes: b, Elapsed: time.Since(taskStart)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.MeasurementResult{}, err
	}
	span := m.now().Sub(start)

	res := models.MeasurementResult{Span: span, Samples: n}
	for _, s := range samples {
		res.TotalBytes += s.Bytes
	}
	return res, nil
}

func (m *Measurer) randomPayload(size int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := make([]byte, size)
	for i := range b {
		b[i] = payloadAlphabet[m.rng.Intn(len(payloadAlphabet))]
	}
	return string(b)
}

// ParseUploadEcho reads the byte count from an upload.php response such as
// "size=483968".
func ParseUploadEcho(body []byte) (int64, error) {
	_, value, ok := strings.Cut(string(body), "=")
	if !ok {
		return 0, fmt.Errorf("%w: upload echo %q", models.ErrMalformedResponse, truncate(body))
	}
	value = strings.TrimSpace(value)
	end := 0
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("%w: upload echo %q", models.ErrMalformedResponse, truncate(body))
	}
	n, err := strconv.ParseInt(value[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: upload echo %q: %v", models.ErrMalformedResponse, truncate(body), err)
	}
	return n, nil
}

func truncate(b []byte) string {
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}
