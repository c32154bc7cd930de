// Package metrics: this file contains the GPUCollector organism, which
// samples the card the model runs on and feeds the MetricsStore while
// the generation device is CUDA.
package metrics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GPUReader reads one sample of GPU state. The production implementation
// shells out to nvidia-smi; tests substitute a mock.
type GPUReader interface {
	ReadGPUMetrics() (GPUMetrics, error)
}

// GPUCollectorConfig configures the GPUCollector.
type GPUCollectorConfig struct {
	// CollectionInterval is the sampling period. Values under a second
	// are replaced with the default.
	CollectionInterval time.Duration

	// HistorySize is the number of retained samples. The default keeps
	// one hour at the default interval.
	HistorySize int

	// NvidiaSMIPath overrides where nvidia-smi is found. Empty means
	// resolve "nvidia-smi" through PATH.
	NvidiaSMIPath string
}

// DefaultGPUCollectorConfig returns the production defaults: a sample
// every 5 seconds, 720 retained.
func DefaultGPUCollectorConfig() GPUCollectorConfig {
	return GPUCollectorConfig{
		CollectionInterval: 5 * time.Second,
		HistorySize:        720,
		NvidiaSMIPath:      "nvidia-smi",
	}
}

// sampleRing is a fixed-capacity circular buffer of GPU samples.
type sampleRing struct {
	buf  []GPUMetrics
	head int // next write slot
	n    int // filled slots, at most len(buf)
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]GPUMetrics, capacity)}
}

func (r *sampleRing) push(m GPUMetrics) {
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// tail returns the most recent limit samples, oldest first.
func (r *sampleRing) tail(limit int) []GPUMetrics {
	if limit <= 0 || r.n == 0 {
		return []GPUMetrics{}
	}
	if limit > r.n {
		limit = r.n
	}
	out := make([]GPUMetrics, limit)
	start := r.head - limit + len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// GPUCollector is an organism that periodically samples GPU state.
// Only the first GPU is sampled; that is the card the pipeline holds.
// Each successful sample lands in a circular history for the metrics
// snapshot and is forwarded to the MetricsStore through the callback.
// A failed sample flips the collector to unavailable but keeps the last
// good reading.
type GPUCollector struct {
	mu sync.RWMutex

	config GPUCollectorConfig
	reader GPUReader

	ring *sampleRing

	lastSample GPUMetrics
	available  bool
	lastErr    error

	onSample func(GPUMetrics)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGPUCollector builds a collector that reads through nvidia-smi.
// The onSample callback fires after every successful sample; it runs on
// the collector goroutine, so keep it quick.
func NewGPUCollector(config GPUCollectorConfig, onSample func(GPUMetrics)) *GPUCollector {
	if config.CollectionInterval < time.Second {
		config.CollectionInterval = 5 * time.Second
	}
	if config.HistorySize < 1 {
		config.HistorySize = 720
	}
	if config.NvidiaSMIPath == "" {
		config.NvidiaSMIPath = "nvidia-smi"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &GPUCollector{
		config:   config,
		ring:     newSampleRing(config.HistorySize),
		onSample: onSample,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// NewGPUCollectorWithReader builds a collector over a custom reader.
// Tests use this to avoid the nvidia-smi dependency.
func NewGPUCollectorWithReader(config GPUCollectorConfig, reader GPUReader, onSample func(GPUMetrics)) *GPUCollector {
	c := NewGPUCollector(config, onSample)
	c.reader = reader
	return c
}

// Start launches the sampling goroutine. The first sample is taken
// immediately rather than one interval in.
func (c *GPUCollector) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop ends sampling and blocks until the goroutine has exited.
func (c *GPUCollector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// IsAvailable reports whether the most recent sample succeeded.
func (c *GPUCollector) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// GetLastError returns the error from the most recent failed sample, or
// nil after a success.
func (c *GPUCollector) GetLastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// GetCurrentMetrics returns the last good sample. The zero value means
// no sample has succeeded yet.
func (c *GPUCollector) GetCurrentMetrics() GPUMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSample
}

// GetHistory returns up to limit retained samples, oldest first.
func (c *GPUCollector) GetHistory(limit int) []GPUMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring.tail(limit)
}

// GetHistorySize returns the number of samples currently retained.
func (c *GPUCollector) GetHistorySize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring.n
}

func (c *GPUCollector) run() {
	defer c.wg.Done()

	c.sample()

	ticker := time.NewTicker(c.config.CollectionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *GPUCollector) sample() {
	read := c.readNvidiaSMI
	if c.reader != nil {
		read = c.reader.ReadGPUMetrics
	}
	m, err := read()

	c.mu.Lock()
	if err != nil {
		// Keep the last good reading; just mark the card unavailable.
		c.available = false
		c.lastErr = err
		c.mu.Unlock()
		return
	}
	c.available = true
	c.lastErr = nil
	c.lastSample = m
	c.ring.push(m)
	c.mu.Unlock()

	// Outside the lock; the callback takes the store's own lock.
	if c.onSample != nil {
		c.onSample(m)
	}
}

// smiQuery names the columns requested from nvidia-smi, in order.
const smiQuery = "utilization.gpu,temperature.gpu,memory.used,memory.total,memory.free"

func (c *GPUCollector) readNvidiaSMI() (GPUMetrics, error) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.config.NvidiaSMIPath,
		"--query-gpu="+smiQuery,
		"--format=csv,noheader,nounits")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return GPUMetrics{}, fmt.Errorf("nvidia-smi: %w (stderr: %s)", err, stderr.String())
	}

	return parseNvidiaSMIOutput(stdout.String())
}

// parseNvidiaSMIOutput decodes one CSV record in smiQuery column order.
// Memory columns arrive in MiB and are converted to bytes.
func parseNvidiaSMIOutput(output string) (GPUMetrics, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return GPUMetrics{}, fmt.Errorf("nvidia-smi produced no output")
	}

	record, err := csv.NewReader(strings.NewReader(output)).Read()
	if err != nil {
		return GPUMetrics{}, fmt.Errorf("malformed csv record: %w", err)
	}
	if len(record) < 5 {
		return GPUMetrics{}, fmt.Errorf("unexpected field count: got %d, expected 5", len(record))
	}

	var parseErr error
	field := func(i int, name string) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return v
	}

	util := field(0, "utilization")
	temp := field(1, "temperature")
	used := field(2, "memory used")
	total := field(3, "memory total")
	free := field(4, "memory free")
	if parseErr != nil {
		return GPUMetrics{}, parseErr
	}

	const mib = 1024 * 1024
	return GPUMetrics{
		Utilization: util,
		Temperature: temp,
		MemoryUsed:  int64(used * mib),
		MemoryTotal: int64(total * mib),
		MemoryFree:  int64(free * mib),
	}, nil
}

// MockGPUReader is a configurable GPUReader for tests.
type MockGPUReader struct {
	mu      sync.Mutex
	metrics GPUMetrics
	err     error
	calls   int
}

// NewMockGPUReader returns a mock that always yields the given sample.
func NewMockGPUReader(metrics GPUMetrics) *MockGPUReader {
	return &MockGPUReader{metrics: metrics}
}

// SetMetrics replaces the sample the mock returns.
func (m *MockGPUReader) SetMetrics(metrics GPUMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// SetError makes ReadGPUMetrics fail until cleared with SetError(nil).
func (m *MockGPUReader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ReadGPUMetrics returns the configured sample or error.
func (m *MockGPUReader) ReadGPUMetrics() (GPUMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return GPUMetrics{}, m.err
	}
	return m.metrics, nil
}

// CallCount reports how many times ReadGPUMetrics has been called.
func (m *MockGPUReader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
