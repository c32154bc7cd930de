package metrics

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGPUCollectorConfigDefaults(t *testing.T) {
	config := DefaultGPUCollectorConfig()

	if config.CollectionInterval != 5*time.Second {
		t.Errorf("CollectionInterval = %v, want 5s", config.CollectionInterval)
	}
	if config.HistorySize != 720 {
		t.Errorf("HistorySize = %d, want 720", config.HistorySize)
	}
	if config.NvidiaSMIPath != "nvidia-smi" {
		t.Errorf("NvidiaSMIPath = %q, want nvidia-smi", config.NvidiaSMIPath)
	}
}

func TestGPUCollectorNormalizesConfig(t *testing.T) {
	tests := []struct {
		name  string
		in    GPUCollectorConfig
		check func(t *testing.T, c *GPUCollector)
	}{
		{
			name: "sub-second interval replaced",
			in:   GPUCollectorConfig{CollectionInterval: 100 * time.Millisecond, HistorySize: 10},
			check: func(t *testing.T, c *GPUCollector) {
				if c.config.CollectionInterval != 5*time.Second {
					t.Errorf("CollectionInterval = %v, want 5s", c.config.CollectionInterval)
				}
			},
		},
		{
			name: "zero history size replaced",
			in:   GPUCollectorConfig{CollectionInterval: 5 * time.Second},
			check: func(t *testing.T, c *GPUCollector) {
				if c.config.HistorySize != 720 {
					t.Errorf("HistorySize = %d, want 720", c.config.HistorySize)
				}
			},
		},
		{
			name: "empty nvidia-smi path replaced",
			in:   GPUCollectorConfig{CollectionInterval: 5 * time.Second, HistorySize: 10},
			check: func(t *testing.T, c *GPUCollector) {
				if c.config.NvidiaSMIPath != "nvidia-smi" {
					t.Errorf("NvidiaSMIPath = %q, want nvidia-smi", c.config.NvidiaSMIPath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewGPUCollector(tt.in, nil)
			defer c.Stop()
			tt.check(t, c)
		})
	}
}

func TestGPUCollectorSampling(t *testing.T) {
	sample := GPUMetrics{
		Utilization: 75.0,
		Temperature: 65.0,
		MemoryTotal: 8 << 30,
		MemoryUsed:  6 << 30,
		MemoryFree:  2 << 30,
	}
	reader := NewMockGPUReader(sample)

	var forwarded GPUMetrics
	var calls atomic.Int32
	c := NewGPUCollectorWithReader(DefaultGPUCollectorConfig(), reader, func(m GPUMetrics) {
		forwarded = m
		calls.Add(1)
	})

	// Start samples once up front, so one interval never has to elapse.
	c.Start()
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()

	if calls.Load() == 0 {
		t.Fatal("callback never fired after Start")
	}
	if !c.IsAvailable() {
		t.Error("IsAvailable() = false after a good sample")
	}
	if err := c.GetLastError(); err != nil {
		t.Errorf("GetLastError() = %v, want nil", err)
	}
	if got := c.GetCurrentMetrics(); got != sample {
		t.Errorf("GetCurrentMetrics() = %+v, want %+v", got, sample)
	}
	if forwarded != sample {
		t.Errorf("callback received %+v, want %+v", forwarded, sample)
	}
}

func TestGPUCollectorHistory(t *testing.T) {
	feed := func(c *GPUCollector, reader *MockGPUReader, n int) {
		t.Helper()
		for i := 0; i < n; i++ {
			reader.SetMetrics(GPUMetrics{Utilization: float64(i * 10)})
			c.sample()
		}
	}

	t.Run("oldest first", func(t *testing.T) {
		reader := NewMockGPUReader(GPUMetrics{})
		c := NewGPUCollectorWithReader(GPUCollectorConfig{HistorySize: 10}, reader, nil)
		feed(c, reader, 5)

		got := c.GetHistory(3)
		if len(got) != 3 {
			t.Fatalf("GetHistory(3) returned %d samples, want 3", len(got))
		}
		for i, want := range []float64{20, 30, 40} {
			if got[i].Utilization != want {
				t.Errorf("history[%d].Utilization = %v, want %v", i, got[i].Utilization, want)
			}
		}
	})

	t.Run("overwrites oldest at capacity", func(t *testing.T) {
		reader := NewMockGPUReader(GPUMetrics{})
		c := NewGPUCollectorWithReader(GPUCollectorConfig{HistorySize: 3}, reader, nil)
		feed(c, reader, 5)

		if got := c.GetHistorySize(); got != 3 {
			t.Fatalf("GetHistorySize() = %d, want 3", got)
		}
		got := c.GetHistory(3)
		for i, want := range []float64{20, 30, 40} {
			if got[i].Utilization != want {
				t.Errorf("history[%d].Utilization = %v, want %v", i, got[i].Utilization, want)
			}
		}
	})

	t.Run("limit handling", func(t *testing.T) {
		reader := NewMockGPUReader(GPUMetrics{Utilization: 50})
		c := NewGPUCollectorWithReader(GPUCollectorConfig{HistorySize: 10}, reader, nil)
		for i := 0; i < 4; i++ {
			c.sample()
		}

		if got := c.GetHistory(0); len(got) != 0 {
			t.Errorf("GetHistory(0) returned %d samples, want 0", len(got))
		}
		if got := c.GetHistory(-1); len(got) != 0 {
			t.Errorf("GetHistory(-1) returned %d samples, want 0", len(got))
		}
		if got := c.GetHistory(100); len(got) != 4 {
			t.Errorf("GetHistory(100) returned %d samples, want all 4", len(got))
		}
	})
}

func TestGPUCollectorSampleFailure(t *testing.T) {
	t.Run("keeps last good reading", func(t *testing.T) {
		reader := NewMockGPUReader(GPUMetrics{Utilization: 60})
		var calls atomic.Int32
		c := NewGPUCollectorWithReader(GPUCollectorConfig{HistorySize: 5}, reader, func(GPUMetrics) {
			calls.Add(1)
		})

		c.sample()
		reader.SetError(errors.New("NVML: driver/library version mismatch"))
		c.sample()

		if c.IsAvailable() {
			t.Error("IsAvailable() = true after a failed sample")
		}
		if c.GetLastError() == nil {
			t.Error("GetLastError() = nil after a failed sample")
		}
		if got := c.GetCurrentMetrics().Utilization; got != 60 {
			t.Errorf("GetCurrentMetrics().Utilization = %v, want the retained 60", got)
		}
		if got := c.GetHistorySize(); got != 1 {
			t.Errorf("GetHistorySize() = %d, want 1; failed samples must not land in history", got)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("callback fired %d times, want 1", got)
		}
	})

	t.Run("recovers on the next good sample", func(t *testing.T) {
		reader := NewMockGPUReader(GPUMetrics{})
		reader.SetError(errors.New("GPU not available"))
		c := NewGPUCollectorWithReader(GPUCollectorConfig{HistorySize: 5}, reader, nil)

		c.sample()
		if c.IsAvailable() {
			t.Error("IsAvailable() = true while the reader errors")
		}

		reader.SetError(nil)
		reader.SetMetrics(GPUMetrics{Utilization: 80})
		c.sample()

		if !c.IsAvailable() {
			t.Error("IsAvailable() = false after recovery")
		}
		if err := c.GetLastError(); err != nil {
			t.Errorf("GetLastError() = %v after recovery, want nil", err)
		}
		if got := c.GetCurrentMetrics().Utilization; got != 80 {
			t.Errorf("GetCurrentMetrics().Utilization = %v, want 80", got)
		}
	})
}

func TestGPUCollectorConcurrentReaders(t *testing.T) {
	reader := NewMockGPUReader(GPUMetrics{Utilization: 50})
	c := NewGPUCollectorWithReader(GPUCollectorConfig{HistorySize: 100}, reader, nil)
	c.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.GetCurrentMetrics()
				_ = c.IsAvailable()
				_ = c.GetLastError()
				_ = c.GetHistory(10)
				_ = c.GetHistorySize()
			}
		}()
	}
	wg.Wait()
	c.Stop()
}

func TestGPUCollectorStop(t *testing.T) {
	reader := NewMockGPUReader(GPUMetrics{Utilization: 50})
	var calls atomic.Int32
	c := NewGPUCollectorWithReader(GPUCollectorConfig{HistorySize: 5}, reader, func(GPUMetrics) {
		calls.Add(1)
	})

	c.Start()
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Stop is idempotent and no callback fires afterwards.
	c.Stop()
	c.Stop()

	atStop := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != atStop {
		t.Errorf("callback fired after Stop: %d then %d", atStop, got)
	}
}

func TestParseNvidiaSMIOutput(t *testing.T) {
	const mib = 1024 * 1024

	t.Run("well formed", func(t *testing.T) {
		got, err := parseNvidiaSMIOutput("75, 65, 6144, 8192, 2048")
		if err != nil {
			t.Fatalf("parseNvidiaSMIOutput() error = %v", err)
		}
		want := GPUMetrics{
			Utilization: 75,
			Temperature: 65,
			MemoryUsed:  6144 * mib,
			MemoryTotal: 8192 * mib,
			MemoryFree:  2048 * mib,
		}
		if got != want {
			t.Errorf("parseNvidiaSMIOutput() = %+v, want %+v", got, want)
		}
	})

	t.Run("tolerates padding and trailing newline", func(t *testing.T) {
		got, err := parseNvidiaSMIOutput("  50 , 70 , 2048 , 4096 , 2048  \n")
		if err != nil {
			t.Fatalf("parseNvidiaSMIOutput() error = %v", err)
		}
		if got.Utilization != 50 || got.MemoryTotal != 4096*mib {
			t.Errorf("parseNvidiaSMIOutput() = %+v", got)
		}
	})

	t.Run("rejects malformed records", func(t *testing.T) {
		bad := []string{
			"",
			"   \n  ",
			"75, 65, 6144, 8192",
			"abc, 65, 6144, 8192, 2048",
			"75, xyz, 6144, 8192, 2048",
			"75, 65, bad, 8192, 2048",
			"75, 65, 6144, bad, 2048",
			"75, 65, 6144, 8192, bad",
		}
		for _, output := range bad {
			if _, err := parseNvidiaSMIOutput(output); err == nil {
				t.Errorf("parseNvidiaSMIOutput(%q) = nil error, want failure", output)
			}
		}
	})
}

func TestMockGPUReader(t *testing.T) {
	sample := GPUMetrics{Utilization: 42, Temperature: 55, MemoryTotal: 16 << 30, MemoryUsed: 8 << 30, MemoryFree: 8 << 30}
	mock := NewMockGPUReader(sample)

	if mock.CallCount() != 0 {
		t.Errorf("CallCount() = %d before any read, want 0", mock.CallCount())
	}

	got, err := mock.ReadGPUMetrics()
	if err != nil {
		t.Fatalf("ReadGPUMetrics() error = %v", err)
	}
	if got != sample {
		t.Errorf("ReadGPUMetrics() = %+v, want %+v", got, sample)
	}

	mock.SetMetrics(GPUMetrics{Utilization: 75})
	if got, _ := mock.ReadGPUMetrics(); got.Utilization != 75 {
		t.Errorf("after SetMetrics, Utilization = %v, want 75", got.Utilization)
	}

	boom := errors.New("sampling broke")
	mock.SetError(boom)
	if _, err := mock.ReadGPUMetrics(); !errors.Is(err, boom) {
		t.Errorf("after SetError, ReadGPUMetrics() error = %v, want %v", err, boom)
	}

	if mock.CallCount() != 3 {
		t.Errorf("CallCount() = %d, want 3", mock.CallCount())
	}
}
