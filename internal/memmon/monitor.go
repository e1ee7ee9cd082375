// Package memmon samples process memory on an interval, keeps a bounded
// rolling history, and raises warning/critical alerts with a cooldown.
// Crossing the critical threshold triggers an injected aggressive-cleanup
// callback.
package memmon

import (
	"context"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/hmolina-dev/orquesta/internal/logging"
)

// Sample captures process memory state at a point in time.
type Sample struct {
	Timestamp   time.Time `json:"timestamp"`
	RSSMB       float64   `json:"rss_mb"`
	HeapAllocMB float64   `json:"heap_alloc_mb"`
	SysPercent  float64   `json:"sys_percent"`
	Goroutines  int       `json:"goroutines"`
}

// Level classifies an alert.
type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is raised when a threshold is crossed.
type Alert struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	ValueMB float64   `json:"value_mb"`
	LimitMB float64   `json:"limit_mb"`
	At      time.Time `json:"at"`
}

// Trend classifies recent memory movement.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Config configures the monitor.
type Config struct {
	Interval      time.Duration
	WarningMB     float64
	CriticalMB    float64
	HistorySize   int
	AlertCooldown time.Duration
}

// DefaultConfig returns sensible monitor defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      10 * time.Second,
		WarningMB:     512,
		CriticalMB:    1024,
		HistorySize:   120,
		AlertCooldown: time.Minute,
	}
}

// Monitor tracks process memory over time. Each engine owns its own
// instance.
type Monitor struct {
	cfg    Config
	logger *logging.Logger

	mu        sync.RWMutex
	history   []Sample
	alerts    []Alert
	lastAlert map[Level]time.Time
	onCrit    func()

	sampleFn func() Sample
	proc     *process.Process

	stopCh  chan struct{}
	stopped atomic.Bool
}

// New creates a memory monitor.
func New(cfg Config, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 120
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	m := &Monitor{
		cfg:       cfg,
		logger:    logger,
		history:   make([]Sample, 0, cfg.HistorySize),
		lastAlert: make(map[Level]time.Time),
		stopCh:    make(chan struct{}),
	}
	m.proc, _ = process.NewProcess(int32(os.Getpid()))
	m.sampleFn = m.collect
	return m
}

// OnCritical installs the aggressive-cleanup callback invoked when the
// critical threshold is crossed.
func (m *Monitor) OnCritical(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCrit = fn
}

// Start begins periodic sampling until the context is done or Stop is
// called.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.tick()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.tick()
			}
		}
	}()
}

// Stop halts the sampling loop.
func (m *Monitor) Stop() {
	if m.stopped.CompareAndSwap(false, true) {
		close(m.stopCh)
	}
}

func (m *Monitor) tick() {
	s := m.sampleFn()
	m.record(s)
	m.check(s)
}

// collect reads current memory usage from gopsutil and the Go runtime.
func (m *Monitor) collect() Sample {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s := Sample{
		Timestamp:   time.Now(),
		HeapAllocMB: float64(memStats.HeapAlloc) / 1024 / 1024,
		Goroutines:  runtime.NumGoroutine(),
	}
	if m.proc != nil {
		if info, err := m.proc.MemoryInfo(); err == nil {
			s.RSSMB = float64(info.RSS) / 1024 / 1024
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		s.SysPercent = vm.UsedPercent
	}
	return s
}

func (m *Monitor) record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, s)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
}

// check raises alerts against the thresholds, honoring the cooldown so a
// sustained spike does not produce an alert storm.
func (m *Monitor) check(s Sample) {
	usage := s.RSSMB
	if usage == 0 {
		usage = s.HeapAllocMB
	}

	switch {
	case m.cfg.CriticalMB > 0 && usage >= m.cfg.CriticalMB:
		if m.raise(LevelCritical, usage, m.cfg.CriticalMB) {
			m.mu.RLock()
			fn := m.onCrit
			m.mu.RUnlock()
			if fn != nil {
				fn()
			}
		}
	case m.cfg.WarningMB > 0 && usage >= m.cfg.WarningMB:
		m.raise(LevelWarning, usage, m.cfg.WarningMB)
	}
}

// raise records an alert unless one of the same level fired within the
// cooldown. Reports whether the alert was actually raised.
func (m *Monitor) raise(level Level, value, limit float64) bool {
	m.mu.Lock()
	if last, ok := m.lastAlert[level]; ok && time.Since(last) < m.cfg.AlertCooldown {
		m.mu.Unlock()
		return false
	}
	m.lastAlert[level] = time.Now()
	a := Alert{
		Level:   level,
		Message: "process memory above threshold",
		ValueMB: value,
		LimitMB: limit,
		At:      time.Now(),
	}
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > 50 {
		m.alerts = m.alerts[len(m.alerts)-50:]
	}
	m.mu.Unlock()

	m.logger.Warn("memory alert",
		"level", string(level),
		"usage_mb", value,
		"limit_mb", limit,
	)
	return true
}

// Critical reports whether the latest sample sits at or above the
// critical threshold.
func (m *Monitor) Critical() bool {
	s, ok := m.Latest()
	if !ok {
		return false
	}
	usage := s.RSSMB
	if usage == 0 {
		usage = s.HeapAllocMB
	}
	return m.cfg.CriticalMB > 0 && usage >= m.cfg.CriticalMB
}

// History returns the recorded samples, oldest first.
func (m *Monitor) History() []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sample, len(m.history))
	copy(out, m.history)
	return out
}

// Alerts returns recent alerts.
func (m *Monitor) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

// Latest returns the most recent sample.
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return Sample{}, false
	}
	return m.history[len(m.history)-1], true
}

// CurrentTrend compares the older and newer halves of the history window
// and classifies the movement. Less than two samples is stable.
func (m *Monitor) CurrentTrend() Trend {
	history := m.History()
	if len(history) < 2 {
		return TrendStable
	}

	mid := len(history) / 2
	older := avgUsage(history[:mid])
	newer := avgUsage(history[mid:])
	if older == 0 {
		return TrendStable
	}

	switch {
	case newer > older*1.05:
		return TrendIncreasing
	case newer < older*0.95:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func avgUsage(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		u := s.RSSMB
		if u == 0 {
			u = s.HeapAllocMB
		}
		sum += u
	}
	return sum / float64(len(samples))
}
