package memmon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmolina-dev/orquesta/internal/logging"
)

func sampleMB(mb float64) Sample {
	return Sample{Timestamp: time.Now(), RSSMB: mb}
}

func newTestMonitor(cfg Config) *Monitor {
	return New(cfg, logging.NewNop())
}

func TestCollect_ProducesUsableSample(t *testing.T) {
	m := newTestMonitor(DefaultConfig())
	s := m.collect()

	assert.False(t, s.Timestamp.IsZero())
	assert.Greater(t, s.HeapAllocMB, 0.0)
	assert.Greater(t, s.Goroutines, 0)
}

func TestCheck_WarningThreshold(t *testing.T) {
	m := newTestMonitor(Config{WarningMB: 100, CriticalMB: 200, AlertCooldown: time.Hour})

	m.record(sampleMB(150))
	m.check(sampleMB(150))

	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelWarning, alerts[0].Level)
	assert.Equal(t, 150.0, alerts[0].ValueMB)
}

func TestCheck_CriticalTriggersCleanup(t *testing.T) {
	m := newTestMonitor(Config{WarningMB: 100, CriticalMB: 200, AlertCooldown: time.Hour})
	var cleanups atomic.Int32
	m.OnCritical(func() { cleanups.Add(1) })

	m.check(sampleMB(250))

	alerts := m.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelCritical, alerts[0].Level)
	assert.Equal(t, int32(1), cleanups.Load())
}

func TestCheck_CooldownSuppressesAlertStorm(t *testing.T) {
	m := newTestMonitor(Config{WarningMB: 100, CriticalMB: 1000, AlertCooldown: time.Hour})

	for i := 0; i < 10; i++ {
		m.check(sampleMB(150))
	}

	assert.Len(t, m.Alerts(), 1, "cooldown should collapse repeated alerts")
}

func TestCheck_BelowThresholdsIsQuiet(t *testing.T) {
	m := newTestMonitor(Config{WarningMB: 100, CriticalMB: 200, AlertCooldown: time.Hour})
	m.check(sampleMB(50))
	assert.Empty(t, m.Alerts())
}

func TestHistory_Bounded(t *testing.T) {
	m := newTestMonitor(Config{HistorySize: 5})
	for i := 0; i < 12; i++ {
		m.record(sampleMB(float64(i)))
	}

	history := m.History()
	require.Len(t, history, 5)
	assert.Equal(t, 7.0, history[0].RSSMB, "oldest samples evicted first")
	assert.Equal(t, 11.0, history[4].RSSMB)
}

func TestCurrentTrend(t *testing.T) {
	cases := []struct {
		name  string
		usage []float64
		want  Trend
	}{
		{"increasing", []float64{100, 100, 150, 160}, TrendIncreasing},
		{"decreasing", []float64{160, 150, 100, 100}, TrendDecreasing},
		{"stable", []float64{100, 101, 100, 102}, TrendStable},
		{"too few samples", []float64{100}, TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMonitor(Config{HistorySize: 10})
			for _, u := range tc.usage {
				m.record(sampleMB(u))
			}
			assert.Equal(t, tc.want, m.CurrentTrend())
		})
	}
}

func TestStartStop(t *testing.T) {
	m := newTestMonitor(Config{Interval: 5 * time.Millisecond, HistorySize: 10})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.Latest(); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	_, ok := m.Latest()
	require.True(t, ok, "monitor should have sampled at least once")

	m.Stop()
	m.Stop()
}
