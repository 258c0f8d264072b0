package syshealth

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/medgraph/medgraph/pkg/logger"
)

// Component weights of the penalty; they sum to 1.
const (
	ioWeight  = 0.40
	cpuWeight = 0.35
	memWeight = 0.25
)

type sysHealthMonitor struct {
	cfg     *Config
	log     *slog.Logger
	metrics *HealthMetrics
	mu      sync.RWMutex

	ticker  *time.Ticker
	stopCh  chan struct{}
	running bool

	lastCPUTimes   *cpu.TimesStat
	consecFailures int

	// Collection functions, replaced in tests
	getLoadAvg  func(context.Context) (*load.AvgStat, error)
	getCPUTimes func(context.Context, bool) ([]cpu.TimesStat, error)
	getMemStats func(context.Context) (*mem.VirtualMemoryStat, error)
	getCPUCores func() int
}

// NewMonitor creates a host health monitor. A nil cfg uses DefaultConfig.
func NewMonitor(cfg *Config, log *slog.Logger) Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}
	return &sysHealthMonitor{
		cfg: cfg,
		log: log.With(logger.Scope("syshealth.monitor")),
		metrics: &HealthMetrics{
			Score: 100,
			Zone:  HealthZoneSafe,
		},
		getLoadAvg:  load.AvgWithContext,
		getCPUTimes: cpu.TimesWithContext,
		getMemStats: mem.VirtualMemoryWithContext,
		getCPUCores: runtime.NumCPU,
	}
}

func (m *sysHealthMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.ticker = time.NewTicker(m.cfg.CollectionInterval)

	go func(ticker *time.Ticker, stop <-chan struct{}) {
		m.collect()
		for {
			select {
			case <-ticker.C:
				m.collect()
			case <-stop:
				return
			}
		}
	}(m.ticker, m.stopCh)

	m.log.Info("system health monitor started", slog.Duration("interval", m.cfg.CollectionInterval))
	return nil
}

func (m *sysHealthMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	m.ticker.Stop()
	close(m.stopCh)
	m.log.Info("system health monitor stopped")
	return nil
}

func (m *sysHealthMonitor) GetHealth() *HealthMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := *m.metrics
	if time.Since(snapshot.Timestamp) > m.cfg.StalenessThreshold {
		snapshot.Stale = true
	}
	return &snapshot
}

func (m *sysHealthMonitor) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CollectionTimeout)
	defer cancel()

	m.mu.RLock()
	loadAvg := m.metrics.CPULoadAvg
	ioWait := m.metrics.IOWaitPercent
	memPercent := m.metrics.MemoryPercent
	m.mu.RUnlock()

	// Each metric keeps its previous value when its collector fails.
	success := true

	if l, err := m.getLoadAvg(ctx); err == nil {
		loadAvg = l.Load1
	} else {
		success = false
		m.log.Error("failed to collect load average", logger.Error(err))
	}

	if times, err := m.getCPUTimes(ctx, false); err != nil {
		success = false
		m.log.Error("failed to collect cpu times", logger.Error(err))
	} else if len(times) == 0 {
		success = false
		m.log.Error("failed to collect cpu times: no data returned")
	} else {
		t := times[0]
		if m.lastCPUTimes != nil {
			deltaTotal := t.Total() - m.lastCPUTimes.Total()
			if deltaTotal > 0 {
				ioWait = (t.Iowait - m.lastCPUTimes.Iowait) / deltaTotal * 100.0
			}
		}
		m.lastCPUTimes = &t
	}

	if v, err := m.getMemStats(ctx); err == nil {
		memPercent = v.UsedPercent
	} else {
		success = false
		m.log.Error("failed to collect memory stats", logger.Error(err))
	}

	if success {
		m.consecFailures = 0
	} else {
		m.consecFailures++
		if m.consecFailures >= 3 {
			m.log.Error("persistent metric collection failures", slog.Int("failures", m.consecFailures))
		}
	}

	cpuCores := float64(m.getCPUCores())
	if cpuCores == 0 {
		cpuCores = 1
	}

	ioScore := componentPenalty(ioWait, m.cfg.IOWaitWarningPercent, m.cfg.IOWaitCriticalPercent)
	cpuScore := componentPenalty(loadAvg/cpuCores*100.0, m.cfg.CPULoadWarningFactor*100.0, m.cfg.CPULoadCriticalFactor*100.0)
	memScore := componentPenalty(memPercent, m.cfg.MemoryWarningPercent, m.cfg.MemoryCriticalPercent)

	penalty := ioScore*ioWeight + cpuScore*cpuWeight + memScore*memWeight
	score := max(100-int(penalty), 0)
	zone := zoneFor(score)

	m.mu.Lock()
	if zone != m.metrics.Zone {
		m.log.Warn("system health zone transition",
			slog.String("old_zone", string(m.metrics.Zone)),
			slog.String("new_zone", string(zone)),
			slog.Int("score", score))
	}
	m.metrics.Score = score
	m.metrics.Zone = zone
	m.metrics.CPULoadAvg = loadAvg
	m.metrics.IOWaitPercent = ioWait
	m.metrics.MemoryPercent = memPercent
	m.metrics.Timestamp = time.Now()
	m.metrics.Stale = false
	m.mu.Unlock()

	healthScore.Set(float64(score))
	ioWaitPercent.Set(ioWait)
	cpuLoadAvg.WithLabelValues("1m").Set(loadAvg)
	memoryUtilization.Set(memPercent)

	m.log.Debug("system health metrics collected",
		slog.Int("score", score),
		slog.String("zone", string(zone)),
		slog.Float64("io_wait", ioWait),
		slog.Float64("cpu_load", loadAvg),
		slog.Float64("mem", memPercent))
}

func zoneFor(score int) HealthZone {
	switch {
	case score <= 33:
		return HealthZoneCritical
	case score <= 66:
		return HealthZoneWarning
	default:
		return HealthZoneSafe
	}
}

// componentPenalty returns 0, 50 or 100 depending on the thresholds crossed.
func componentPenalty(value, warning, critical float64) float64 {
	if value >= critical {
		return 100.0
	}
	if value >= warning {
		return 50.0
	}
	return 0.0
}
