package syshealth

import (
	"sync"
	"time"
)

const (
	decreaseCooldown = time.Minute
	increaseCooldown = 5 * time.Minute
)

// ConcurrencyScaler adjusts worker concurrency based on host health.
//
// Critical health drops to min immediately. Warning targets half of max.
// Decreases wait decreaseCooldown; increases wait increaseCooldown and grow
// by at most 50% per step.
type ConcurrencyScaler struct {
	monitor        Monitor
	minConcurrency int
	maxConcurrency int
	enabled        bool
	workerName     string

	mu                 sync.Mutex
	currentConcurrency int
	lastAdjustment     time.Time
	now                func() time.Time
}

// NewConcurrencyScaler creates a new ConcurrencyScaler
func NewConcurrencyScaler(monitor Monitor, workerName string, enabled bool, min, max int) *ConcurrencyScaler {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}

	return &ConcurrencyScaler{
		monitor:            monitor,
		workerName:         workerName,
		enabled:            enabled,
		minConcurrency:     min,
		maxConcurrency:     max,
		currentConcurrency: max, // start at max, scale down if needed
		lastAdjustment:     time.Now(),
		now:                time.Now,
	}
}

// zoneOf reads the monitor. Missing or stale metrics count as a warning so
// the worker neither runs flat out nor stalls while the host is unobserved.
func (s *ConcurrencyScaler) zoneOf() HealthZone {
	if s.monitor == nil {
		return HealthZoneWarning
	}
	now := s.now()
	sinceLast := now.Sub(s.lastAdjustment)
	zone := s.zoneOf()
	target := s.targetFor(zone)

	previous := s.currentConcurrency
	switch {
	case target < s.currentConcurrency:
		if zone == HealthZoneCritical || sinceLast >= decreaseCooldown {
			s.currentConcurrency = target
			s.lastAdjustment = now
		}
	case target > s.currentConcurrency:
		if sinceLast >= increaseCooldown {
			step := max(1, s.currentConcurrency/2)
			s.currentConcurrency = min(target, s.currentConcurrency+step)
			s.lastAdjustment = now
		}
	}

	s.currentConcurrency = max(s.minConcurrency, min(s.currentConcurrency, s.maxConcurrency))

	if s.currentConcurrency != previous {
		direction := "down"
		if s.currentConcurrency > previous {
			direction = "up"
		}
		workerAdjustments.WithLabelValues(s.workerName, direction, string(zone)).Inc()
	}
	workerConcurrency.WithLabelValues(s.workerName).Set(float64(s.currentConcurrency))

	return s.currentConcurrency
}
