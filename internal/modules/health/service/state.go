package service

import (
	"sync/atomic"
	"time"

	"trigger_bot/internal/modules/config"
)

// State — RunState воркера: им владеет только воркер, все остальные
// (health-эндпоинты, /ping) читают.
type State struct {
	startedAt   time.Time
	runInterval time.Duration

	lastRunUnixNano atomic.Int64
	lastRunErr      atomic.Bool
	sleepNanos      atomic.Int64
}

func NewState(cfg *config.Config) *State {
	s := &State{
		startedAt:   time.Now(),
		runInterval: cfg.RunInterval,
	}
	s.sleepNanos.Store(int64(cfg.RunInterval))
	return s
}

// Reset — к чистому состоянию перед запуском цикла.
func (s *State) Reset() {
	s.lastRunUnixNano.Store(0)
	s.lastRunErr.Store(false)
	s.sleepNanos.Store(int64(s.runInterval))
}

func (s *State) TouchRun(t time.Time) { s.lastRunUnixNano.Store(t.UnixNano()) }
func (s *State) LastRun() time.Time {
	u := s.lastRunUnixNano.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(0, u)
}

func (s *State) SetLastRunError(v bool) { s.lastRunErr.Store(v) }
func (s *State) LastRunError() bool     { return s.lastRunErr.Load() }

func (s *State) SetSleepInterval(d time.Duration) { s.sleepNanos.Store(int64(d)) }
func (s *State) SleepInterval() time.Duration     { return time.Duration(s.sleepNanos.Load()) }

// Healthy — воркер отмечался за последние два интервала.
func (s *State) Healthy() bool {
	lr := s.LastRun()
	return !lr.IsZero() && time.Since(lr) < 2*s.runInterval
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
