package service

import (
	"testing"
	"time"

	"trigger_bot/internal/modules/config"

	"github.com/stretchr/testify/assert"
)

func newTestState() *State {
	cfg := &config.Config{}
	cfg.RunInterval = 30 * time.Second
	return NewState(cfg)
}

func TestStateHealthy(t *testing.T) {
	s := newTestState()

	// тиков ещё не было
	assert.False(t, s.Healthy())
	assert.True(t, s.LastRun().IsZero())

	s.TouchRun(time.Now())
	assert.True(t, s.Healthy())

	// воркер молчит дольше двух интервалов
	s.TouchRun(time.Now().Add(-2 * time.Minute))
	assert.False(t, s.Healthy())
}

func TestStateReset(t *testing.T) {
	s := newTestState()
	s.TouchRun(time.Now())
	s.SetLastRunError(true)
	s.SetSleepInterval(time.Minute)

	s.Reset()
	assert.True(t, s.LastRun().IsZero())
	assert.False(t, s.LastRunError())
	assert.Equal(t, 30*time.Second, s.SleepInterval())
}
