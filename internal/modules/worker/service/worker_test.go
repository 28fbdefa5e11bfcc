package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"trigger_bot/internal/modules/config"
	healthsvc "trigger_bot/internal/modules/health/service"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTicker отдаёт заранее заданные результаты тиков и сигналит о
// каждом выполненном тике в канал ran.
type scriptedTicker struct {
	mu      sync.Mutex
	results []error
	ran     chan error
}

func newScriptedTicker(results ...error) *scriptedTicker {
	return &scriptedTicker{results: results, ran: make(chan error, 64)}
}

func (s *scriptedTicker) RunTick(context.Context) error {
	s.mu.Lock()
	var err error
	if len(s.results) > 0 {
		err = s.results[0]
		s.results = s.results[1:]
	}
	s.mu.Unlock()
	s.ran <- err
	return err
}

func (s *scriptedTicker) waitTicks(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for tick %d of %d", i+1, n)
		}
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) Sendf(format string, args ...any) { n.Send(fmt.Sprintf(format, args...)) }

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.msgs))
	copy(out, n.msgs)
	return out
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.RunInterval = 5 * time.Millisecond
	cfg.MaxRunInterval = 40 * time.Millisecond
	return cfg
}

func TestWorkerRunsAndStops(t *testing.T) {
	cfg := testConfig()
	tick := newScriptedTicker()
	n := &recordingNotifier{}
	w := New(cfg, tick, n, healthsvc.NewState(cfg))

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, StatusRunning, w.Status())
	assert.Error(t, w.Start(context.Background()), "second Start must fail")

	tick.waitTicks(t, 2)
	w.Stop()
	assert.Equal(t, StatusStopped, w.Status())

	// после Stop тиков больше нет
	count := len(tick.ran)
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, len(tick.ran), count+1, "no new ticks after Stop")
}

func TestWorkerBackoffOnErrors(t *testing.T) {
	cfg := testConfig()
	tick := newScriptedTicker(
		errors.New("boom 1"),
		errors.New("boom 2"),
	)
	n := &recordingNotifier{}
	state := healthsvc.NewState(cfg)
	w := New(cfg, tick, n, state)

	require.NoError(t, w.Start(context.Background()))
	tick.waitTicks(t, 3) // две ошибки и успех
	w.Stop()

	msgs := n.messages()
	require.GreaterOrEqual(t, len(msgs), 3)
	assert.Contains(t, msgs[0], "boom 1")
	assert.Contains(t, msgs[0], "sleep_time: 10ms")
	assert.Contains(t, msgs[1], "boom 2")
	assert.Contains(t, msgs[1], "sleep_time: 20ms")
	// после восстановления — одноразовое уведомление
	assert.Equal(t, "Completed successful run.", msgs[2])
	assert.False(t, state.LastRunError())
}

func TestWorkerRecoveryMessageIsOneTime(t *testing.T) {
	cfg := testConfig()
	tick := newScriptedTicker(errors.New("boom"))
	n := &recordingNotifier{}
	w := New(cfg, tick, n, healthsvc.NewState(cfg))

	require.NoError(t, w.Start(context.Background()))
	tick.waitTicks(t, 4) // ошибка, успех и ещё пара успехов
	w.Stop()

	recovered := 0
	for _, m := range n.messages() {
		if m == "Completed successful run." {
			recovered++
		}
	}
	assert.Equal(t, 1, recovered)
}

func TestWorkerSleepResetsAfterSuccess(t *testing.T) {
	cfg := testConfig()
	tick := newScriptedTicker(errors.New("boom"))
	n := &recordingNotifier{}
	state := healthsvc.NewState(cfg)
	w := New(cfg, tick, n, state)

	require.NoError(t, w.Start(context.Background()))
	tick.waitTicks(t, 3)
	w.Stop()

	assert.Equal(t, cfg.RunInterval, state.SleepInterval())
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	tick := newScriptedTicker()
	n := &recordingNotifier{}
	w := New(cfg, tick, n, healthsvc.NewState(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	tick.waitTicks(t, 1)
	cancel()
	// Stop после отмены контекста возвращается и не виснет
	w.Stop()
}

func TestClassifyError(t *testing.T) {
	plain := errors.New("something broke")
	got := classifyError(plain)
	assert.Contains(t, got, "*errors.fundamental")
	assert.Contains(t, got, "something broke")

	wrapped := errors.Wrap(context.DeadlineExceeded, "fetch prices")
	assert.Equal(t, wrapped.Error(), classifyError(wrapped))
}
