package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trigger_bot/internal/modules/config"
	healthsvc "trigger_bot/internal/modules/health/service"
	pricefeedsvc "trigger_bot/internal/modules/pricefeed/service"
	"trigger_bot/internal/notify"
	"trigger_bot/pkg/logger"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

// Ticker — одно прохождение цикла оценки триггеров.
type Ticker interface {
	RunTick(ctx context.Context) error
}

type Status uint8

const (
	StatusIdle Status = iota
	StatusRunning
	StatusStopped
)

// Worker гоняет тики с интервалом и бэкоффом. Ошибка тика никогда не
// роняет цикл: удваиваем паузу и пробуем снова.
type Worker struct {
	tick  Ticker
	n     notify.Notifier
	state *healthsvc.State

	interval time.Duration
	backoff  *Backoff

	mu     sync.Mutex
	status Status
	stopCh chan struct{}
	doneCh chan struct{}
}

func New(cfg *config.Config, tick Ticker, n notify.Notifier, state *healthsvc.State) *Worker {
	return &Worker{
		tick:     tick,
		n:        n,
		state:    state,
		interval: cfg.RunInterval,
		backoff:  NewBackoff(cfg.RunInterval, cfg.MaxRunInterval),
	}
}

func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusRunning {
		return errors.New("worker is already running")
	}

	w.status = StatusRunning
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.backoff.Reset()
	w.state.Reset()

	go w.loop(ctx)
	logger.Info("worker started, interval %s", w.interval)
	return nil
}

// Stop будит цикл и ждёт его выхода: после возврата ни один тик не
// выполняется.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.status != StatusRunning {
		w.mu.Unlock()
		return
	}
	w.status = StatusStopped
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	logger.Debug("waiting for loop shutdown...")
	<-done
	logger.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		logger.Debug("loop")
		var sleep time.Duration
		if err := w.runTick(ctx); err != nil {
			w.state.SetLastRunError(true)
			sleep = w.backoff.Fail()
			msg := classifyError(err)
			logger.Error("%s", msg)
			w.n.Sendf("%s\n\nsleep_time: %s", msg, sleep)
		} else {
			sleep = w.interval
			w.backoff.Reset()
			if w.state.LastRunError() {
				w.state.SetLastRunError(false)
				w.n.Send("Completed successful run.")
			}
		}
		w.state.SetSleepInterval(sleep)

		// сон прерывается сигналом остановки: Stop не ждёт бэкофф
		timer := time.NewTimer(sleep)
		select {
		case <-w.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) runTick(ctx context.Context) error {
	span := opentracing.StartSpan("worker.tick")
	defer span.Finish()

	ticksTotal.Inc()
	w.state.TouchRun(time.Now())

	err := w.tick.RunTick(opentracing.ContextWithSpan(ctx, span))
	if err != nil {
		tickErrorsTotal.Inc()
		span.SetTag("error", true)
	}
	return err
}

// classifyError: rate limit/бан и сетевые таймауты — короткий текст,
// это ожидаемые ошибки. Всё прочее — полный диагноз со стеком,
// такое надо разбирать руками.
func classifyError(err error) string {
	if pricefeedsvc.IsThrottled(err) || pricefeedsvc.IsTimeout(err) {
		return err.Error()
	}
	return fmt.Sprintf("Got %T: %+v", errors.Cause(err), err)
}
