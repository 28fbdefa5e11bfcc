package service

import "time"

// Backoff — явное состояние «подожди подольше и попробуй весь тик
// ещё раз». Никаких ретраев отдельных вызовов внутри тика нет.
type Backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{base: base, max: max, cur: base}
}

// Fail удваивает паузу до потолка и возвращает новую.
func (b *Backoff) Fail() time.Duration {
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return b.cur
}

// Reset возвращает паузу к базовому интервалу.
func (b *Backoff) Reset() {
	b.cur = b.base
}

// Current — текущая пауза без изменения состояния.
func (b *Backoff) Current() time.Duration {
	return b.cur
}
