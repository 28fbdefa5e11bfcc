package service

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// APIError — ошибка REST API биржи с кодом из тела ответа.
type APIError struct {
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api: http=%d code=%d %s", e.HTTPStatus, e.Code, e.Msg)
}

// Throttled — rate limit или бан. HTTP 429/418 и коды -1003/-1000:
// такие ошибки лечатся ожиданием, в уведомление идёт короткий текст.
func (e *APIError) Throttled() bool {
	if e.HTTPStatus == 429 || e.HTTPStatus == 418 {
		return true
	}
	return e.Code == -1003 || e.Code == -1000
}

func IsThrottled(err error) bool {
	var api *APIError
	return errors.As(err, &api) && api.Throttled()
}

// IsTimeout — сетевой таймаут чтения либо истёкший дедлайн.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ValidationError — биржа отклонила ордер на dry-run проверке.
// Триггер в этом случае не создаётся.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "order validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
