package middleware

import (
	"context"
	"time"

	"github.com/MotorTG/motortg-crud/internal/api/handlers"
	"github.com/MotorTG/motortg-crud/internal/api/problem"
	"github.com/MotorTG/motortg-crud/internal/metrics"
	"github.com/MotorTG/motortg-crud/internal/realtime"
)

// RecoverEvents turns a handler panic into the sanitized unknown error so
// the peer still gets an acknowledgement.
func RecoverEvents() realtime.EventMiddleware {
	return func(next realtime.EventHandler) realtime.EventHandler {
		return func(ctx context.Context, socket *realtime.Socket, ev realtime.Event) (result any) {
			defer func() {
				if r := recover(); r != nil {
					metrics.EventsTotal.WithLabelValues(socket.Namespace(), ev.Name, "panic").Inc()
					socket.Logger().Error().
						Interface("panic", r).
						Str("event", ev.Name).
						Msg("event handler panicked")
					result = handlers.Fail(problem.Unknown)
				}
			}()
			return next(ctx, socket, ev)
		}
	}
}

// InstrumentEvents records the outcome and latency of every handled event and
// logs it at debug level.
func InstrumentEvents() realtime.EventMiddleware {
	return func(next realtime.EventHandler) realtime.EventHandler {
		return func(ctx context.Context, socket *realtime.Socket, ev realtime.Event) any {
			start := time.Now()
			result := next(ctx, socket, ev)
			duration := time.Since(start)

			outcome := outcomeOf(result)
			metrics.EventsTotal.WithLabelValues(socket.Namespace(), ev.Name, outcome).Inc()
			metrics.EventDuration.WithLabelValues(socket.Namespace(), ev.Name).Observe(duration.Seconds())

			socket.Logger().Debug().
				Str("event", ev.Name).
				Str("outcome", outcome).
				Dur("duration", duration).
				Msg("event")
			return result
		}
	}
}

func outcomeOf(result any) string {
	if res, ok := result.(handlers.Response); ok && res.Failed() {
		return "error"
	}
	return "ok"
}
