package middleware

import (
	"context"
	"net/http"

	"github.com/MotorTG/motortg-crud/internal/api/handlers"
	"github.com/MotorTG/motortg-crud/internal/realtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MotorTG/motortg-crud/internal/api"

// Tracing creates a server span per HTTP request and propagates W3C trace
// context. For /socket the span only covers the upgrade; events get their own
// spans from TraceEvents.
//
// Span attributes include:
//   - http.method, http.url, http.route, http.scheme
//   - http.user_agent
//   - request_id: correlation ID from CorrelationID
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	propagator := otel.GetTextMapPropagator()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(r.Method),
				semconv.HTTPURL(r.URL.String()),
				semconv.HTTPRoute(r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
				semconv.HTTPScheme(schemeFromRequest(r)),
				semconv.NetHostName(r.Host),
			),
		)
		defer span.End()

		if requestID := GetRequestID(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		ww := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.statusOr(http.StatusOK)
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= 400 {
			span.SetStatus(codes.Error, http.StatusText(status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
	})
}

// TraceEvents opens one span per event. Failed responses mark the span as an
// error with the sanitized message.
func TraceEvents() realtime.EventMiddleware {
	tracer := otel.Tracer(tracerName)

	return func(next realtime.EventHandler) realtime.EventHandler {
		return func(ctx context.Context, socket *realtime.Socket, ev realtime.Event) any {
			ctx, span := tracer.Start(ctx, "event "+ev.Name,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("realtime.namespace", socket.Namespace()),
					attribute.String("realtime.event", ev.Name),
					attribute.String("realtime.socket_id", socket.ID()),
					attribute.Int("realtime.args", len(ev.Args)),
				),
			)
			defer span.End()

			result := next(ctx, socket, ev)
			if res, ok := result.(handlers.Response); ok && res.Failed() {
				span.SetStatus(codes.Error, res.Error)
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return result
		}
	}
}

func schemeFromRequest(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
