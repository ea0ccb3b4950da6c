package middleware

import (
	"context"
	"errors"

	"github.com/MotorTG/motortg-crud/internal/api/problem"
	"github.com/MotorTG/motortg-crud/internal/auth"
	"github.com/MotorTG/motortg-crud/internal/metrics"
	"github.com/MotorTG/motortg-crud/internal/realtime"
	"github.com/rs/zerolog"
)

// ErrNotAuthorized is the only refusal a peer ever sees from the gate.
var ErrNotAuthorized = errors.New(problem.NotAuthorized)

// TokenGate admits a connection only when handshake.auth.token is an ES256
// token over expected, signed by the key publicKey names. The key is parsed
// once; if that fails every connection is refused.
func TokenGate(publicKey, expected string, logger zerolog.Logger) realtime.ConnectMiddleware {
	verifier, keyErr := auth.NewVerifier(publicKey, expected)
	if keyErr != nil {
		logger.Error().Err(keyErr).Msg("token gate has no usable public key, refusing every connection")
	}

	return func(_ context.Context, socket *realtime.Socket) error {
		err := keyErr
		if err == nil {
			err = verifier.Verify(socket.Handshake().Token())
		}

		if err != nil {
			reason := rejectReason(err)
			metrics.GateDecisions.WithLabelValues(socket.Namespace(), "rejected", reason).Inc()
			socket.Logger().Warn().
				Err(err).
				Str("reason", reason).
				Str("remote_addr", socket.Handshake().RemoteAddr).
				Msg("connection refused")
			return ErrNotAuthorized
		}

		metrics.GateDecisions.WithLabelValues(socket.Namespace(), "admitted", "").Inc()
		return nil
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, auth.ErrPayloadMismatch):
		return "payload_mismatch"
	case errors.Is(err, auth.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid_token"
	default:
		return "unknown"
	}
}
