// Package problem turns internal failures into the messages peers are allowed
// to see, and writes RFC 7807 bodies for the plain HTTP endpoints.
package problem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MotorTG/motortg-crud/internal/domain/posts"
	"github.com/rs/zerolog"
)

// Messages carried in the "error" field of an acknowledgement.
const (
	InvalidPayload = "invalid payload"
	EntityNotFound = "entity not found"
	Unknown        = "an unknown error has occurred"
	RateLimited    = "rate limit exceeded"
	NotAuthorized  = "not authorized"
)

// Sanitize maps a store failure to a peer-facing message. Anything that is not
// a miss is logged through the context logger and reported as Unknown.
func Sanitize(ctx context.Context, err error) string {
	if errors.Is(err, posts.ErrNotFound) {
		return EntityNotFound
	}
	zerolog.Ctx(ctx).Error().Err(err).Msg("store operation failed")
	return Unknown
}

const contentType = "application/problem+json"

type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// Write renders a problem body. The error text only reaches the body in
// development and test environments; 5xx causes are logged at error level.
func Write(w http.ResponseWriter, r *http.Request, status int, title string, err error, env string) {
	problem := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Instance: r.URL.Path,
	}

	if err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
		if status >= 500 {
			zerolog.Ctx(r.Context()).Error().
				Err(err).
				Int("status", status).
				Str("path", r.URL.Path).
				Msg(title)
		}
	}

	WriteProblem(w, problem)
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	payload, err := json.Marshal(problem)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}
