package handlers

import (
	"encoding/json"

	"github.com/MotorTG/motortg-crud/internal/api/problem"
	"github.com/MotorTG/motortg-crud/internal/domain/posts"
)

// Response is what a handler hands back to the peer's acknowledgement. It
// encodes as {"data": ...}, as {"error": ..., "errorDetails": [...]}, or, for
// direct responses, as the bare value.
type Response struct {
	Data         any
	Error        string
	ErrorDetails []posts.FieldError
	direct       bool
}

// OK wraps value in a data envelope.
func OK(value any) Response {
	return Response{Data: value}
}

// Direct returns value without an envelope.
func Direct(value any) Response {
	return Response{Data: value, direct: true}
}

func Fail(message string) Response {
	return Response{Error: message}
}

func Invalid(details []posts.FieldError) Response {
	return Response{Error: problem.InvalidPayload, ErrorDetails: details}
}

func (r Response) Failed() bool {
	return r.Error != ""
}

func (r Response) IsDirect() bool {
	return r.direct
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.Error != "":
		return json.Marshal(struct {
			Error        string             `json:"error"`
			ErrorDetails []posts.FieldError `json:"errorDetails,omitempty"`
		}{r.Error, r.ErrorDetails})
	case r.direct:
		return json.Marshal(r.Data)
	default:
		return json.Marshal(struct {
			Data any `json:"data"`
		}{r.Data})
	}
}
