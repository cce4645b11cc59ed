package remote

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Backend response codes.
const (
	CodeSuccess     = "100"
	CodeSoftMessage = "103"
)

// Response is the decoded backend envelope: one of Success[T], SoftMessage or
// Rejected. Callers switch on the concrete type.
type Response[T any] interface {
	isResponse()
}

type Success[T any] struct {
	Payload T
}

// SoftMessage is an informational answer that carries no payload.
type SoftMessage struct {
	Text string
}

type Rejected struct {
	Code    string
	Message string
}

func (Success[T]) isResponse()  {}
func (SoftMessage) isResponse() {}
func (Rejected) isResponse()    {}

// Decode parses an envelope of the form
//
//	{"code": "100", "message": "...", "payload": {...}}
//
// payloadPath selects a nested value of the payload (gjson syntax); an empty
// path decodes the whole payload.
func Decode[T any](body []byte, payloadPath string) (Response[T], error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid response envelope")
	}

	envelope := gjson.ParseBytes(body)
	code := envelope.Get("code").String()
	message := envelope.Get("message").String()

	switch code {
	case CodeSuccess:
		raw := envelope.Get("payload")
		if payloadPath != "" {
			raw = raw.Get(payloadPath)
		}

		var payload T
		if raw.Exists() && raw.Type != gjson.Null {
			if err := json.Unmarshal([]byte(raw.Raw), &payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload: %w", err)
			}
		}
		return Success[T]{Payload: payload}, nil
	case CodeSoftMessage:
		return SoftMessage{Text: message}, nil
	default:
		return Rejected{Code: code, Message: message}, nil
	}
}
