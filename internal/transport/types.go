// Package transport defines the boundary between delivery logic and the
// Bot API drivers.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// MethodSendMessage is the only Bot API method telegrama calls.
const MethodSendMessage = "sendMessage"

// Request is one Bot API call. Body must be JSON-marshalable.
type Request struct {
	Token  string
	Method string
	Body   any
}

// SendMessageRequest is the request body for sendMessage.
//
// ParseMode has no omitempty: plain text is sent as "" rather than left out.
type SendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// RawResponse is the decoded Bot API envelope.
// StatusCode is 0 when the driver does not expose it.
type RawResponse struct {
	StatusCode  int
	OK          bool
	ErrorCode   int
	Description string
	Result      json.RawMessage
	RetryAfter  int
}

// Success reports whether the API accepted the call.
func (r RawResponse) Success() bool {
	if !r.OK {
		return false
	}
	return r.StatusCode == 0 || r.StatusCode/100 == 2
}

type envelope struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

const maxBodyInDescription = 256

// DecodeResponse parses a Bot API response body. A body that is not a JSON
// envelope (proxy error pages and the like) yields a failed response whose
// description is the HTTP status or the start of the body.
func DecodeResponse(status int, body []byte) RawResponse {
	out := RawResponse{StatusCode: status}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		out.Description = fallbackDescription(status, body)
		return out
	}
	out.OK = env.OK
	out.ErrorCode = env.ErrorCode
	out.Description = env.Description
	out.Result = env.Result
	if env.Parameters != nil {
		out.RetryAfter = env.Parameters.RetryAfter
	}
	if !out.OK && out.Description == "" {
		out.Description = fallbackDescription(status, nil)
	}
	return out
}

func fallbackDescription(status int, body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyInDescription {
		s = s[:maxBodyInDescription]
	}
	if s != "" {
		return s
	}
	if t := http.StatusText(status); t != "" {
		return fmt.Sprintf("%d %s", status, t)
	}
	return "invalid response"
}

// Transport submits Bot API calls. A non-nil error means no usable response
// was obtained; API rejections come back as a RawResponse with OK=false.
type Transport interface {
	Send(ctx context.Context, req Request) (RawResponse, error)
}

// Error is a failure to obtain a response. It never carries the bot token.
type Error struct {
	Method string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("telegram: %s: %v", e.Method, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
