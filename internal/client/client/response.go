package client

import (
	"bytes"
	"strings"

	"github.com/antonholmquist/jason"
)

const maxErrorBody = 512

// CheckResponse decides whether a finished response is a logical success.
// Non-2xx statuses give a *StatusError. A 2xx JSON object carrying a
// non-empty "error" string, or "ok"/"success" set to false, gives an
// *AppError. Any other body is accepted as is.
func CheckResponse(code int, body []byte) error {
	if code < 200 || code > 299 {
		return &StatusError{Code: code, Body: snippet(body)}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	obj, err := jason.NewObjectFromBytes(trimmed)
	if err != nil {
		return nil
	}
	if msg, err := obj.GetString("error"); err == nil && strings.TrimSpace(msg) != "" {
		return &AppError{Message: msg}
	}
	for _, flag := range []string{"ok", "success"} {
		if v, err := obj.GetBoolean(flag); err == nil && !v {
			msg, _ := obj.GetString("message")
			if msg == "" {
				msg = flag + "=false"
			}
			return &AppError{Message: msg}
		}
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "…"
	}
	return s
}
