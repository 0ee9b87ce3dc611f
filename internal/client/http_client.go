package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 8 << 10

// ErrAnonymous marks an account lookup answered with "no user".
var ErrAnonymous = errors.New("anonymous user")

// StatusError is a non-success HTTP answer.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func (c *Client) attachToken(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(body) == 0 {
		return &StatusError{StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			msg := strings.TrimSpace(payload.Error)
			if msg == "" {
				msg = strings.TrimSpace(payload.Detail)
			}
			if msg != "" {
				return &StatusError{StatusCode: resp.StatusCode, Err: errors.New(msg)}
			}
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Err: errors.New(trimmed)}
}
