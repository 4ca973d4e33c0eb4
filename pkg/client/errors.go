package client

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLoginRequired is returned by operations that need a session when there is none
type ErrLoginRequired struct{}

func (e *ErrLoginRequired) Error() string {
	return "login required"
}

func IsLoginRequired(err error) bool {
	var target *ErrLoginRequired
	return errors.As(err, &target)
}

// StatusError is returned when a server answers with a non-2xx status
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Code)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Message)
}

var authErrorHints = []string{"jwt", "session", "auth", "token"}

// IsAuthError reports whether err looks like an expired or rejected session:
// a 401 status, or a message mentioning jwt, session, auth or token.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == 401 {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, hint := range authErrorHints {
		if strings.Contains(message, hint) {
			return true
		}
	}
	return false
}
