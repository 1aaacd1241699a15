package client

import (
	"errors"
	"fmt"
)

// ErrInvalidBaseURL is returned by New for an unusable base URL.
var ErrInvalidBaseURL = errors.New("invalid base url")

// APIError is a non-2xx response from the serving layer.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Code, e.Message)
}
