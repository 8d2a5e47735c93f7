package backend

import (
	"errors"
	"fmt"
)

var (
	ErrLoginIncorrect = errors.New("Login incorrect")
	ErrSessionExpired = errors.New("Login session expired")
	ErrNotLoggedIn    = errors.New("Not logged in")
)

// ServerError is a network failure or an unexpected HTTP status. Its
// message is shown to the operator as is.
type ServerError struct {
	Op     string
	Status int
	Err    error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return "Server error: " + e.Err.Error()
	}
	return fmt.Sprintf("Server error: %d", e.Status)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// RejectedError carries a message the server returned for a request it
// understood but refused, e.g. an order failing validation or a card decline.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}
