package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// GenericFailureMessage is used when a failure response carries no message.
const GenericFailureMessage = "Request failed"

// ErrMalformedResponse is returned when a success response lacks required fields.
var ErrMalformedResponse = errors.New("malformed response")

// TransportError means no response reached the client.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is a non-success response. Error returns the server's message
// verbatim so it can be surfaced to the user unchanged.
type RemoteError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unauthorized reports whether the remote rejected the credential.
func (e *RemoteError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// failureBody accepts both {message} and the older {error} envelope.
type failureBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func extractMessage(data []byte) string {
	var body failureBody
	if err := json.Unmarshal(data, &body); err != nil {
		return GenericFailureMessage
	}
	if body.Message != "" {
		return body.Message
	}
	if body.Error != "" {
		return body.Error
	}
	return GenericFailureMessage
}

// Message renders err as a user-facing notification text.
func Message(err error) string {
	var remote *RemoteError
	var transport *TransportError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &remote):
		return remote.Message
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	case errors.As(err, &transport):
		return "Unable to reach the server"
	default:
		return err.Error()
	}
}
