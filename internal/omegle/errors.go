// ABOUTME: Error taxonomy for the chat protocol client
// ABOUTME: ConnectError for failed handshakes, TransportError for action requests

package omegle

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by actions issued before a successful Connect.
var ErrNotConnected = errors.New("not connected")

// errMissingClientID reports a start response without a client identifier.
var errMissingClientID = errors.New("start response missing clientID")

// ConnectError reports a failed session handshake.
type ConnectError struct {
	BaseURL string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.BaseURL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportError reports a failed send, typing, disconnect or recaptcha request.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a non-2xx response from the service.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Code)
}
