// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"

	"github.com/jbeaumont/floret/internal/pollinations"
)

// =============================================================================
// RENDER SINK
// =============================================================================

// Sink receives render events for one response session.
//
// Event ordering is guaranteed: zero or more Delta calls in arrival order,
// then exactly one terminal call (Complete, Failed, or Cancelled). The
// store write for a completed turn happens after the terminal event.
type Sink interface {
	// Delta delivers one streamed content fragment.
	Delta(text string)

	// Complete delivers the full response text once the stream ends.
	Complete(fullText string)

	// Failed reports a terminal error with its classification and a
	// human-readable message.
	Failed(kind ErrorKind, message string, err error)

	// Cancelled reports caller cancellation, carrying any partial text
	// received before the stop. Partial text is never persisted.
	Cancelled(partial string)
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// ErrorKind is the user-facing error category of a failed session.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate-limited"
	KindServer      ErrorKind = "server"
	KindBadRequest  ErrorKind = "bad-request"
	KindEmpty       ErrorKind = "empty-response"
	KindNetwork     ErrorKind = "network"
)

// Classify maps a transport error to its kind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, pollinations.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, pollinations.ErrServerError):
		return KindServer
	case errors.Is(err, pollinations.ErrBadRequest):
		return KindBadRequest
	case errors.Is(err, pollinations.ErrEmptyResponse):
		return KindEmpty
	default:
		return KindNetwork
	}
}

// =============================================================================
// SESSION STATE
// =============================================================================

// State is the lifecycle phase of the controller.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateSending
	StateStreaming
	StateRetrying
	StateFinalizing
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateRetrying:
		return "retrying"
	case StateFinalizing:
		return "finalizing"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// isCancel reports whether an error is caller cancellation. Deadline
// errors are excluded: the HTTP client's request timeout also surfaces as
// context.DeadlineExceeded, and a timed-out transport call is a failure,
// not a cancellation.
func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
