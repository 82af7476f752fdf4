// Package transport defines the contract between the dispatcher and the
// network, and the implementations that fulfil it.
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
)

// Outcome is the transport's classification of a send attempt.
type Outcome int

const (
	// OK means the backend accepted every event in the batch.
	OK Outcome = iota
	// Retryable means the same batch should be sent again later.
	Retryable
	// Permanent means the batch will never be accepted and should be dropped.
	Permanent
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Retryable:
		return "retryable"
	case Permanent:
		return "permanent"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// StatusOffline is the status reported when no HTTP response was received.
const StatusOffline = 0

// Batch is the wire body of one ingestion call.
type Batch struct {
	AnonymousID string        `json:"anonymousId"`
	Events      []event.Event `json:"events"`
}

// Result is what a Transport returns for one Send.
type Result struct {
	Outcome Outcome
	Status  int
	Code    string
	Err     error
}

// Transport sends one batch. keepalive asks the implementation to finish the
// request even if the caller is being torn down.
type Transport interface {
	Send(ctx context.Context, batch Batch, keepalive bool) Result
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, batch Batch, keepalive bool) Result

func (f Func) Send(ctx context.Context, batch Batch, keepalive bool) Result {
	return f(ctx, batch, keepalive)
}

// ClassifyStatus maps an HTTP status to an Outcome: 2xx is OK, 429, 5xx and
// offline are retryable, everything else is permanent.
func ClassifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OK
	case status == StatusOffline, status == http.StatusTooManyRequests, status >= 500:
		return Retryable
	default:
		return Permanent
	}
}
