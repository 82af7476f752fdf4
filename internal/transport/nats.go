package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS publishes batches to a JetStream subject. A publish ack counts as OK.
type NATS struct {
	js      jetstream.JetStream
	subject string
	timeout time.Duration
}

// NewNATS wraps a JetStream context.
func NewNATS(js jetstream.JetStream, subject string, timeout time.Duration) *NATS {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NATS{js: js, subject: subject, timeout: timeout}
}

// DialNATS connects to url and returns the transport and the connection to close.
func DialNATS(url, subject string, timeout time.Duration) (*NATS, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("dinetrace"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return NewNATS(js, subject, timeout), nc, nil
}

func (n *NATS) Send(ctx context.Context, batch Batch, keepalive bool) Result {
	data, err := json.Marshal(batch)
	if err != nil {
		return Result{Outcome: Permanent, Err: fmt.Errorf("marshal batch: %w", err)}
	}
	if keepalive {
		ctx = context.WithoutCancel(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg := &nats.Msg{Subject: n.subject, Data: data, Header: nats.Header{}}
	msg.Header.Set(nats.MsgIdHdr, batchID(batch))
	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return Result{Outcome: ClassifyNATSError(err), Status: StatusOffline, Err: fmt.Errorf("publish batch: %w", err)}
	}
	return Result{Outcome: OK}
}

// batchID lets JetStream de-duplicate a batch re-published after a lost ack.
func batchID(batch Batch) string {
	if len(batch.Events) == 0 {
		return ""
	}
	return batch.Events[0].ID + ":" + batch.Events[len(batch.Events)-1].ID
}

// ClassifyNATSError treats connectivity and timeout failures as retryable and
// everything else (bad subject, payload too large, stream rejections) as permanent.
func ClassifyNATSError(err error) Outcome {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, jetstream.ErrNoStreamResponse):
		return Retryable
	default:
		return Permanent
	}
}
