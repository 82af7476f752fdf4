package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJetStream implements only PublishMsg; any other call panics.
type fakeJetStream struct {
	jetstream.JetStream
	err  error
	msgs []*nats.Msg
}

func (f *fakeJetStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.msgs = append(f.msgs, msg)
	if f.err != nil {
		return nil, f.err
	}
	return &jetstream.PubAck{Stream: "DINETRACE", Sequence: uint64(len(f.msgs))}, nil
}

func TestNATS_PublishesBatch(t *testing.T) {
	js := &fakeJetStream{}
	res := NewNATS(js, "dinetrace.events", 0).Send(context.Background(), testBatch(), false)

	assert.Equal(t, OK, res.Outcome)
	require.Len(t, js.msgs, 1)
	assert.Equal(t, "dinetrace.events", js.msgs[0].Subject)
	assert.Equal(t, "evt-1:evt-1", js.msgs[0].Header.Get(nats.MsgIdHdr))

	var got Batch
	require.NoError(t, json.Unmarshal(js.msgs[0].Data, &got))
	assert.Equal(t, "anon-1", got.AnonymousID)
	require.Len(t, got.Events, 1)
}

func TestNATS_ClassifiesPublishErrors(t *testing.T) {
	js := &fakeJetStream{err: fmt.Errorf("wrapped: %w", nats.ErrTimeout)}
	res := NewNATS(js, "s", 0).Send(context.Background(), testBatch(), true)
	assert.Equal(t, Retryable, res.Outcome)
	assert.Equal(t, StatusOffline, res.Status)

	js.err = nats.ErrMaxPayload
	res = NewNATS(js, "s", 0).Send(context.Background(), testBatch(), false)
	assert.Equal(t, Permanent, res.Outcome)
}

func TestClassifyNATSError(t *testing.T) {
	assert.Equal(t, OK, ClassifyNATSError(nil))
	assert.Equal(t, Retryable, ClassifyNATSError(context.DeadlineExceeded))
	assert.Equal(t, Retryable, ClassifyNATSError(nats.ErrNoResponders))
	assert.Equal(t, Retryable, ClassifyNATSError(nats.ErrConnectionClosed))
	assert.Equal(t, Permanent, ClassifyNATSError(errors.New("stream sealed")))
}
