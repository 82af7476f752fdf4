package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/fault"
	"github.com/gyaneshwarpardhi/dinetrace/internal/kvstore"
)

func makeEvent(i int) event.Event {
	return event.Event{
		ID:         fmt.Sprintf("evt-%03d", i),
		Name:       event.RestaurantClicked,
		Version:    event.Version,
		OccurredAt: time.Date(2024, 5, 1, 12, 0, i, 0, time.UTC),
		Properties: map[string]any{"restaurantId": fmt.Sprintf("r%d", i), "fromPageKey": "home"},
	}
}

func ids(events []event.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

// failingStore rejects every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage disabled")
}
func (failingStore) Set(context.Context, string, []byte) error { return errors.New("quota exceeded") }
func (failingStore) Delete(context.Context, string) error      { return errors.New("storage disabled") }
func (failingStore) Close() error                              { return nil }

func TestQueue_FIFO(t *testing.T) {
	q := New(kvstore.NewMemory(), Options{MaxSize: 10})
	for i := 0; i < 5; i++ {
		q.Enqueue(makeEvent(i))
	}
	require.Equal(t, 5, q.Size())

	assert.Equal(t, []string{"evt-000", "evt-001"}, ids(q.DequeueBatch(2)))
	assert.Equal(t, []string{"evt-002", "evt-003", "evt-004"}, ids(q.DequeueBatch(10)))
	assert.Equal(t, []event.Event{}, q.DequeueBatch(3))
	assert.Equal(t, 0, q.Size())
}

func TestQueue_DropsOldestWhenFull(t *testing.T) {
	q := New(kvstore.NewMemory(), Options{MaxSize: 3})
	for i := 0; i < 7; i++ {
		q.Enqueue(makeEvent(i))
	}

	assert.Equal(t, 3, q.Size())
	assert.Equal(t, []string{"evt-004", "evt-005", "evt-006"}, ids(q.Events()))
}

func TestQueue_RequeueFrontPreservesOrder(t *testing.T) {
	q := New(kvstore.NewMemory(), Options{MaxSize: 10})
	for i := 0; i < 4; i++ {
		q.Enqueue(makeEvent(i))
	}
	batch := q.DequeueBatch(2)
	q.Enqueue(makeEvent(9))
	q.RequeueFront(batch)

	assert.Equal(t, []string{"evt-000", "evt-001", "evt-002", "evt-003", "evt-009"}, ids(q.Events()))

	q.RequeueFront(nil)
	assert.Equal(t, 5, q.Size())
}

func TestQueue_RequeueFrontRespectsCapacity(t *testing.T) {
	q := New(kvstore.NewMemory(), Options{MaxSize: 3})
	q.Enqueue(makeEvent(0))
	q.Enqueue(makeEvent(1))
	batch := q.DequeueBatch(2)
	q.Enqueue(makeEvent(2))
	q.Enqueue(makeEvent(3))
	q.RequeueFront(batch)

	assert.Equal(t, []string{"evt-001", "evt-002", "evt-003"}, ids(q.Events()))
}

func TestQueue_ReloadYieldsSameContents(t *testing.T) {
	store := kvstore.NewMemory()
	q := New(store, Options{MaxSize: 50})
	for i := 0; i < 12; i++ {
		q.Enqueue(makeEvent(i))
	}
	q.DequeueBatch(2)

	reloaded := New(store, Options{MaxSize: 50})
	require.Equal(t, q.Size(), reloaded.Size())
	want := q.Events()
	got := reloaded.Events()
	require.Equal(t, ids(want), ids(got))
	for i := range want {
		assert.True(t, want[i].OccurredAt.Equal(got[i].OccurredAt))
		assert.Equal(t, want[i].Properties, got[i].Properties)
		assert.Equal(t, want[i].Name, got[i].Name)
	}
}

func TestQueue_ReloadKeepsLargeIntegersExact(t *testing.T) {
	store := kvstore.NewMemory()
	q := New(store, Options{MaxSize: 10})
	ev := makeEvent(1)
	ev.Properties["restaurantId"] = int64(9007199254740993)
	ev.Properties["rating"] = 4.5
	q.Enqueue(ev)

	got := New(store, Options{MaxSize: 10}).Events()
	require.Len(t, got, 1)
	assert.Equal(t, json.Number("9007199254740993"), got[0].Properties["restaurantId"])
	assert.Equal(t, json.Number("4.5"), got[0].Properties["rating"])

	data, err := json.Marshal(got[0].Properties)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"restaurantId":9007199254740993`)
}

func TestQueue_HydrateTrimsToCapacity(t *testing.T) {
	store := kvstore.NewMemory()
	big := New(store, Options{MaxSize: 10})
	for i := 0; i < 10; i++ {
		big.Enqueue(makeEvent(i))
	}

	small := New(store, Options{MaxSize: 4})
	assert.Equal(t, []string{"evt-006", "evt-007", "evt-008", "evt-009"}, ids(small.Events()))
}

func TestQueue_CorruptStorageDegradesToEmpty(t *testing.T) {
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(context.Background(), DefaultKey, []byte(`{not json`)))
	rec := fault.NewRecorder(8)

	q := New(store, Options{MaxSize: 10, Report: rec.Report})
	assert.Equal(t, 0, q.Size())
	faults := rec.Drain()
	require.Len(t, faults, 1)
	assert.Equal(t, "hydrate", faults[0].Op)
}

func TestQueue_DiscardsMalformedEntries(t *testing.T) {
	store := kvstore.NewMemory()
	blob := `[
		{"eventId":"ok-1","eventName":"ui.group.clicked","eventVersion":"1","occurredAt":"2024-05-01T12:00:00Z","properties":{"groupId":1,"fromPageKey":"home"}},
		{"eventId":"","eventName":"ui.group.clicked","eventVersion":"1","occurredAt":"2024-05-01T12:00:00Z","properties":{}},
		{"eventId":"bad-name","eventName":"not.real","eventVersion":"1","occurredAt":"2024-05-01T12:00:00Z","properties":{}},
		{"eventId":"bad-time","eventName":"ui.group.clicked","eventVersion":"1","occurredAt":"yesterday","properties":{}},
		42,
		{"eventId":"ok-2","eventName":"ui.tab.changed","eventVersion":"1","occurredAt":"2024-05-01T12:00:01Z","properties":{"fromTab":"a","toTab":"b","fromPageKey":"home"}}
	]`
	require.NoError(t, store.Set(context.Background(), DefaultKey, []byte(blob)))

	q := New(store, Options{MaxSize: 10})
	assert.Equal(t, []string{"ok-1", "ok-2"}, ids(q.Events()))
}

func TestQueue_StorageFailureKeepsWorkingInMemory(t *testing.T) {
	rec := fault.NewRecorder(16)
	q := New(failingStore{}, Options{MaxSize: 10, Report: rec.Report})
	q.Enqueue(makeEvent(1))
	q.Enqueue(makeEvent(2))

	assert.Equal(t, 2, q.Size())
	assert.Equal(t, []string{"evt-001"}, ids(q.DequeueBatch(1)))

	faults := rec.Drain()
	require.NotEmpty(t, faults)
	assert.Equal(t, "hydrate", faults[0].Op)
	assert.Equal(t, "persist", faults[1].Op)
}
