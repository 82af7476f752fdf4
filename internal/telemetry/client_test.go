package telemetry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/dinetrace/internal/collector"
	"github.com/gyaneshwarpardhi/dinetrace/internal/config"
	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/fault"
	"github.com/gyaneshwarpardhi/dinetrace/internal/identity"
	"github.com/gyaneshwarpardhi/dinetrace/internal/kvstore"
	"github.com/gyaneshwarpardhi/dinetrace/internal/scheduler"
	"github.com/gyaneshwarpardhi/dinetrace/internal/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func startCollector(t *testing.T) (*httptest.Server, *collector.SQLStore) {
	t.Helper()
	store, err := collector.OpenStore(filepath.Join(t.TempDir(), "collector.db"))
	require.NoError(t, err)
	srv := httptest.NewServer(collector.New(collector.Options{Store: store, Token: "tok"}))
	t.Cleanup(func() {
		srv.Close()
		store.Close()
	})
	return srv, store
}

func storedNames(t *testing.T, store *collector.SQLStore) []event.Name {
	t.Helper()
	records, err := store.Recent(context.Background(), 100)
	require.NoError(t, err)
	names := make([]event.Name, len(records))
	// Recent is newest first.
	for i, r := range records {
		names[len(records)-1-i] = r.Name
	}
	return names
}

func TestClient_EndToEnd(t *testing.T) {
	srv, store := startCollector(t)
	cfg := defaultConfig(t)
	cfg.Transport.Endpoint = srv.URL + collector.EventsPath
	cfg.Transport.AccessToken = "tok"
	cfg.Telemetry.AppEnv = "test"

	clock := scheduler.NewFake(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	c, err := New(context.Background(), Options{Config: cfg, Scheduler: clock, InitiallyVisible: true})
	require.NoError(t, err)
	c.Start()

	c.Navigate("/")
	clock.Advance(2 * time.Second)
	c.Track(event.Input{Name: event.RestaurantClicked, Properties: map[string]any{
		"restaurantId": "42", "fromPageKey": "home", "phone": "010-0000-0000",
	}})
	clock.Advance(time.Second)
	c.Navigate("/restaurants/42")
	clock.Advance(4 * time.Second)
	c.PageHide()

	assert.Equal(t, 0, c.QueueSize())
	assert.Equal(t, []event.Name{
		event.PageViewed,
		event.RestaurantClicked,
		event.PageDwelled,
		event.PageViewed,
		event.PageDwelled,
	}, storedNames(t, store))

	records, err := store.Recent(context.Background(), 100)
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, c.AnonymousID(), r.AnonymousID)
		assert.Equal(t, "test", r.Properties["appEnv"])
		assert.NotContains(t, r.Properties, "phone")
	}

	_, err = c.Shutdown(context.Background())
	require.NoError(t, err)
}

func TestClient_PeriodicFlush(t *testing.T) {
	srv, store := startCollector(t)
	cfg := defaultConfig(t)
	cfg.Transport.Endpoint = srv.URL + collector.EventsPath
	cfg.Transport.AccessToken = "tok"

	clock := scheduler.NewFake(time.Now())
	c, err := New(context.Background(), Options{Config: cfg, Scheduler: clock})
	require.NoError(t, err)
	defer c.Shutdown(context.Background())
	c.Start()

	c.Track(event.Input{Name: event.GroupClicked, Properties: map[string]any{"groupId": "g1", "fromPageKey": "group_list"}})
	assert.Empty(t, storedNames(t, store))

	clock.Advance(cfg.Telemetry.FlushInterval())
	assert.Equal(t, []event.Name{event.GroupClicked}, storedNames(t, store))
}

func TestClient_QueueSurvivesRestart(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "client.db")

	down := transport.Func(func(context.Context, transport.Batch, bool) transport.Result {
		return transport.Result{Outcome: transport.Retryable, Status: transport.StatusOffline}
	})
	clock := scheduler.NewFake(time.Now())
	first, err := New(context.Background(), Options{Config: cfg, Scheduler: clock, Transport: down})
	require.NoError(t, err)
	first.Track(event.Input{Name: event.TabChanged, Properties: map[string]any{"fromTab": "home", "toTab": "ranking", "fromPageKey": "home"}})
	first.Track(event.Input{Name: event.EventClicked, Properties: map[string]any{"eventKey": "festival", "fromPageKey": "home"}})
	report, err := first.Shutdown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Requeued)

	var got []transport.Batch
	up := transport.Func(func(_ context.Context, b transport.Batch, _ bool) transport.Result {
		got = append(got, b)
		return transport.Result{Outcome: transport.OK, Status: http.StatusAccepted}
	})
	second, err := New(context.Background(), Options{Config: cfg, Scheduler: clock, Transport: up})
	require.NoError(t, err)
	assert.Equal(t, first.AnonymousID(), second.AnonymousID())
	assert.Equal(t, 2, second.QueueSize())

	second.Flush(context.Background())
	require.Len(t, got, 1)
	require.Len(t, got[0].Events, 2)
	assert.Equal(t, event.TabChanged, got[0].Events[0].Name)
	assert.Equal(t, event.EventClicked, got[0].Events[1].Name)
	assert.Equal(t, first.AnonymousID(), got[0].AnonymousID)
	_, err = second.Shutdown(context.Background())
	require.NoError(t, err)
}

func TestClient_StorageDrivers(t *testing.T) {
	mr := miniredis.RunT(t)
	tests := []struct {
		name string
		set  func(*config.StorageConf)
	}{
		{"memory", func(s *config.StorageConf) { s.Driver = "memory" }},
		{"sqlite", func(s *config.StorageConf) { s.Driver = "sqlite"; s.Path = filepath.Join(t.TempDir(), "kv.db") }},
		{"redis", func(s *config.StorageConf) { s.Driver = "redis"; s.RedisURL = "redis://" + mr.Addr() + "/0" }},
		{"badger", func(s *config.StorageConf) { s.Driver = "badger"; s.Path = filepath.Join(t.TempDir(), "badger") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var storage config.StorageConf
			storage.Namespace = "test"
			tt.set(&storage)

			store, err := OpenStore(context.Background(), storage, discardLogger())
			require.NoError(t, err)
			defer store.Close()

			id := identity.Anonymous(context.Background(), store, fault.Discard)
			assert.Equal(t, id, identity.Anonymous(context.Background(), store, fault.Discard))
		})
	}

	_, err := OpenStore(context.Background(), config.StorageConf{Driver: "floppy"}, discardLogger())
	assert.Error(t, err)
}

func TestOpenTransport_UnknownKind(t *testing.T) {
	_, _, err := OpenTransport(config.TransportConf{Kind: "pigeon"}, nil)
	assert.Error(t, err)
}

func TestClient_ApplyConfigKillSwitch(t *testing.T) {
	cfg := defaultConfig(t)
	var sent int
	tr := transport.Func(func(_ context.Context, b transport.Batch, _ bool) transport.Result {
		sent += len(b.Events)
		return transport.Result{Outcome: transport.OK, Status: http.StatusAccepted}
	})
	clock := scheduler.NewFake(time.Now())
	c, err := New(context.Background(), Options{Config: cfg, Scheduler: clock, Transport: tr, Durable: kvstore.NewMemory()})
	require.NoError(t, err)

	off := *cfg
	off.Telemetry.Enabled = false
	c.ApplyConfig(&off)
	c.Track(event.Input{Name: event.GroupClicked, Properties: map[string]any{"groupId": "g", "fromPageKey": "home"}})
	assert.Equal(t, 0, c.QueueSize())

	c.ApplyConfig(cfg)
	c.Track(event.Input{Name: event.GroupClicked, Properties: map[string]any{"groupId": "g", "fromPageKey": "home"}})
	c.Flush(context.Background())
	assert.Equal(t, 1, sent)
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}
