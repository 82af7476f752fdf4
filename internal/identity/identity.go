// Package identity creates and persists the anonymous (long-lived) and
// session (per-tab) identifiers attached to telemetry.
package identity

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/dinetrace/internal/fault"
	"github.com/gyaneshwarpardhi/dinetrace/internal/kvstore"
)

const (
	AnonymousKey = "dinetrace.anonymous_id"
	SessionKey   = "dinetrace.session_id"
)

// newRandom is swapped in tests to simulate an unavailable crypto source.
var newRandom = uuid.NewRandom

// NewID returns a random UUID, or a time+random string when the crypto
// source fails.
func NewID() string {
	id, err := newRandom()
	if err != nil {
		return fallbackID(time.Now())
	}
	return id.String()
}

func fallbackID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + strconv.FormatUint(rand.Uint64(), 36)
}

// Anonymous returns the durable anonymous id, creating it on first use.
func Anonymous(ctx context.Context, durable kvstore.Store, report fault.Reporter) string {
	return readOrCreate(ctx, durable, AnonymousKey, report)
}

// Session returns the session id from the session-scoped store, creating it
// on first use.
func Session(ctx context.Context, session kvstore.Store, report fault.Reporter) string {
	return readOrCreate(ctx, session, SessionKey, report)
}

func readOrCreate(ctx context.Context, store kvstore.Store, key string, report fault.Reporter) string {
	if report == nil {
		report = fault.Discard
	}
	if store != nil {
		value, ok, err := store.Get(ctx, key)
		switch {
		case err != nil:
			report(fault.Fault{Component: "identity", Op: "read", Err: err, Attrs: []any{"key", key}})
		case ok && strings.TrimSpace(string(value)) != "":
			return string(value)
		}
	}

	id := NewID()
	if store != nil {
		if err := store.Set(ctx, key, []byte(id)); err != nil {
			report(fault.Fault{Component: "identity", Op: "persist", Err: err, Attrs: []any{"key", key}})
		}
	}
	return id
}
