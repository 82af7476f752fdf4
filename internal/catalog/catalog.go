// Package catalog holds the whitelist of known event names and the property
// keys each one must carry.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
)

// ErrUnknownEvent is returned by Validate for names outside the whitelist.
var ErrUnknownEvent = errors.New("unknown event name")

// MissingKeysError lists the required keys absent from an event's properties.
type MissingKeysError struct {
	Name    event.Name
	Missing []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("event %s missing required properties: %s", e.Name, strings.Join(e.Missing, ", "))
}

var required = map[event.Name][]string{
	event.PageViewed:          {"pageKey", "pathTemplate", "sessionId"},
	event.PageDwelled:         {"pageKey", "pathTemplate", "sessionId", "dwellMs", "exitType"},
	event.RestaurantClicked:   {"restaurantId", "fromPageKey"},
	event.RestaurantViewed:    {"restaurantId", "fromPageKey"},
	event.ReviewWriteStarted:  {"restaurantId", "fromPageKey"},
	event.ReviewSubmitted:     {"restaurantId", "rating", "fromPageKey"},
	event.SearchExecuted:      {"fromPageKey", "queryLength", "resultRestaurantCount", "resultGroupCount", "hasFilter"},
	event.GroupClicked:        {"groupId", "fromPageKey"},
	event.FavoriteSheetOpened: {"restaurantId", "fromPageKey"},
	event.FavoriteUpdated:     {"restaurantId", "isFavorite", "fromPageKey"},
	event.EventClicked:        {"eventKey", "fromPageKey"},
	event.TabChanged:          {"fromTab", "toTab", "fromPageKey"},
	event.RestaurantShared:    {"restaurantId", "shareChannel", "fromPageKey"},
}

// IsKnown reports whether name is in the whitelist.
func IsKnown(name event.Name) bool {
	_, ok := required[name]
	return ok
}

// Names returns every known event name, sorted.
func Names() []event.Name {
	out := make([]event.Name, 0, len(required))
	for n := range required {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RequiredKeys returns a copy of the keys name must carry, or nil for unknown names.
func RequiredKeys(name event.Name) []string {
	keys, ok := required[name]
	if !ok {
		return nil
	}
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// MissingKeys returns the required keys that are absent or nil in props.
func MissingKeys(name event.Name, props map[string]any) []string {
	var missing []string
	for _, k := range required[name] {
		if v, ok := props[k]; !ok || v == nil {
			missing = append(missing, k)
		}
	}
	return missing
}

// Validate checks name membership and required keys.
func Validate(name event.Name, props map[string]any) error {
	if !IsKnown(name) {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if missing := MissingKeys(name, props); len(missing) > 0 {
		return &MissingKeysError{Name: name, Missing: missing}
	}
	return nil
}
