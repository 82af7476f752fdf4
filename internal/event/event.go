package event

import "time"

// Version is the schema version stamped on every event.
const Version = "1"

// Name identifies the kind of interaction an event records.
type Name string

const (
	PageViewed          Name = "ui.page.viewed"
	PageDwelled         Name = "ui.page.dwelled"
	RestaurantClicked   Name = "ui.restaurant.clicked"
	RestaurantViewed    Name = "ui.restaurant.viewed"
	ReviewWriteStarted  Name = "ui.review.write_started"
	ReviewSubmitted     Name = "ui.review.submitted"
	SearchExecuted      Name = "ui.search.executed"
	GroupClicked        Name = "ui.group.clicked"
	FavoriteSheetOpened Name = "ui.favorite.sheet_opened"
	FavoriteUpdated     Name = "ui.favorite.updated"
	EventClicked        Name = "ui.event.clicked"
	TabChanged          Name = "ui.tab.changed"
	RestaurantShared    Name = "ui.restaurant.shared"
)

// Event is the canonical telemetry record placed on the queue and sent on the wire.
type Event struct {
	ID         string         `json:"eventId"`
	Name       Name           `json:"eventName"`
	Version    string         `json:"eventVersion"`
	OccurredAt time.Time      `json:"occurredAt"`
	Properties map[string]any `json:"properties"`
}

// Input is what callers hand to the dispatcher. OccurredAt defaults to the
// enqueue time when zero.
type Input struct {
	Name       Name
	Properties map[string]any
	OccurredAt time.Time
}

// Page exit reasons carried by ui.page.dwelled.
const (
	ExitRouteChange = "route_change"
	ExitHidden      = "hidden"
	ExitUnload      = "unload"
)
