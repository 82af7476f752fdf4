// Package seed generates plausible browsing sessions for exercising the
// telemetry pipeline end to end.
package seed

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/gyaneshwarpardhi/dinetrace/internal/event"
	"github.com/gyaneshwarpardhi/dinetrace/internal/pagecontext"
)

// StepKind is what a Step does to the target.
type StepKind int

const (
	StepNavigate StepKind = iota
	StepTrack
	StepHide
	StepShow
	StepUnload
)

// Step is one user action. Wait is the think time before it.
type Step struct {
	Kind  StepKind
	Wait  time.Duration
	Path  string
	Input event.Input
}

// Target receives replayed steps. *telemetry.Client satisfies it.
type Target interface {
	Navigate(path string)
	Track(in event.Input)
	VisibilityChanged(visible bool)
	PageHide()
}

// Generator builds sessions from a seeded faker so runs are reproducible.
type Generator struct {
	faker    *gofakeit.Faker
	resolver pagecontext.Resolver
}

// New returns a Generator. The same seed yields the same sessions.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed), resolver: pagecontext.Default()}
}

var (
	tabs          = []string{"home", "nearby", "ranking", "groups"}
	shareChannels = []string{"kakao", "link", "sms", "instagram"}
	eventKeys     = []string{"spring_festival", "new_store_coupon", "review_challenge"}
)

// Session returns a session of roughly pages page visits, ending in unload.
func (g *Generator) Session(pages int) []Step {
	if pages < 1 {
		pages = 1
	}
	f := g.faker
	steps := []Step{{Kind: StepNavigate, Path: "/"}}
	current := "home"

	for i := 0; i < pages; i++ {
		for n := f.Number(0, 3); n > 0; n-- {
			steps = append(steps, Step{Kind: StepTrack, Wait: g.think(), Input: g.interaction(current)})
		}
		if f.Number(1, 10) <= 2 {
			steps = append(steps,
				Step{Kind: StepHide, Wait: g.think()},
				Step{Kind: StepShow, Wait: time.Duration(f.Number(5, 120)) * time.Second},
			)
		}
		path := g.path()
		steps = append(steps, Step{Kind: StepNavigate, Wait: g.think(), Path: path})
		current = g.resolver.Resolve(path).PageKey
	}
	return append(steps, Step{Kind: StepUnload, Wait: g.think()})
}

func (g *Generator) think() time.Duration {
	return time.Duration(g.faker.Number(800, 15000)) * time.Millisecond
}

func (g *Generator) path() string {
	f := g.faker
	switch f.Number(0, 7) {
	case 0:
		return "/search?q=" + f.Word()
	case 1:
		return fmt.Sprintf("/restaurants/%d", f.Number(1, 5000))
	case 2:
		return fmt.Sprintf("/restaurants/%d/reviews/new", f.Number(1, 5000))
	case 3:
		return "/groups"
	case 4:
		return fmt.Sprintf("/groups/%d", f.Number(1, 300))
	case 5:
		return "/favorites"
	case 6:
		return "/notifications"
	default:
		return "/"
	}
}

func (g *Generator) interaction(fromPage string) event.Input {
	f := g.faker
	restaurantID := fmt.Sprintf("%d", f.Number(1, 5000))
	switch f.Number(0, 9) {
	case 0:
		q := f.Word()
		return event.Input{Name: event.SearchExecuted, Properties: map[string]any{
			"query":                 q,
			"queryLength":           len([]rune(q)),
			"resultRestaurantCount": f.Number(0, 40),
			"resultGroupCount":      f.Number(0, 5),
			"hasFilter":             f.Bool(),
			"fromPageKey":           fromPage,
		}}
	case 1:
		return event.Input{Name: event.RestaurantViewed, Properties: map[string]any{
			"restaurantId": restaurantID, "fromPageKey": fromPage,
		}}
	case 2:
		return event.Input{Name: event.ReviewWriteStarted, Properties: map[string]any{
			"restaurantId": restaurantID, "fromPageKey": fromPage,
		}}
	case 3:
		return event.Input{Name: event.ReviewSubmitted, Properties: map[string]any{
			"restaurantId":  restaurantID,
			"rating":        f.Number(1, 5),
			"reviewContent": f.Sentence(12),
			"fromPageKey":   fromPage,
		}}
	case 4:
		return event.Input{Name: event.GroupClicked, Properties: map[string]any{
			"groupId": fmt.Sprintf("%d", f.Number(1, 300)), "fromPageKey": fromPage,
		}}
	case 5:
		return event.Input{Name: event.FavoriteSheetOpened, Properties: map[string]any{
			"restaurantId": restaurantID, "fromPageKey": fromPage,
		}}
	case 6:
		return event.Input{Name: event.FavoriteUpdated, Properties: map[string]any{
			"restaurantId": restaurantID, "isFavorite": f.Bool(), "fromPageKey": fromPage,
		}}
	case 7:
		return event.Input{Name: event.EventClicked, Properties: map[string]any{
			"eventKey": f.RandomString(eventKeys), "fromPageKey": fromPage,
		}}
	case 8:
		from := f.RandomString(tabs)
		return event.Input{Name: event.TabChanged, Properties: map[string]any{
			"fromTab": from, "toTab": f.RandomString(tabs), "fromPageKey": fromPage,
		}}
	default:
		return event.Input{Name: event.RestaurantShared, Properties: map[string]any{
			"restaurantId": restaurantID, "shareChannel": f.RandomString(shareChannels), "fromPageKey": fromPage,
		}}
	}
}

// Play replays steps against target. wait is called with each step's think
// time; pass a fake clock's Advance to replay without sleeping.
func Play(steps []Step, target Target, wait func(time.Duration)) {
	for _, s := range steps {
		if wait != nil && s.Wait > 0 {
			wait(s.Wait)
		}
		switch s.Kind {
		case StepNavigate:
			target.Navigate(s.Path)
		case StepTrack:
			target.Track(s.Input)
		case StepHide:
			target.VisibilityChanged(false)
		case StepShow:
			target.VisibilityChanged(true)
		case StepUnload:
			target.PageHide()
		}
	}
}
