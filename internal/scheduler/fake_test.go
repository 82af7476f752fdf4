package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresInOrder(t *testing.T) {
	f := NewFake(epoch)
	var got []string
	f.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	f.AfterFunc(time.Second, func() { got = append(got, "a") })
	f.AfterFunc(0, func() { got = append(got, "now") })

	f.RunDue()
	assert.Equal(t, []string{"now"}, got)

	f.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"now", "a"}, got)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), f.Now())

	f.Advance(time.Second)
	assert.Equal(t, []string{"now", "a", "b"}, got)
	assert.Equal(t, 0, f.Pending())
}

func TestFake_EveryRepeatsUntilStopped(t *testing.T) {
	f := NewFake(epoch)
	n := 0
	timer := f.Every(time.Second, func() { n++ })

	f.Advance(3500 * time.Millisecond)
	assert.Equal(t, 3, n)

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	f.Advance(10 * time.Second)
	assert.Equal(t, 3, n)
}

func TestFake_CallbackSeesDeadlineAndMayReschedule(t *testing.T) {
	f := NewFake(epoch)
	var seen []time.Time
	f.AfterFunc(time.Second, func() {
		seen = append(seen, f.Now())
		f.AfterFunc(time.Second, func() { seen = append(seen, f.Now()) })
	})

	f.Advance(5 * time.Second)
	assert.Equal(t, []time.Time{epoch.Add(time.Second), epoch.Add(2 * time.Second)}, seen)
}

func TestFake_NextDelay(t *testing.T) {
	f := NewFake(epoch)
	_, ok := f.NextDelay()
	assert.False(t, ok)

	f.AfterFunc(3*time.Second, func() {})
	d, ok := f.NextDelay()
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)
}

func TestReal_EveryStops(t *testing.T) {
	ticks := make(chan struct{}, 10)
	timer := Real{}.Every(5*time.Millisecond, func() { ticks <- struct{}{} })
	<-ticks
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
}
