// Package devtest holds helpers for exercising devices against the
// simulated registry without a running HAL.
package devtest

import (
	"testing"
	"time"

	"usb-epaper-go/services/hal/internal/core"
)

// Recorder is an EventEmitter that queues events for inspection.
type Recorder struct {
	ch chan core.Event
}

func NewRecorder() *Recorder { return &Recorder{ch: make(chan core.Event, 64)} }

func (r *Recorder) Emit(ev core.Event) bool {
	select {
	case r.ch <- ev:
		return true
	default:
		return false
	}
}

// Next returns the next event or fails the test after d.
func (r *Recorder) Next(t testing.TB, d time.Duration) core.Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(d):
		t.Fatalf("no event within %v", d)
		return core.Event{}
	}
}

// Await skips events until one satisfies match.
func (r *Recorder) Await(t testing.TB, d time.Duration, match func(core.Event) bool) core.Event {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case ev := <-r.ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("no matching event within %v", d)
			return core.Event{}
		}
	}
}

// None fails the test if an event arrives within d.
func (r *Recorder) None(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(d):
	}
}

// Tagged matches events published under event/<tag>.
func Tagged(tag string) func(core.Event) bool {
	return func(ev core.Event) bool { return ev.EventTag == tag }
}

// Value matches value updates.
func Value(ev core.Event) bool { return ev.EventTag == "" && ev.Err == "" }

// Failed matches degraded-status events.
func Failed(ev core.Event) bool { return ev.Err != "" }

// Build runs a registered builder the way HAL does.
func Build(t testing.TB, b core.Builder, id string, params any, reg core.ResourceRegistry, rec *Recorder) (core.Device, error) {
	t.Helper()
	return b.Build(t.Context(), core.BuilderInput{
		ID:     id,
		Params: params,
		Res:    core.Resources{Reg: reg, Pub: rec},
	})
}
