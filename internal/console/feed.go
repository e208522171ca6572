package console

import (
	"sync/atomic"

	"github.com/FluidXR/mirrordeck/internal/session"
)

// Feed carries session events from the controller's loop to the console.
// Publish never blocks; when the console falls behind, events are dropped
// and counted.
type Feed struct {
	ch      chan session.Event
	dropped atomic.Int64
}

// NewFeed returns a Feed buffering up to size events.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 1024
	}
	return &Feed{ch: make(chan session.Event, size)}
}

// Publish queues ev. It has the signature of session.Options.OnEvent.
func (f *Feed) Publish(ev session.Event) {
	select {
	case f.ch <- ev:
	default:
		f.dropped.Add(1)
	}
}

// Events is the receiving side of the feed.
func (f *Feed) Events() <-chan session.Event { return f.ch }

// Dropped returns how many events were discarded.
func (f *Feed) Dropped() int64 { return f.dropped.Load() }
