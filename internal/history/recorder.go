package history

import (
	"sync"
	"sync/atomic"

	"github.com/FluidXR/mirrordeck/internal/session"

	"go.uber.org/zap"
)

const recorderBuffer = 256

// Recorder writes session events to the database from its own goroutine,
// so the session loop never waits on disk.
type Recorder struct {
	db     *DB
	logger *zap.Logger

	buffer   chan session.Event
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64
}

// NewRecorder starts a Recorder writing to db.
func NewRecorder(db *DB, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		db:     db,
		logger: logger.Named("history"),
		buffer: make(chan session.Event, recorderBuffer),
		stopCh: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Observe queues ev. It never blocks; events are dropped when the buffer
// is full. Observe has the signature of session.Options.OnEvent.
func (r *Recorder) Observe(ev session.Event) {
	if !stored(ev.Kind) {
		return
	}
	select {
	case r.buffer <- ev:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("history buffer full, dropping events", zap.Int64("dropped", n))
		}
	}
}

// Close writes what is still buffered and stops the goroutine. Safe to call
// multiple times.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			for {
				select {
				case ev := <-r.buffer:
					r.write(ev)
				default:
					return
				}
			}
		case ev := <-r.buffer:
			r.write(ev)
		}
	}
}

func (r *Recorder) write(ev session.Event) {
	var err error
	switch ev.Kind {
	case session.EventDevices:
		err = r.db.RecordSeen(ev.Time, ev.Devices...)
	case session.EventWirelessReady:
		if err = r.db.RecordWireless(ev.Previous, ev.Device, ev.Time); err == nil {
			err = r.db.RecordSeen(ev.Time, ev.Device)
		}
		if err == nil {
			err = r.db.RecordEvent(EventRecord{Device: ev.Previous, Kind: string(ev.Kind), Message: ev.String(), At: ev.Time})
		}
	default:
		err = r.db.RecordEvent(EventRecord{Device: ev.Device, Kind: string(ev.Kind), Message: ev.String(), At: ev.Time})
	}
	if err != nil {
		r.logger.Warn("failed to record event", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// stored reports whether events of kind belong in the history. Battery
// samples, output lines and progress messages are too chatty.
func stored(kind session.EventKind) bool {
	switch kind {
	case session.EventBattery, session.EventOutput, session.EventStatus:
		return false
	}
	return true
}
