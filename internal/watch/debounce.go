package watch

import (
	"context"
	"sync"
	"time"
)

// eventDebouncer collects file events until none has arrived for the
// debounce period. Flushes run on the watcher's own goroutine so that Stop
// can wait for them.
type eventDebouncer struct {
	events   map[string]EventType
	mutex    sync.Mutex
	debounce time.Duration
	timer    *time.Timer
	ready    chan struct{}
}

func newEventDebouncer(debounce time.Duration) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]EventType),
		debounce: debounce,
		ready:    make(chan struct{}, 1),
	}
}

// addEvent records the latest event for path and restarts the quiet period
func (d *eventDebouncer) addEvent(path string, eventType EventType) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	// A create followed by writes is still a create, and a write after a
	// remove means the file is back.
	if prev, ok := d.events[path]; !ok || prev != EventCreate || eventType == EventRemove {
		d.events[path] = eventType
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.signal)
}

func (d *eventDebouncer) signal() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

func (d *eventDebouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// take returns and clears the pending events
func (d *eventDebouncer) take() map[string]EventType {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	events := d.events
	d.events = make(map[string]EventType)
	return events
}

// run delivers settled events to flush until ctx is done. Events pending
// at shutdown are dropped.
func (d *eventDebouncer) run(ctx context.Context, wg *sync.WaitGroup, flush func(map[string]EventType)) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.ready:
			if events := d.take(); len(events) > 0 {
				flush(events)
			}
		}
	}
}
