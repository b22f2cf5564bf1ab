package cdp

import (
	"sync"

	"github.com/chromedp/cdproto"

	"github.com/grafana/xk6-headless/log"
)

// eventBufferSize is the number of events a subscriber can fall behind
// before events are dropped.
const eventBufferSize = 512

// Event is a decoded CDP event. Data is one of the cdproto Event* types.
type Event struct {
	Name      cdproto.MethodType
	Data      any
	SessionID string
}

type subscriber struct {
	sessionID string
	events    map[cdproto.MethodType]bool
	ch        chan *Event
}

// eventWatcher fans the received events out to the subscribers of their
// session. It never blocks the receiving goroutine.
type eventWatcher struct {
	logger *log.Logger

	subsMu sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

func newEventWatcher(logger *log.Logger) *eventWatcher {
	return &eventWatcher{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// subscribe registers a subscriber for events of sessionID. The returned
// function unsubscribes and closes the channel.
func (w *eventWatcher) subscribe(sessionID string, events ...cdproto.MethodType) (<-chan *Event, func()) {
	s := &subscriber{
		sessionID: sessionID,
		events:    make(map[cdproto.MethodType]bool, len(events)),
		ch:        make(chan *Event, eventBufferSize),
	}
	for _, evt := range events {
		s.events[evt] = true
	}

	w.subsMu.Lock()
	defer w.subsMu.Unlock()
	if w.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	w.subs[s] = struct{}{}

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			w.subsMu.Lock()
			defer w.subsMu.Unlock()
			if _, ok := w.subs[s]; ok {
				delete(w.subs, s)
				close(s.ch)
			}
		})
	}
}

func (w *eventWatcher) notify(evt *Event) {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()

	for s := range w.subs {
		if s.sessionID != evt.SessionID || !s.events[evt.Name] {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			w.logger.Warnf("cdp:eventWatcher", "sid:%q dropped event %s: subscriber is full", evt.SessionID, evt.Name)
		}
	}
}

// close closes every subscriber channel.
func (w *eventWatcher) close() {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	w.closed = true
	for s := range w.subs {
		delete(w.subs, s)
		close(s.ch)
	}
}
