package sim

import (
	"sort"
	"time"

	"github.com/dop251/goja"
)

// minInterval is the shortest delay of a repeating timer.
const minInterval = 4 * time.Millisecond

type timer struct {
	id       int64
	due      time.Time
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
}

// timers are the pending setTimeout and setInterval callbacks of a page.
type timers struct {
	next int64
	list map[int64]*timer
}

func newTimers() *timers {
	return &timers{list: make(map[int64]*timer)}
}

func (t *timers) add(fn goja.Callable, delay time.Duration, repeat bool, args []goja.Value) int64 {
	t.next++
	tm := &timer{id: t.next, due: time.Now().Add(delay), fn: fn, args: args}
	if repeat {
		tm.interval = max(delay, minInterval)
	}
	t.list[tm.id] = tm
	return tm.id
}

func (t *timers) cancel(id int64) {
	delete(t.list, id)
}

// due removes and returns the timers due at now, oldest first. Repeating
// timers are rescheduled.
func (t *timers) due(now time.Time) []*timer {
	var out []*timer
	for _, tm := range t.list {
		if !tm.due.After(now) {
			out = append(out, tm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].due.Equal(out[j].due) {
			return out[i].id < out[j].id
		}
		return out[i].due.Before(out[j].due)
	})
	for _, tm := range out {
		if tm.interval > 0 {
			tm.due = now.Add(tm.interval)
			continue
		}
		delete(t.list, tm.id)
	}
	return out
}

func (t *timers) len() int { return len(t.list) }
