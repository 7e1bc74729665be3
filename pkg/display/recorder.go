package display

import (
	"sync"

	"assetload/pkg/common"
)

// Event is one presenter call captured by a Recorder.
type Event struct {
	// Clear is true for OnClear calls.
	Clear bool
	Kind  common.Kind
	Value common.Value
}

// Recorder is a Presenter that remembers what it was asked to show.
// It keeps the current view per kind, which the browser TUI renders.
// Mutable
type Recorder struct {
	mu      sync.Mutex
	events  []Event
	current map[common.Kind]common.Value
}

func NewRecorder() *Recorder {
	return &Recorder{current: make(map[common.Kind]common.Value)}
}

func (r *Recorder) OnDisplay(kind common.Kind, v common.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: kind, Value: v})
	r.current[kind] = v
}

func (r *Recorder) OnClear(kind common.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Clear: true, Kind: kind})
	delete(r.current, kind)
}

// Events returns a copy of every call received so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Current returns the value on display for kind, if any.
func (r *Recorder) Current(kind common.Kind) (common.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.current[kind]
	return v, ok
}

// Count returns how many display (clear=false) or clear (clear=true) calls
// were made for kind.
func (r *Recorder) Count(kind common.Kind, clear bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && e.Clear == clear {
			n++
		}
	}
	return n
}

// Fanout forwards presenter calls to several presenters in order.
type Fanout []Presenter

func (f Fanout) OnDisplay(kind common.Kind, v common.Value) {
	for _, p := range f {
		p.OnDisplay(kind, v)
	}
}

func (f Fanout) OnClear(kind common.Kind) {
	for _, p := range f {
		p.OnClear(kind)
	}
}
