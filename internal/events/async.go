package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Async hands events to a sink on its own goroutine so a slow network sink
// never stalls the evaluator. When the queue is full the newest event is dropped.
type Async struct {
	name  string
	sink  Sink
	queue chan Event
	done  chan struct{}
	once  sync.Once
}

func NewAsync(name string, sink Sink, size int) *Async {
	if size <= 0 {
		size = 1
	}
	a := &Async{
		name:  name,
		sink:  sink,
		queue: make(chan Event, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.queue {
		a.sink.Publish(e)
	}
}

func (a *Async) Publish(e Event) {
	select {
	case a.queue <- e:
	default:
		log.Warn().
			Str("sink", a.name).
			Str("event", string(e.Type)).
			Msg("Event queue full, dropping event")
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
// Publishing after Close panics.
func (a *Async) Close() {
	a.once.Do(func() { close(a.queue) })
	<-a.done
}
