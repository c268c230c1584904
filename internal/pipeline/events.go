package pipeline

import "sync"

// EventType names a pipeline milestone.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventFileExtracted EventType = "file_extracted"
	EventFileUploaded  EventType = "file_uploaded"
	EventFileFailed    EventType = "file_failed"
	EventRunFinished   EventType = "run_finished"
)

// Event is published to subscribers as a run progresses.
type Event struct {
	Type    EventType
	RunID   string
	File    string
	Folder  string
	Failure *Failure
	Report  *Report
}

const eventBuffer = 64

type eventHub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func (h *eventHub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]chan Event)
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks; a subscriber that falls behind misses events.
func (h *eventHub) publish(evt Event) (dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			dropped++
		}
	}
	return dropped
}
