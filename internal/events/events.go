package events

import (
	"sync"
	"sync/atomic"
)

// Message is one progress-surface event. Two shapes share the struct:
// job_update carries Status (and Error on failure), progress carries Stats.
type Message struct {
	Type   string         `json:"type"`
	JobID  int64          `json:"job_id"`
	Status string         `json:"status,omitempty"`
	Error  string         `json:"error,omitempty"`
	Stats  map[string]any `json:"stats,omitempty"`
}

const (
	TypeJobUpdate = "job_update"
	TypeProgress  = "progress"
)

func JobUpdate(jobID int64, status, errMsg string) Message {
	return Message{Type: TypeJobUpdate, JobID: jobID, Status: status, Error: errMsg}
}

func Progress(jobID int64, stats map[string]any) Message {
	return Message{Type: TypeProgress, JobID: jobID, Stats: stats}
}

// Broker fans published messages out to every subscriber. Slow subscribers
// lose messages rather than stall the monitor loops publishing them.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Message
	nextID      atomic.Uint64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[uint64]chan Message)}
}

// Subscribe registers a buffered subscriber channel and returns it with an
// unsubscribe handle.
func (b *Broker) Subscribe() (<-chan Message, func()) {
	id := b.nextID.Add(1)
	ch := make(chan Message, 64)

	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if c, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(c)
		}
		b.mu.Unlock()
	}
}

func (b *Broker) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
