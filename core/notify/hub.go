package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecordChange is the payload fanned out to subscribers after a record's
// amendment has been durably committed.
type RecordChange struct {
	RecordID int64     `json:"record_id"`
	At       time.Time `json:"at"`
}

// Hub fans record-change signals out to in-process subscribers over buffered
// channels. Delivery is best effort: a subscriber that cannot keep up has
// signals dropped rather than blocking the publisher.
type Hub struct {
	mu      sync.Mutex
	subs    map[int64]chan RecordChange
	nextID  int64
	bufSize int
	senders []Sender
	logger  *zap.Logger
}

// Sender pushes a change signal to an external destination.
type Sender interface {
	Send(change RecordChange) error
}

func NewHub(bufSize int, logger *zap.Logger, senders ...Sender) *Hub {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Hub{
		subs:    make(map[int64]chan RecordChange),
		bufSize: bufSize,
		senders: senders,
		logger:  logger,
	}
}

// Subscribe returns a channel of change signals and a cancel func. The
// channel is closed on cancel.
func (h *Hub) Subscribe() (<-chan RecordChange, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan RecordChange, h.bufSize)
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

func (h *Hub) RecordChanged(recordID int64) {
	change := RecordChange{RecordID: recordID, At: time.Now().UTC()}
	h.mu.Lock()
	for id, ch := range h.subs {
		select {
		case ch <- change:
		default:
			h.logger.Warn("change signal dropped for slow subscriber",
				zap.Int64("subscriber", id),
				zap.Int64("record_id", recordID))
		}
	}
	h.mu.Unlock()
	for _, s := range h.senders {
		go func(s Sender) {
			if err := s.Send(change); err != nil {
				h.logger.Warn("change signal delivery failed",
					zap.Int64("record_id", recordID),
					zap.Error(err))
			}
		}(s)
	}
}
