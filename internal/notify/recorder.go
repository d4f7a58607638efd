package notify

import (
	"context"
	"sync"
)

// Recorder is a Notifier that keeps messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Notify records msg with de-duplicated recipients.
func (r *Recorder) Notify(_ context.Context, msg Message) {
	msg.UserIDs = Dedupe(msg.UserIDs)
	if len(msg.UserIDs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// CountFor returns how many recorded messages addressed userID.
func (r *Recorder) CountFor(userID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.messages {
		for _, id := range msg.UserIDs {
			if id == userID {
				count++
			}
		}
	}
	return count
}
