package protocol

import (
	"sync"
)

// Emitter receives outbound messages. Implementations must be safe for
// concurrent use; scripts on different instances emit at the same time.
type Emitter interface {
	Emit(msg *Message)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(msg *Message)

func (f EmitterFunc) Emit(msg *Message) { f(msg) }

// Discard drops every message.
var Discard Emitter = EmitterFunc(func(*Message) {})

// Send builds a message and emits it.
func Send(e Emitter, msgType MessageType, data any) error {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return err
	}
	e.Emit(msg)
	return nil
}

// Fanout copies every message to each subscriber.
type Fanout struct {
	mu   sync.RWMutex
	subs map[string]Emitter
}

// NewFanout creates an empty fanout.
func NewFanout() *Fanout {
	return &Fanout{subs: make(map[string]Emitter)}
}

// Add registers a subscriber under id, replacing any previous one.
func (f *Fanout) Add(id string, e Emitter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[id] = e
}

// Remove drops a subscriber.
func (f *Fanout) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

// Len returns the number of subscribers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Fanout) Emit(msg *Message) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, e := range f.subs {
		e.Emit(msg)
	}
}
