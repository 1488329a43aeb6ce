package ticker

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks live tickers so they can be stopped together.
type Registry struct {
	mu      sync.Mutex
	tickers map[uuid.UUID]*Ticker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tickers: make(map[uuid.UUID]*Ticker)}
}

// Create makes a ticker that removes itself from the registry when it stops.
func (r *Registry) Create(period time.Duration, fn Func, onStop func(*Ticker, error)) *Ticker {
	t := New(period, fn, func(t *Ticker, err error) {
		r.remove(t.ID)
		if onStop != nil {
			onStop(t, err)
		}
	})
	r.mu.Lock()
	r.tickers[t.ID] = t
	r.mu.Unlock()
	return t
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.tickers, id)
	r.mu.Unlock()
}

// Get returns a live ticker by id.
func (r *Registry) Get(id uuid.UUID) (*Ticker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickers[id]
	return t, ok
}

// Len returns the number of live tickers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickers)
}

// Clear stops every live ticker and waits for each loop to exit.
// It must not be called from inside a tick callback.
func (r *Registry) Clear() int {
	r.mu.Lock()
	live := make([]*Ticker, 0, len(r.tickers))
	for _, t := range r.tickers {
		live = append(live, t)
	}
	r.mu.Unlock()

	for _, t := range live {
		t.Done()
	}
	for _, t := range live {
		<-t.Stopped()
	}
	return len(live)
}
