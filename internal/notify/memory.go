package notify

import (
	"context"
	"sync"
)

// MemoryBus delivers events within one process.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan Event]struct{})}
}

// Publish never blocks; slow subscribers miss events.
func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.AnalysisID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, analysisID string) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	set, ok := b.subs[analysisID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[analysisID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[analysisID], ch)
		if len(b.subs[analysisID]) == 0 {
			delete(b.subs, analysisID)
		}
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *MemoryBus) subscribers(analysisID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[analysisID])
}

func (b *MemoryBus) Close() error { return nil }
