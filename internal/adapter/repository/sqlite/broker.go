package sqlite

import (
	"context"
	"sync"
)

// broker fans out "trip changed" signals to in-process subscribers. A slow
// subscriber only ever sees one pending signal.
type broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *broker) subscribe(ctx context.Context, tripID string) <-chan struct{} {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs[tripID] == nil {
		b.subs[tripID] = make(map[chan struct{}]struct{})
	}
	b.subs[tripID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[tripID], ch)
		if len(b.subs[tripID]) == 0 {
			delete(b.subs, tripID)
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *broker) publish(tripID string) {
	if tripID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[tripID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
