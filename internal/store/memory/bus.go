package memory

import (
	"context"
	"path"
	"sync"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

const subscriberBuffer = 128

type subscriber struct {
	pattern string
	out     chan []byte
	done    <-chan struct{}
}

// SignalBus is an in-process domain.SignalBus. Like Redis Pub/Sub it drops
// nothing for subscribers that keep up and delivers nothing to late joiners;
// a subscriber whose buffer is full misses the message.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewSignalBus returns an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[*subscriber]struct{})}
}

var _ domain.SignalBus = (*SignalBus)(nil)

// Publish hands payload to every subscriber whose pattern matches channel.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.out <- payload:
		case <-s.done:
		default:
		}
	}
	return nil
}

// Subscribe accepts exact channel names and glob patterns. The returned
// channel is closed when ctx is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if _, err := path.Match(channel, ""); err != nil {
		return nil, err
	}
	s := &subscriber{pattern: channel, out: make(chan []byte, subscriberBuffer), done: ctx.Done()}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.out)
	}()
	return s.out, nil
}
