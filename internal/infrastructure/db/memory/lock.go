package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

// Locker is a per-key mutex for single-process deployments.
type Locker struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{keys: make(map[string]*keyLock)}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.keys[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, kl)
		return nil, domain.Transport(fmt.Sprintf("acquire lock %s", key), ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.drop(key, kl)
		})
	}, nil
}

func (l *Locker) drop(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.keys, key)
	}
}

// IdempotencyStore keeps idempotency keys for the life of the process.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]ports.IdempotencyClaim
}

// NewIdempotencyStore returns an empty store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{keys: make(map[string]ports.IdempotencyClaim)}
}

func (s *IdempotencyStore) Claim(_ context.Context, scope, key, fingerprint string) (ports.IdempotencyClaim, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + "|" + key
	if held, ok := s.keys[k]; ok {
		return held, false, nil
	}
	s.keys[k] = ports.IdempotencyClaim{Fingerprint: fingerprint}
	return ports.IdempotencyClaim{}, true, nil
}

func (s *IdempotencyStore) Settle(_ context.Context, scope, key, fingerprint string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[scope+"|"+key] = ports.IdempotencyClaim{Fingerprint: fingerprint, ID: id}
	return nil
}

func (s *IdempotencyStore) Release(_ context.Context, scope, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scope + "|" + key
	if held, ok := s.keys[k]; ok && held.ID == 0 && held.Fingerprint == fingerprint {
		delete(s.keys, k)
	}
	return nil
}

var (
	_ ports.Locker           = (*Locker)(nil)
	_ ports.IdempotencyStore = (*IdempotencyStore)(nil)
)
