package ports

import "context"

// Locker serializes work on a single key across callers. Acquire blocks until
// the key is free or ctx ends; the returned func releases the lock.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// IdempotencyClaim is what an idempotency key currently holds.
type IdempotencyClaim struct {
	// Fingerprint identifies the request that first used the key.
	Fingerprint string
	// ID is the record that request produced; zero while it is still running.
	ID int64
}

// IdempotencyStore remembers which record a client-supplied key produced.
// Claim is atomic: of several concurrent callers with the same key exactly one
// gets claimed=true, the others receive the claim already held.
type IdempotencyStore interface {
	Claim(ctx context.Context, scope, key, fingerprint string) (held IdempotencyClaim, claimed bool, err error)
	// Settle records id under a claim obtained from Claim.
	Settle(ctx context.Context, scope, key, fingerprint string, id int64) error
	// Release drops an unsettled claim so the key can be used again.
	Release(ctx context.Context, scope, key, fingerprint string) error
}
