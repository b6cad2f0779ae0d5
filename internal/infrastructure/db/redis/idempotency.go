package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/approval-system/internal/core/domain"
	"github.com/99minutos/approval-system/internal/core/ports"
)

const (
	idempotencyTTL = 24 * time.Hour
	// An unsettled claim outlives any create; if its holder crashed the key
	// frees up after this long.
	claimTTL = 2 * time.Minute
)

// releaseClaimScript deletes the key only while it still holds the unsettled
// claim written by Claim.
var releaseClaimScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdempotencyStore maps (caller, Idempotency-Key) to the transaction the first
// request created.
// Key format: idem:<scope>:<key>, value: <fingerprint>|<transaction id, 0 while unsettled>
type IdempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore wraps the given Redis client.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client}
}

// Claim takes the key with SET NX. A loser reads back the claim it lost to;
// if that claim expired in between, the claim is attempted again.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key, fingerprint string) (ports.IdempotencyClaim, bool, error) {
	k := s.key(scope, key)
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := s.client.SetNX(ctx, k, encodeClaim(fingerprint, 0), claimTTL).Result()
		if err != nil {
			return ports.IdempotencyClaim{}, false, domain.Transport("idempotency claim", err)
		}
		if ok {
			return ports.IdempotencyClaim{}, true, nil
		}

		v, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return ports.IdempotencyClaim{}, false, domain.Transport("idempotency claim", err)
		}
		held, err := decodeClaim(v)
		if err != nil {
			return ports.IdempotencyClaim{}, false, err
		}
		return held, false, nil
	}
	return ports.IdempotencyClaim{}, false, domain.ErrRequestInFlight
}

// Settle records id under the key; it expires after idempotencyTTL.
func (s *IdempotencyStore) Settle(ctx context.Context, scope, key, fingerprint string, id int64) error {
	if err := s.client.Set(ctx, s.key(scope, key), encodeClaim(fingerprint, id), idempotencyTTL).Err(); err != nil {
		return domain.Transport("idempotency settle", err)
	}
	return nil
}

func (s *IdempotencyStore) Release(ctx context.Context, scope, key, fingerprint string) error {
	err := releaseClaimScript.Run(ctx, s.client, []string{s.key(scope, key)}, encodeClaim(fingerprint, 0)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Transport("idempotency release", err)
	}
	return nil
}

func encodeClaim(fingerprint string, id int64) string {
	return fingerprint + "|" + strconv.FormatInt(id, 10)
}

func decodeClaim(v string) (ports.IdempotencyClaim, error) {
	fp, raw, ok := strings.Cut(v, "|")
	if !ok {
		return ports.IdempotencyClaim{}, fmt.Errorf("idempotency claim: corrupt value %q", v)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ports.IdempotencyClaim{}, fmt.Errorf("idempotency claim: corrupt value %q: %w", v, err)
	}
	return ports.IdempotencyClaim{Fingerprint: fp, ID: id}, nil
}

func (s *IdempotencyStore) key(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)
