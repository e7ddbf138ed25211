package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/catalogfi/swapper/pkg/swap"
	"github.com/redis/go-redis/v9"
)

// DefaultClaimTTL is how long a claim blocks resubmission of the same action.
// A submission which silently failed off-chain becomes retriable once the
// claim expires.
const DefaultClaimTTL = time.Hour

// Claim records that an action for an order has been submitted.
type Claim struct {
	TxHash string `json:"txHash"`

	// SubmittedAt is stored in unix milliseconds on the wire.
	SubmittedAt time.Time `json:"-"`
}

type claimJSON struct {
	TxHash          string `json:"txHash"`
	TimestampMillis int64  `json:"timestampMillis"`
}

func (claim Claim) MarshalJSON() ([]byte, error) {
	return json.Marshal(claimJSON{
		TxHash:          claim.TxHash,
		TimestampMillis: claim.SubmittedAt.UnixMilli(),
	})
}

func (claim *Claim) UnmarshalJSON(data []byte) error {
	var decoded claimJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	claim.TxHash = decoded.TxHash
	claim.SubmittedAt = time.UnixMilli(decoded.TimestampMillis)
	return nil
}

// Store is the idempotency ledger for on-chain actions. TryClaim is the only
// gate between a decision and the submitter, it must be atomic under
// concurrent callers for the same (order, action) key. Any backend failure
// fails the claim closed, the engine would rather skip a cycle than risk
// submitting twice.
type Store interface {
	// TryClaim atomically checks for an unexpired claim on (orderID, action)
	// and inserts one if absent. It returns true if the caller owns the claim
	// and may submit.
	TryClaim(orderID string, action swap.Action, ttl time.Duration) (bool, error)

	// RecordResult attaches the resulting tx hash to an existing claim once
	// the submission succeeds.
	RecordResult(orderID string, action swap.Action, txHash string) error

	// Release drops the claim so the action can be retried immediately. Used
	// when a submission is known to have failed before reaching the network.
	Release(orderID string, action swap.Action) error

	// Claim returns the claim without refreshing its TTL.
	Claim(orderID string, action swap.Action) (Claim, bool, error)

	// RemainingTTL reports how long the claim stays valid, zero if there is
	// no unexpired claim.
	RemainingTTL(orderID string, action swap.Action) (time.Duration, error)
}

// claimKey is also the persisted key layout, keep it stable across restarts.
func claimKey(orderID string, action swap.Action) string {
	return fmt.Sprintf("%v:%v", orderID, action)
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Store backed by redis, claims survive process
// restarts. The atomic check-and-set is redis SETNX with expiry.
func NewRedisStore(redisURL string) (Store, error) {
	parsedURL, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	redisPassword, _ := parsedURL.User.Password()
	client := redis.NewClient(&redis.Options{
		Addr:     parsedURL.Host,
		Password: redisPassword,
		DB:       0, // Use default DB.
	})
	return redisStore{client: client}, nil
}

func (rs redisStore) TryClaim(orderID string, action swap.Action, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	claim := Claim{SubmittedAt: time.Now()}
	data, err := json.Marshal(claim)
	if err != nil {
		return false, err
	}
	return rs.client.SetNX(ctx, claimKey(orderID, action), data, ttl).Result()
}

func (rs redisStore) RecordResult(orderID string, action swap.Action, txHash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := claimKey(orderID, action)
	claim, ok, err := rs.claim(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no claim to record for %v", key)
	}
	claim.TxHash = txHash
	data, err := json.Marshal(claim)
	if err != nil {
		return err
	}
	// KeepTTL so recording the result never extends the claim
	return rs.client.Set(ctx, key, data, redis.KeepTTL).Err()
}

func (rs redisStore) Release(orderID string, action swap.Action) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return rs.client.Del(ctx, claimKey(orderID, action)).Err()
}

func (rs redisStore) Claim(orderID string, action swap.Action) (Claim, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return rs.claim(ctx, claimKey(orderID, action))
}

func (rs redisStore) RemainingTTL(orderID string, action swap.Action) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ttl, err := rs.client.PTTL(ctx, claimKey(orderID, action)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (rs redisStore) claim(ctx context.Context, key string) (Claim, bool, error) {
	data, err := rs.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Claim{}, false, nil
	}
	if err != nil {
		return Claim{}, false, err
	}
	var claim Claim
	if err := json.Unmarshal(data, &claim); err != nil {
		return Claim{}, false, err
	}
	return claim, true, nil
}
