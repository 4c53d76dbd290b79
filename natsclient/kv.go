package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/sorryhyun/DiPeO-sub002/errors"
	"github.com/sorryhyun/DiPeO-sub002/pkg/retry"
)

// KVEntry is a stored value together with the revision needed for
// compare-and-swap updates.
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions tunes KV operation behavior.
type KVOptions struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
}

// DefaultKVOptions returns defaults tuned for low-contention editor saves.
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 5,
		RetryDelay: 10 * time.Millisecond,
		MaxDelay:   time.Second,
	}
}

// KVStore wraps a JetStream key-value bucket with revision-aware operations
// and classified errors.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger
}

// NewKVStore wraps a bucket.
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{bucket: bucket, options: options, logger: c.logger}
}

func (kv *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision.
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key),
				"KVStore", "Get", "key lookup")
		}
		return nil, errors.WrapTransient(err, "KVStore", "Get", "kv read")
	}
	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Create writes a value only if the key does not exist yet.
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if isConflict(err) {
			return 0, errors.WrapInvalid(
				fmt.Errorf("%w: %s already exists", errors.ErrVersionConflict, key),
				"KVStore", "Create", "key create")
		}
		return 0, errors.WrapTransient(err, "KVStore", "Create", "kv write")
	}
	return rev, nil
}

// Update performs a compare-and-swap write against an explicit revision.
func (kv *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if isConflict(err) {
			return 0, errors.WrapInvalid(
				fmt.Errorf("%w: %s at revision %d", errors.ErrVersionConflict, key, revision),
				"KVStore", "Update", "cas write")
		}
		return 0, errors.WrapTransient(err, "KVStore", "Update", "kv write")
	}
	return rev, nil
}

// UpdateWithRetry reads the current value, applies modify, and writes back
// with CAS, retrying with backoff on concurrent writers. modify receives the
// current value (nil when the key is absent) and returns the replacement.
func (kv *KVStore) UpdateWithRetry(ctx context.Context, key string, modify func(current []byte) ([]byte, error)) (uint64, error) {
	cfg := kv.retryConfig()

	return retry.DoWithResult(ctx, cfg, func() (uint64, error) {
		var current []byte
		var revision uint64
		entry, err := kv.Get(ctx, key)
		switch {
		case err == nil:
			current = entry.Value
			revision = entry.Revision
		case stderrors.Is(err, errors.ErrKeyNotFound):
			// First write for this key.
		default:
			return 0, err
		}

		next, err := modify(current)
		if err != nil {
			return 0, retry.NonRetryable(err)
		}

		if revision == 0 {
			rev, err := kv.Create(ctx, key, next)
			if stderrors.Is(err, errors.ErrVersionConflict) {
				kv.logger.Debug("kv create raced, retrying", "key", key)
				return 0, err
			}
			return rev, err
		}
		rev, err := kv.Update(ctx, key, next, revision)
		if stderrors.Is(err, errors.ErrVersionConflict) {
			kv.logger.Debug("kv cas conflict, retrying", "key", key, "revision", revision)
			return 0, err
		}
		return rev, err
	})
}

// retryConfig maps the store's KV options onto the shared retry
// classification bridge.
func (kv *KVStore) retryConfig() retry.Config {
	cfg := errors.DefaultRetryConfig()
	cfg.MaxRetries = kv.options.MaxRetries
	cfg.InitialDelay = kv.options.RetryDelay
	cfg.MaxDelay = kv.options.MaxDelay
	return cfg.ToRetryConfig()
}

// Delete removes a key. Deleting an absent key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if isNotFound(err) {
			return nil
		}
		return errors.WrapTransient(err, "KVStore", "Delete", "kv delete")
	}
	return nil
}

// Keys lists all keys in the bucket. An empty bucket yields an empty slice.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.withTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "Keys", "kv list")
	}
	return keys, nil
}

// isNotFound detects a missing key across nats.go error shapes.
func isNotFound(err error) bool {
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}

// isConflict detects a lost CAS race: key already exists on Create, or the
// stream sequence moved under an Update.
func isConflict(err error) bool {
	if stderrors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}
