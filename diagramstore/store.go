// Package diagramstore persists exported diagram bundles in a NATS JetStream
// key-value bucket, one key per diagram, with optimistic-concurrency version
// checks on update.
package diagramstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
	"github.com/sorryhyun/DiPeO-sub002/natsclient"
	"github.com/sorryhyun/DiPeO-sub002/serializer"
)

// DefaultBucket is the KV bucket holding diagram bundles.
const DefaultBucket = "dipeo_diagrams"

// KV is the key-value surface the store needs. *natsclient.KVStore satisfies
// it; tests substitute an in-memory fake.
type KV interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	UpdateWithRetry(ctx context.Context, key string, modify func(current []byte) ([]byte, error)) (uint64, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Store provides CRUD over persisted diagrams.
type Store struct {
	kv     KV
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a diagram store over a KV bucket.
func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{kv: kv, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validateID checks that an id is usable as a KV key.
func validateID(id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Store", "validateID", "empty diagram id")
	}
	if strings.ContainsAny(id, " \t\n.>*") {
		return errors.WrapInvalid(
			fmt.Errorf("diagram id %q contains reserved characters", id),
			"Store", "validateID", "id validation")
	}
	return nil
}

// Create persists a new diagram and returns its id. A missing metadata id is
// replaced with a generated one. Fails if a diagram with the id already
// exists.
func (s *Store) Create(ctx context.Context, d diagram.Diagram) (string, error) {
	if d.Metadata.ID == "" {
		d.Metadata.ID = uuid.NewString()
	}
	if err := validateID(d.Metadata.ID); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if d.Metadata.CreatedAt.IsZero() {
		d.Metadata.CreatedAt = now
	}
	d.Metadata.UpdatedAt = now

	data, err := serializer.MarshalNative(d)
	if err != nil {
		return "", err
	}
	if _, err := s.kv.Create(ctx, d.Metadata.ID, data); err != nil {
		return "", err
	}
	s.logger.Info("diagram created", "id", d.Metadata.ID, "name", d.Metadata.Name)
	return d.Metadata.ID, nil
}

// Get loads a diagram and the storage revision to pass back into Update.
func (s *Store) Get(ctx context.Context, id string) (diagram.Diagram, uint64, error) {
	if err := validateID(id); err != nil {
		return diagram.Diagram{}, 0, err
	}
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		return diagram.Diagram{}, 0, err
	}
	d, err := serializer.UnmarshalNative(entry.Value)
	if err != nil {
		return diagram.Diagram{}, 0, err
	}
	return d, entry.Revision, nil
}

// Update overwrites a diagram at a known revision. A concurrent writer since
// the caller's Get surfaces as an invalid version-conflict error.
func (s *Store) Update(ctx context.Context, d diagram.Diagram, revision uint64) (uint64, error) {
	if err := validateID(d.Metadata.ID); err != nil {
		return 0, err
	}
	d.Metadata.UpdatedAt = time.Now().UTC()

	data, err := serializer.MarshalNative(d)
	if err != nil {
		return 0, err
	}
	rev, err := s.kv.Update(ctx, d.Metadata.ID, data, revision)
	if err != nil {
		return 0, err
	}
	s.logger.Info("diagram updated", "id", d.Metadata.ID, "revision", rev)
	return rev, nil
}

// Save writes a diagram unconditionally, retrying through CAS races. Used by
// editor autosave, where the latest full snapshot always wins.
func (s *Store) Save(ctx context.Context, d diagram.Diagram) (uint64, error) {
	if err := validateID(d.Metadata.ID); err != nil {
		return 0, err
	}
	d.Metadata.UpdatedAt = time.Now().UTC()

	data, err := serializer.MarshalNative(d)
	if err != nil {
		return 0, err
	}
	return s.kv.UpdateWithRetry(ctx, d.Metadata.ID, func(current []byte) ([]byte, error) {
		if current != nil {
			// Keep the original creation time across overwrites.
			existing, err := serializer.UnmarshalNative(current)
			if err == nil && !existing.Metadata.CreatedAt.IsZero() {
				d.Metadata.CreatedAt = existing.Metadata.CreatedAt
				return serializer.MarshalNative(d)
			}
		}
		return data, nil
	})
}

// Delete removes a persisted diagram. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("diagram deleted", "id", id)
	return nil
}

// List returns the metadata of every persisted diagram. Entries that fail to
// decode are skipped with a warning rather than failing the listing.
func (s *Store) List(ctx context.Context) ([]diagram.Metadata, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, err
	}

	metas := make([]diagram.Metadata, 0, len(keys))
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, errors.ErrKeyNotFound) {
				continue // deleted between Keys and Get
			}
			return nil, err
		}
		d, err := serializer.UnmarshalNative(entry.Value)
		if err != nil {
			s.logger.Warn("skipping undecodable diagram", "key", key, "error", err)
			continue
		}
		if d.Metadata.ID == "" {
			d.Metadata.ID = key
		}
		metas = append(metas, d.Metadata)
	}
	return metas, nil
}
