package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rzbill/gate/pkg/log"
)

// Validate that BadgerStore implements the BucketStore interface
var _ BucketStore = &BadgerStore{}

// bucketKeyPrefix namespaces bucket entries inside the database.
const bucketKeyPrefix = "bucket:"

// BadgerStore is a BucketStore backed by BadgerDB. Buckets survive a
// gateway restart, so a rolling deploy does not hand every project a
// fresh window.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger log.Logger
}

// NewBadgerStore creates a new BadgerDB-backed bucket store.
func NewBadgerStore(logger log.Logger) *BadgerStore {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &BadgerStore{
		logger: logger.WithComponent("ratelimit-store"),
	}
}

// Open opens the BadgerDB database at path.
func (s *BadgerStore) Open(path string) error {
	s.path = path

	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogAdapter{logger: s.logger}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger db: %w", err)
	}
	s.db = db

	s.logger.Info("rate-limit bucket store opened", log.Str("path", path))
	return nil
}

// Get retrieves the bucket stored under key.
func (s *BadgerStore) Get(ctx context.Context, key string) (*Bucket, bool, error) {
	var bucket Bucket
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(bucketKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &bucket)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get bucket %s: %w", key, err)
	}
	return &bucket, true, nil
}

// Set stores the bucket under key.
func (s *BadgerStore) Set(ctx context.Context, key string, bucket *Bucket) error {
	data, err := json.Marshal(bucket)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(bucketKeyPrefix+key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to set bucket %s: %w", key, err)
	}
	return nil
}

// Delete removes the bucket stored under key.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(bucketKeyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", key, err)
	}
	return nil
}

// ClearExpired removes buckets whose window ended before now.
func (s *BadgerStore) ClearExpired(ctx context.Context, now time.Time) (int, error) {
	var expired [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(bucketKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var bucket Bucket
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &bucket)
			})
			if err != nil {
				// An unreadable bucket is reclaimed too.
				expired = append(expired, item.KeyCopy(nil))
				continue
			}
			if bucket.Expired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan buckets: %w", err)
	}

	for _, key := range expired {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return 0, fmt.Errorf("failed to delete expired bucket: %w", err)
		}
	}

	return len(expired), nil
}

// Close closes the BadgerDB database.
func (s *BadgerStore) Close() error {
	if s.db != nil {
		s.logger.Info("closing rate-limit bucket store", log.Str("path", s.path))
		return s.db.Close()
	}
	return nil
}

// badgerLogAdapter bridges badger's printf-style logger to the Gate
// logger.
type badgerLogAdapter struct {
	logger log.Logger
}

func (a *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Infof(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
