package badger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/petitor/internal/interfaces"
)

// conflictRetries bounds optimistic-transaction retries under contention
const conflictRetries = 5

// KVStorage implements the KeyValueStorage interface on raw Badger,
// giving counters atomic increment semantics with window-preserving TTLs.
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

func (s *KVStorage) badger() *badgerdb.DB {
	return s.db.Store().Badger()
}

// update runs fn in a read-write transaction, retrying on optimistic
// conflicts so concurrent counter increments never silently drop.
func (s *KVStorage) update(fn func(txn *badgerdb.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = s.badger().Update(fn)
		if err != badgerdb.ErrConflict {
			return err
		}
	}
	return err
}

// Get retrieves a value by key
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err == badgerdb.ErrKeyNotFound {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

// Set stores a key/value pair without expiry
func (s *KVStorage) Set(ctx context.Context, key, value string) error {
	err := s.update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// SetWithTTL stores a key/value pair that expires after ttl
func (s *KVStorage) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	err := s.update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(key), []byte(value)).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set key %s with ttl: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	err := s.update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists reports whether a live (non-expired) entry exists for key
func (s *KVStorage) Exists(ctx context.Context, key string) (bool, error) {
	err := s.badger().View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if err == badgerdb.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check key %s: %w", key, err)
	}
	return true, nil
}

// IncrementWithTTL atomically increments the counter at key. The first
// increment opens the fixed window by attaching the TTL; later increments
// re-attach the remaining window so the expiry never slides.
func (s *KVStorage) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	var count int64
	var remaining time.Duration

	err := s.update(func(txn *badgerdb.Txn) error {
		count = 1
		remaining = ttl

		item, err := txn.Get([]byte(key))
		if err == nil {
			var parsed int64
			if err := item.Value(func(val []byte) error {
				parsed, err = strconv.ParseInt(string(val), 10, 64)
				return err
			}); err != nil {
				return fmt.Errorf("corrupt counter at %s: %w", key, err)
			}
			count = parsed + 1

			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				left := time.Until(time.Unix(int64(expiresAt), 0))
				if left > 0 {
					remaining = left
				}
			}
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}

		entry := badgerdb.NewEntry([]byte(key), []byte(strconv.FormatInt(count, 10))).WithTTL(remaining)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	return count, remaining, nil
}

// GetCounter returns the current counter value, 0 when absent or expired
func (s *KVStorage) GetCounter(ctx context.Context, key string) (int64, error) {
	value, err := s.Get(ctx, key)
	if err == interfaces.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter at %s: %w", key, err)
	}
	return count, nil
}

// ListKeys returns all keys with the given prefix in lexicographic order
func (s *KVStorage) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}
	return keys, nil
}
