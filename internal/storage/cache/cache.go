// internal/storage/cache/cache.go
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"taskmill/internal/config"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const lastCompletedPrefix = "lastrun:"

// LastCompletedKey builds the cache key for a task's most recent completed
// run.
func LastCompletedKey(taskName string) string {
	return fmt.Sprintf("%s%s", lastCompletedPrefix, taskName)
}

type entry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Client is a local LevelDB cache with per-entry TTL. The run store stays the
// source of truth; the cache only short-circuits repeated lookups on the hot
// scheduling path.
type Client struct {
	db              *leveldb.DB
	ttl             time.Duration
	cleanupInterval time.Duration
	mutex           sync.RWMutex
	stopCleanup     chan struct{}
}

func NewClient(cfg config.CacheConfig, ttl time.Duration) (*Client, error) {
	opts := &opt.Options{
		CompactionTableSize: 2 * 1024 * 1024, // 2MB
		WriteBuffer:         1 * 1024 * 1024, // 1MB
	}

	db, err := leveldb.OpenFile(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	client := &Client{
		db:              db,
		ttl:             ttl,
		cleanupInterval: 6 * time.Hour,
		stopCleanup:     make(chan struct{}),
	}

	go client.startCleanupRoutine()

	return client, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	close(c.stopCleanup)
	return c.db.Close()
}

// Put stores a value under key. Nil receiver is a no-op so callers can run
// without a cache configured.
func (c *Client) Put(key string, value []byte) error {
	if c == nil {
		return nil
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e := entry{
		Value:     value,
		ExpiresAt: time.Now().Add(c.ttl),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return c.db.Put([]byte(key), data, nil)
}

// Get returns the cached value, or nil on a miss or expired entry.
func (c *Client) Get(key string) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	c.mutex.RLock()
	data, err := c.db.Get([]byte(key), nil)
	c.mutex.RUnlock()
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	if time.Now().After(e.ExpiresAt) {
		c.mutex.Lock()
		_ = c.db.Delete([]byte(key), nil)
		c.mutex.Unlock()
		return nil, nil
	}

	return e.Value, nil
}

func (c *Client) Delete(key string) error {
	if c == nil {
		return nil
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.db.Delete([]byte(key), nil)
}

func (c *Client) startCleanupRoutine() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Client) cleanup() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	iter := c.db.NewIterator(util.BytesPrefix([]byte{}), nil)
	defer iter.Release()

	var keysToDelete [][]byte
	for iter.Next() {
		var e entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue
		}
		if time.Now().After(e.ExpiresAt) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}

	for _, key := range keysToDelete {
		c.db.Delete(key, nil)
	}
}
