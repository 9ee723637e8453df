package hellocache

import (
	"fmt"
	"os"
	"sync"

	"go.etcd.io/bbolt"
)

const (
	HellosBucket = "hellos"
)

// Cache keeps the last hello seen per participant across runs, keyed
// by zid.
type Cache struct {
	db         *bbolt.DB
	mu         sync.RWMutex
	serializer Serializer
}

// Config contains configuration for the Cache
type Config struct {
	Path       string
	FileMode   os.FileMode
	Options    *bbolt.Options
	Serializer Serializer
}

func New(cfg Config) (*Cache, error) {
	if cfg.Serializer == nil {
		cfg.Serializer = &GobSerializer{}
	}

	if cfg.FileMode == 0 {
		cfg.FileMode = 0666
	}

	db, err := bbolt.Open(cfg.Path, cfg.FileMode, cfg.Options)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(HellosBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Cache{
		db:         db,
		serializer: cfg.Serializer,
	}, nil
}

func (c *Cache) Close() error {
	if c.db == nil {
		return ErrNilDB
	}
	return c.db.Close()
}

// Put stores or replaces the cached hello for its zid.
func (c *Cache) Put(hello *CachedHello) error {
	if hello == nil {
		return ErrNilHello
	}

	data, err := c.serializer.Serialize(hello)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(HellosBucket))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(hello.ZID), data)
	})
}

// Get loads the cached hello for a zid.
func (c *Cache) Get(zid string) (*CachedHello, error) {
	var hello CachedHello

	c.mu.RLock()
	defer c.mu.RUnlock()

	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(HellosBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		data := bucket.Get([]byte(zid))
		if data == nil {
			return ErrHelloNotFound
		}

		return c.serializer.Deserialize(data, &hello)
	})

	if err != nil {
		return nil, err
	}
	return &hello, nil
}

// All returns every cached hello.
func (c *Cache) All() ([]*CachedHello, error) {
	var hellos []*CachedHello

	c.mu.RLock()
	defer c.mu.RUnlock()

	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(HellosBucket))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var hello CachedHello
			if err := c.serializer.Deserialize(v, &hello); err != nil {
				return err
			}
			hellos = append(hellos, &hello)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}
	return hellos, nil
}

// Delete removes the cached hello for a zid. Deleting a missing zid is
// not an error.
func (c *Cache) Delete(zid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(HellosBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.Delete([]byte(zid))
	})
}
