package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/loykin/drwatch/internal/store"
)

// shared keeps one bolt handle per file. bolt takes an exclusive file lock, so
// primary and backup stores on the same file must share the handle.
type shared struct {
	db   *bolt.DB
	refs int
}

var (
	openMu sync.Mutex
	opened = map[string]*shared{}
)

// Store implements store.Store on a bbolt bucket named after the store.
// Keys are big-endian sequence numbers so cursor order is insertion order.
type Store struct {
	path   string
	name   string
	bucket []byte
	db     *bolt.DB
	once   sync.Once
}

// New opens (or creates) the bolt file at path and the bucket for name.
func New(path, name string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty bolt path")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("empty store name")
	}
	p = filepath.Clean(p)
	db, err := acquire(p)
	if err != nil {
		return nil, err
	}
	s := &Store{path: p, name: name, bucket: []byte(name), db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	return s, nil
}

func acquire(path string) (*bolt.DB, error) {
	openMu.Lock()
	defer openMu.Unlock()
	if sh, ok := opened[path]; ok {
		sh.refs++
		return sh.db, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	opened[path] = &shared{db: db, refs: 1}
	return db, nil
}

func release(path string) error {
	openMu.Lock()
	defer openMu.Unlock()
	sh, ok := opened[path]
	if !ok {
		return nil
	}
	sh.refs--
	if sh.refs > 0 {
		return nil
	}
	delete(opened, path)
	return sh.db.Close()
}

func (s *Store) Name() string { return s.name }

func (s *Store) Close() error {
	var err error
	s.once.Do(func() { err = release(s.path) })
	return err
}

func (s *Store) ReadAll(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			out = append(out, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReadBlob(ctx context.Context) (string, error) {
	recs, err := s.ReadAll(ctx)
	if err != nil {
		return "", err
	}
	return store.Blob(recs), nil
}

func (s *Store) AppendLine(ctx context.Context, record string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return put(b, record)
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.WriteAll(ctx, nil)
}

func (s *Store) WriteAll(ctx context.Context, records []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket) != nil {
			if err := tx.DeleteBucket(s.bucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(s.bucket)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := put(b, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func put(b *bolt.Bucket, record string) error {
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	return b.Put(encodeUint64ToBytes(seq), []byte(record))
}

func encodeUint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
