// Package kvstore wraps an embedded ordered key-value store (bbolt)
// with the namespaced prefix view the rest of the index uses: the
// vocabulary, document map, token indexes and stream versions each get
// their own Namespace over one shared on-disk store with a flat
// "<scope>|<role>_<path>" keyspace.
package kvstore

import (
	"bytes"
	"time"

	"go.etcd.io/bbolt"

	"github.com/sapt-mt/sapt/internal/saptid"
)

// rootBucket is the single bbolt bucket backing every namespace. Keys
// already carry their namespace prefix, so one flat ordered bucket is
// enough to give every namespace's prefix scans the same ordering
// guarantees a real multi-namespace store would.
var rootBucket = []byte("sapt")

// Store owns one bbolt database file. All writes are serialised by
// bbolt's own single-writer transaction model.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path. Callers
// managing a KV-store directory (e.g. "<prefix>db/") pass that
// directory's "index.bbolt" member as path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, saptid.Wrap(saptid.KindIoFailure, err, "open kv store "+path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, saptid.Wrap(saptid.KindIoFailure, err, "init kv store bucket")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "close kv store")
	}
	return nil
}

// Namespace returns a prefix view rooted at prefix. Two namespaces with
// unrelated prefixes never collide; a namespace created from another via
// Sub narrows further.
func (s *Store) Namespace(prefix string) *Namespace {
	return &Namespace{store: s, prefix: []byte(prefix)}
}

// Namespace is a byte-string-prefixed view over a Store.
type Namespace struct {
	store  *Store
	prefix []byte
}

// Sub returns a namespace nested under n, i.e. with suffix appended to
// n's prefix.
func (n *Namespace) Sub(suffix string) *Namespace {
	key := make([]byte, 0, len(n.prefix)+len(suffix))
	key = append(key, n.prefix...)
	key = append(key, suffix...)
	return &Namespace{store: n.store, prefix: key}
}

func (n *Namespace) fullKey(key []byte) []byte {
	full := make([]byte, 0, len(n.prefix)+len(key))
	full = append(full, n.prefix...)
	full = append(full, key...)
	return full
}

// Get fetches the value for key, returning a NotFound error if absent.
// The returned slice is a copy safe to retain past the transaction.
func (n *Namespace) Get(key []byte) ([]byte, error) {
	var out []byte
	err := n.store.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(rootBucket)
		v := b.Get(n.fullKey(key))
		if v == nil {
			return saptid.Newf(saptid.KindNotFound, "key %q not found", key)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores key -> value under this namespace.
func (n *Namespace) Put(key, value []byte) error {
	err := n.store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(rootBucket).Put(n.fullKey(key), value)
	})
	if err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "kv put")
	}
	return nil
}

// Delete removes key from this namespace. Deleting an absent key is not
// an error.
func (n *Namespace) Delete(key []byte) error {
	err := n.store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(rootBucket).Delete(n.fullKey(key))
	})
	if err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "kv delete")
	}
	return nil
}

// ScanPrefix iterates, in key order, every entry whose key (relative to
// this namespace) starts with prefix. fn receives the key with the
// namespace prefix stripped. Iteration stops at the first error fn
// returns or the first key no longer matching the prefix.
func (n *Namespace) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	scanPrefix := n.fullKey(prefix)
	return n.store.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		for k, v := c.Seek(scanPrefix); k != nil && bytes.HasPrefix(k, scanPrefix); k, v = c.Next() {
			if err := fn(k[len(n.prefix):], v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Batch accumulates writes to commit atomically under one bbolt
// transaction.
type Batch struct {
	ns  *Namespace
	ops []batchOp
}

type batchOp struct {
	del   bool
	key   []byte
	value []byte
}

// NewBatch starts a new batch scoped to this namespace.
func (n *Namespace) NewBatch() *Batch {
	return &Batch{ns: n}
}

// Put queues a write.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Delete queues a deletion.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{del: true, key: append([]byte(nil), key...)})
}

// Commit applies every queued operation in one transaction.
func (b *Batch) Commit() error {
	if len(b.ops) == 0 {
		return nil
	}
	err := b.ns.store.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(rootBucket)
		for _, op := range b.ops {
			full := b.ns.fullKey(op.key)
			if op.del {
				if err := bucket.Delete(full); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put(full, op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "kv batch commit")
	}
	return nil
}
