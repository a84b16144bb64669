package blob

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/roach88/soupstore/internal/fault"
)

var _ Store = (*Bolt)(nil)

// Bolt stores blobs in a bbolt file, one bucket per table, keyed by the
// big-endian entry id so keys iterate in id order.
type Bolt struct {
	db     *bbolt.DB
	codec  codec
	logger *slog.Logger
}

// NewBolt opens or creates the bbolt file at path.
func NewBolt(path string, opts ...Option) (*Bolt, error) {
	o := buildOptions(opts)
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	o.logger.Debug("opened bolt blob store", "path", path)
	return &Bolt{db: db, codec: codec{sealer: o.sealer}, logger: o.logger}, nil
}

func boltKey(id int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id))
	return k[:]
}

// Write implements Store.
func (b *Bolt) Write(table string, id int64, content []byte) error {
	data, err := b.codec.encode(table, id, content)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", table, err)
		}
		return bucket.Put(boltKey(id), data)
	})
	if err != nil {
		return fmt.Errorf("write blob %s/%d: %w", table, id, err)
	}
	b.logger.Debug("wrote blob", "table", table, "id", id, "bytes", len(data))
	return nil
}

// Read implements Store.
func (b *Bolt) Read(table string, id int64) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return nil
		}
		// Values are only valid for the life of the transaction
		data = bytes.Clone(bucket.Get(boltKey(id)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read blob %s/%d: %w", table, id, err)
	}
	if data == nil {
		return nil, fault.BlobMissing(table, id, nil)
	}
	return b.codec.decode(table, id, data)
}

// Delete implements Store.
func (b *Bolt) Delete(table string, id int64) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return nil
		}
		return bucket.Delete(boltKey(id))
	})
	if err != nil {
		return fmt.Errorf("delete blob %s/%d: %w", table, id, err)
	}
	return nil
}

// Exists implements Store.
func (b *Bolt) Exists(table string, id int64) (bool, error) {
	var exists bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		exists = bucket != nil && bucket.Get(boltKey(id)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("stat blob %s/%d: %w", table, id, err)
	}
	return exists, nil
}

// IDs lists the entry ids stored for table in ascending order.
func (b *Bolt) IDs(table string) ([]int64, error) {
	var ids []int64
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(table))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			ids = append(ids, int64(binary.BigEndian.Uint64(k)))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs of %s: %w", table, err)
	}
	return ids, nil
}

// DeleteTable implements Store.
func (b *Bolt) DeleteTable(table string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(table)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(table))
	})
	if err != nil {
		return fmt.Errorf("delete blobs of %s: %w", table, err)
	}
	return nil
}

// Close implements Store.
func (b *Bolt) Close() error {
	return b.db.Close()
}
