// Package blob stores externalized soup entry payloads outside the row store.
//
// A blob is identified by (table, entry id) and nothing else, so its
// location can be computed without consulting the database. Two backends
// are provided: Dir keeps one file per entry under {root}/{table}/, Bolt
// keeps one bbolt bucket per table. Both wrap the payload in a msgpack
// envelope recording its identity, and both can seal the payload with
// AES-GCM when the store has a passphrase.
//
// Reading a blob that does not exist fails with BLOB_MISSING. Deleting one
// that does not exist succeeds.
package blob

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"
)

// Store persists externalized payloads keyed by table and entry id.
type Store interface {
	// Write stores content, replacing any previous blob for the key.
	Write(table string, id int64, content []byte) error

	// Read returns the content, or a BLOB_MISSING error.
	Read(table string, id int64) ([]byte, error)

	// Delete removes the blob. Missing blobs are not an error.
	Delete(table string, id int64) error

	// Exists reports whether a blob is stored for the key.
	Exists(table string, id int64) (bool, error)

	// DeleteTable removes every blob of table.
	DeleteTable(table string) error

	// Close releases backend resources.
	Close() error
}

// Lister is implemented by backends that can enumerate a table's blobs.
type Lister interface {
	IDs(table string) ([]int64, error)
}

// FileName is the per-entry name used by both backends' diagnostics and by
// the Dir backend on disk.
func FileName(id int64) string {
	return fmt.Sprintf("soupelt_%d", id)
}

// Option configures a backend.
type Option func(*options)

type options struct {
	sealer Sealer
	logger *slog.Logger
}

// WithSealer seals payloads at rest.
func WithSealer(s Sealer) Option {
	return func(o *options) { o.sealer = s }
}

// WithLogger sets the backend logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

const envelopeVersion = 1

// envelope is the on-disk form of a blob.
type envelope struct {
	Version int    `msgpack:"v"`
	Table   string `msgpack:"table"`
	EntryID int64  `msgpack:"id"`
	Sealed  bool   `msgpack:"sealed"`
	Payload []byte `msgpack:"payload"`
}

// codec converts between content and stored bytes.
type codec struct {
	sealer Sealer
}

func (c codec) encode(table string, id int64, content []byte) ([]byte, error) {
	env := envelope{Version: envelopeVersion, Table: table, EntryID: id, Payload: content}
	if c.sealer != nil {
		sealed, err := c.sealer.Seal(content, AssociatedData(table, id))
		if err != nil {
			return nil, fmt.Errorf("seal blob %s/%d: %w", table, id, err)
		}
		env.Sealed = true
		env.Payload = sealed
	}

	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(&env)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("encode blob %s/%d: %w", table, id, err)
	}
	return buf.Bytes(), nil
}

func (c codec) decode(table string, id int64, data []byte) ([]byte, error) {
	var env envelope
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(data))
	err := dec.Decode(&env)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("decode blob %s/%d: %w", table, id, err)
	}

	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("decode blob %s/%d: unsupported envelope version %d", table, id, env.Version)
	}
	if env.Table != table || env.EntryID != id {
		return nil, fmt.Errorf("decode blob %s/%d: envelope belongs to %s/%d", table, id, env.Table, env.EntryID)
	}
	if !env.Sealed {
		return env.Payload, nil
	}
	if c.sealer == nil {
		return nil, fmt.Errorf("decode blob %s/%d: blob is sealed and no key is configured", table, id)
	}
	content, err := c.sealer.Open(env.Payload, AssociatedData(table, id))
	if err != nil {
		return nil, fmt.Errorf("open blob %s/%d: %w", table, id, err)
	}
	return content, nil
}

// AssociatedData binds a sealed payload to its entry so content copied to
// another entry fails authentication. Inline soup columns use it too.
func AssociatedData(table string, id int64) []byte {
	return []byte(fmt.Sprintf("%s/%d", table, id))
}
