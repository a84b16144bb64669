package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Fresh file, nothing applied
// 1 - soup_names, soup_index_map, store_info
const currentSchemaVersion = 1

// Supported database/sql driver names.
const (
	DriverCGo    = "sqlite3"
	DriverPureGo = "sqlite"
)

// Option configures Open.
type Option func(*options)

type options struct {
	driver string
	logger *slog.Logger
}

// WithDriver selects the database/sql driver, DriverCGo or DriverPureGo.
func WithDriver(name string) Option {
	return func(o *options) { o.driver = name }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Store is an open soup store handle.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	closed  bool
	path    string
	driver  string
	blobKey []byte
	cache   *schema.Cache
	logger  *slog.Logger
}

// Open creates or opens the store at path and checks passphrase against it.
// A brand-new store adopts the passphrase it is first opened with; later
// opens with a different passphrase fail with AUTHENTICATION. The empty
// passphrase is a valid passphrase that disables document sealing.
func Open(path, passphrase string, opts ...Option) (*Store, error) {
	o := options{driver: DriverCGo}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	switch o.driver {
	case DriverCGo, DriverPureGo:
	default:
		return nil, fault.Invalid("unknown sqlite driver %q", o.driver)
	}

	db, err := sql.Open(o.driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and ":memory:" databases
	// are per-connection, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	key, err := unlock(context.Background(), db, passphrase)
	if err != nil {
		db.Close()
		if fault.IsAuthentication(err) {
			return nil, fault.Authentication(path)
		}
		return nil, fmt.Errorf("failed to check passphrase: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		driver: o.driver,
		cache:  schema.NewCache(),
		logger: o.logger,
	}
	if passphrase != "" {
		s.blobKey = key
	}
	s.logger.Debug("opened store", "path", path, "driver", o.driver, "sealed", passphrase != "")
	return s, nil
}

// DB returns the underlying connection pool, or CONNECTION_CLOSED.
func (s *Store) DB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.db == nil {
		return nil, fault.ConnectionClosed()
	}
	return s.db, nil
}

// BeginTx starts a transaction on the store connection. Callers must not
// issue statements through DB while the transaction is open: the pool has
// a single connection.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	db, err := s.DB()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// Cache returns the schema cache bound to this handle.
func (s *Store) Cache() *schema.Cache {
	return s.cache
}

// Reset drops every cached soup mapping. The next lookup reloads from the
// registry tables. Reset works on a closed handle too.
func (s *Store) Reset() {
	s.cache.Reset()
	s.logger.Debug("reset schema cache", "path", s.path)
}

// Close releases the connection. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	s.cache.Reset()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	s.logger.Debug("closed store", "path", s.path)
	return nil
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Path returns the database path given to Open.
func (s *Store) Path() string {
	return s.path
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// BlobKey returns the 32-byte key for sealing documents, or nil when the
// store was opened with an empty passphrase.
func (s *Store) BlobKey() []byte {
	return s.blobKey
}

// Logger returns the handle's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the metadata tables and records the schema version.
// A file written by a newer version is refused rather than downgraded.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fault.SchemaIntegrity("", "database schema version %d is newer than supported version %d",
			version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	var value string
	if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
