package smartstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/soupstore/internal/blob"
	"github.com/roach88/soupstore/internal/explain"
	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/registry"
	"github.com/roach88/soupstore/internal/schema"
	"github.com/roach88/soupstore/internal/store"
	"github.com/roach88/soupstore/internal/value"
)

// Clock supplies entry timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures a SmartStore.
type Options struct {
	// Blobs stores externalized entries. Required unless Externalize is nil.
	Blobs blob.Store

	// Externalize decides which entries go to Blobs. Nil keeps all inline.
	Externalize ExternalizePolicy

	// Clock supplies timestamps. Nil uses the wall clock.
	Clock Clock

	// Logger defaults to the store's logger.
	Logger *slog.Logger
}

// SmartStore is the soup store facade over one store handle.
type SmartStore struct {
	st     *store.Store
	reg    *registry.Registry
	blobs  blob.Store
	policy ExternalizePolicy
	plans  *explain.Recorder
	sealer blob.Sealer
	clock  Clock
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a SmartStore over st.
func New(st *store.Store, opts Options) (*SmartStore, error) {
	if opts.Externalize != nil && opts.Blobs == nil {
		return nil, fault.Invalid("an externalize policy needs a blob store")
	}
	if opts.Externalize == nil {
		opts.Externalize = Never()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = st.Logger()
	}

	var sealer blob.Sealer
	if key := st.BlobKey(); key != nil {
		aes, err := blob.NewAESSealer(key)
		if err != nil {
			return nil, fmt.Errorf("new smartstore: %w", err)
		}
		sealer = aes
	}

	return &SmartStore{
		st:     st,
		reg:    registry.New(st, opts.Logger),
		blobs:  opts.Blobs,
		policy: opts.Externalize,
		plans:  explain.NewRecorder(opts.Logger),
		sealer: sealer,
		clock:  opts.Clock,
		logger: opts.Logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Store returns the underlying store handle.
func (s *SmartStore) Store() *store.Store {
	return s.st
}

// Registry returns the schema registry.
func (s *SmartStore) Registry() *registry.Registry {
	return s.reg
}

// Blobs returns the blob store, or nil.
func (s *SmartStore) Blobs() blob.Store {
	return s.blobs
}

// RegisterSoup creates a soup, or does nothing if it already exists with
// the same index specs.
func (s *SmartStore) RegisterSoup(ctx context.Context, name string, specs []schema.IndexSpec) error {
	_, err := s.reg.Register(ctx, name, specs)
	return err
}

// GetSoupIndexSpecs returns a soup's index specs in position order.
func (s *SmartStore) GetSoupIndexSpecs(ctx context.Context, name string) ([]schema.IndexSpec, error) {
	return s.reg.IndexSpecs(ctx, name)
}

// GetSoupTableName returns a soup's physical table name.
func (s *SmartStore) GetSoupTableName(ctx context.Context, name string) (string, error) {
	return s.reg.TableName(ctx, name)
}

// HasSoup reports whether a soup is registered.
func (s *SmartStore) HasSoup(ctx context.Context, name string) (bool, error) {
	return s.reg.Exists(ctx, name)
}

// SoupNames lists registered soups in registration order.
func (s *SmartStore) SoupNames(ctx context.Context) ([]string, error) {
	return s.reg.Names(ctx)
}

// DropSoup drops a soup with its entries and blobs. Dropping a soup that
// does not exist is a no-op.
func (s *SmartStore) DropSoup(ctx context.Context, name string) error {
	unlock := s.lock(name)
	defer unlock()

	soup, err := s.reg.Drop(ctx, name)
	if fault.IsSoupNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.deleteTableBlobs(soup.Table)
}

// DropAllSoups drops every soup. Afterwards the store behaves like a fresh
// one: the next registered soup gets the first table name again.
func (s *SmartStore) DropAllSoups(ctx context.Context) error {
	soups, err := s.reg.DropAll(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, soup := range soups {
		errs = append(errs, s.deleteTableBlobs(soup.Table))
	}
	return errors.Join(errs...)
}

// GetLastExplainQueryPlan returns the plan of the most recent Query.
func (s *SmartStore) GetLastExplainQueryPlan() (explain.Plan, bool) {
	return s.plans.Last()
}

// EntryID returns the entry id stored in doc.
func EntryID(doc value.Object) (int64, bool) {
	v, ok := doc[schema.EntryIDColumn]
	if !ok {
		return 0, false
	}
	return value.AsInt(v)
}

func (s *SmartStore) deleteTableBlobs(table string) error {
	if s.blobs == nil {
		return nil
	}
	if err := s.blobs.DeleteTable(table); err != nil {
		s.logger.Error("orphaned blobs after drop", "table", table, "error", err)
		return fmt.Errorf("drop blobs: %w", err)
	}
	return nil
}

// lock serializes writers of one soup and returns the unlock func.
func (s *SmartStore) lock(soup string) func() {
	if n, err := schema.NormalizeName(soup); err == nil {
		soup = n
	}
	s.locksMu.Lock()
	mu, ok := s.locks[soup]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[soup] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
