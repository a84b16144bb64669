package blob

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/soupstore/internal/fault"
)

var _ Store = (*Dir)(nil)

// Dir stores each blob as {root}/{table}/soupelt_{id}.
type Dir struct {
	root   string
	codec  codec
	logger *slog.Logger
}

// NewDir creates a Dir rooted at root, creating the directory if needed.
func NewDir(root string, opts ...Option) (*Dir, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Dir{root: root, codec: codec{sealer: o.sealer}, logger: o.logger}, nil
}

// Root returns the root directory.
func (d *Dir) Root() string {
	return d.root
}

// TableDir returns the directory holding table's blobs.
func (d *Dir) TableDir(table string) string {
	return filepath.Join(d.root, table)
}

// Path returns the file that holds the blob for (table, id).
func (d *Dir) Path(table string, id int64) string {
	return filepath.Join(d.TableDir(table), FileName(id))
}

// Write stores content atomically: the envelope is written to a uniquely
// named temp file in the same directory and renamed over the target.
func (d *Dir) Write(table string, id int64, content []byte) error {
	data, err := d.codec.encode(table, id, content)
	if err != nil {
		return err
	}

	dir := d.TableDir(table)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("write blob %s/%d: %w", table, id, err)
	}

	tmp := filepath.Join(dir, "."+FileName(id)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write blob %s/%d: %w", table, id, err)
	}
	if err := os.Rename(tmp, d.Path(table, id)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write blob %s/%d: %w", table, id, err)
	}

	d.logger.Debug("wrote blob", "table", table, "id", id, "bytes", len(data))
	return nil
}

// Read implements Store.
func (d *Dir) Read(table string, id int64) ([]byte, error) {
	data, err := os.ReadFile(d.Path(table, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fault.BlobMissing(table, id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s/%d: %w", table, id, err)
	}
	return d.codec.decode(table, id, data)
}

// Delete implements Store.
func (d *Dir) Delete(table string, id int64) error {
	err := os.Remove(d.Path(table, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s/%d: %w", table, id, err)
	}
	return nil
}

// Exists implements Store.
func (d *Dir) Exists(table string, id int64) (bool, error) {
	_, err := os.Stat(d.Path(table, id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob %s/%d: %w", table, id, err)
	}
	return true, nil
}

// IDs lists the entry ids that have a blob file for table, ascending.
// Temp files from interrupted writes are ignored.
func (d *Dir) IDs(table string) ([]int64, error) {
	entries, err := os.ReadDir(d.TableDir(table))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list blobs of %s: %w", table, err)
	}
	var ids []int64
	for _, e := range entries {
		rest, ok := strings.CutPrefix(e.Name(), "soupelt_")
		if !ok || e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteTable implements Store.
func (d *Dir) DeleteTable(table string) error {
	if err := os.RemoveAll(d.TableDir(table)); err != nil {
		return fmt.Errorf("delete blobs of %s: %w", table, err)
	}
	return nil
}

// Close implements Store. Dir holds no open resources.
func (d *Dir) Close() error {
	return nil
}
