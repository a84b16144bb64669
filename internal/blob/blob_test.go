package blob

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soupstore/internal/fault"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

// backends returns a fresh instance of every backend, sealed and unsealed.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sealer, err := NewAESSealer(testKey())
	require.NoError(t, err)

	dir, err := NewDir(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	sealedDir, err := NewDir(filepath.Join(t.TempDir(), "sealed"), WithSealer(sealer))
	require.NoError(t, err)
	bolt, err := NewBolt(filepath.Join(t.TempDir(), "blobs.bolt"))
	require.NoError(t, err)
	sealedBolt, err := NewBolt(filepath.Join(t.TempDir(), "sealed.bolt"), WithSealer(sealer))
	require.NoError(t, err)

	stores := map[string]Store{
		"dir":         dir,
		"dir-sealed":  sealedDir,
		"bolt":        bolt,
		"bolt-sealed": sealedBolt,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStore_WriteReadDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			content := []byte(`{"name":"Ann"}`)

			ok, err := s.Exists("TABLE_1", 1)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Write("TABLE_1", 1, content))

			ok, err = s.Exists("TABLE_1", 1)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.Read("TABLE_1", 1)
			require.NoError(t, err)
			assert.Equal(t, content, got)

			require.NoError(t, s.Delete("TABLE_1", 1))
			ok, err = s.Exists("TABLE_1", 1)
			require.NoError(t, err)
			assert.False(t, ok)

			// Deleting again is not an error
			require.NoError(t, s.Delete("TABLE_1", 1))
		})
	}
}

func TestStore_WriteOverwrites(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Write("TABLE_1", 3, []byte(`{"v":1}`)))
			require.NoError(t, s.Write("TABLE_1", 3, []byte(`{"v":2}`)))

			got, err := s.Read("TABLE_1", 3)
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"v":2}`), got)
		})
	}
}

func TestStore_ReadMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Read("TABLE_9", 42)
			require.Error(t, err)
			assert.True(t, fault.IsBlobMissing(err))
			assert.True(t, fault.IsIntegrity(err))
		})
	}
}

func TestStore_DeleteTable(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Write("TABLE_1", 1, []byte(`{}`)))
			require.NoError(t, s.Write("TABLE_1", 2, []byte(`{}`)))
			require.NoError(t, s.Write("TABLE_2", 1, []byte(`{}`)))

			require.NoError(t, s.DeleteTable("TABLE_1"))

			for _, id := range []int64{1, 2} {
				ok, err := s.Exists("TABLE_1", id)
				require.NoError(t, err)
				assert.False(t, ok)
			}
			ok, err := s.Exists("TABLE_2", 1)
			require.NoError(t, err)
			assert.True(t, ok)

			// Unknown tables are fine
			require.NoError(t, s.DeleteTable("TABLE_77"))
		})
	}
}

func TestStore_IDs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []int64{10, 2, 300} {
				require.NoError(t, s.Write("TABLE_1", id, []byte(`{}`)))
			}
			ids, err := s.(Lister).IDs("TABLE_1")
			require.NoError(t, err)
			assert.Equal(t, []int64{2, 10, 300}, ids)

			ids, err = s.(Lister).IDs("TABLE_404")
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestDir_FileLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blobs")
	d, err := NewDir(root)
	require.NoError(t, err)

	require.NoError(t, d.Write("TABLE_1", 5, []byte(`{"a":1}`)))
	assert.Equal(t, filepath.Join(root, "TABLE_1", "soupelt_5"), d.Path("TABLE_1", 5))

	entries, err := os.ReadDir(filepath.Join(root, "TABLE_1"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")
	assert.Equal(t, "soupelt_5", entries[0].Name())
}

func TestDir_SealedFileHidesContent(t *testing.T) {
	sealer, err := NewAESSealer(testKey())
	require.NoError(t, err)
	d, err := NewDir(t.TempDir(), WithSealer(sealer))
	require.NoError(t, err)

	require.NoError(t, d.Write("TABLE_1", 1, []byte(`{"secret":"swordfish"}`)))
	raw, err := os.ReadFile(d.Path("TABLE_1", 1))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "swordfish")
}

func TestDir_MovedBlobFailsIdentityCheck(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, d.Write("TABLE_1", 1, []byte(`{}`)))
	require.NoError(t, os.Rename(d.Path("TABLE_1", 1), d.Path("TABLE_1", 2)))

	_, err = d.Read("TABLE_1", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "envelope belongs to TABLE_1/1")
}

func TestDir_SealedRequiresKey(t *testing.T) {
	root := t.TempDir()
	sealer, err := NewAESSealer(testKey())
	require.NoError(t, err)

	sealed, err := NewDir(root, WithSealer(sealer))
	require.NoError(t, err)
	require.NoError(t, sealed.Write("TABLE_1", 1, []byte(`{}`)))

	plain, err := NewDir(root)
	require.NoError(t, err)
	_, err = plain.Read("TABLE_1", 1)
	require.Error(t, err)
	assert.False(t, fault.IsBlobMissing(err))

	otherKey, err := NewAESSealer(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)
	wrong, err := NewDir(root, WithSealer(otherKey))
	require.NoError(t, err)
	_, err = wrong.Read("TABLE_1", 1)
	require.Error(t, err)
}

func TestAESSealer(t *testing.T) {
	s, err := NewAESSealer(testKey())
	require.NoError(t, err)

	ct, err := s.Seal([]byte("hello"), []byte("TABLE_1/1"))
	require.NoError(t, err)

	pt, err := s.Open(ct, []byte("TABLE_1/1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pt)

	_, err = s.Open(ct, []byte("TABLE_1/2"))
	require.Error(t, err, "associated data must be authenticated")

	_, err = s.Open([]byte{1, 2}, nil)
	require.Error(t, err)

	_, err = NewAESSealer([]byte("short"))
	require.Error(t, err)
}
