package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := RecordNotFound("employees", 7)
	assert.Equal(t, "RECORD_NOT_FOUND: entry does not exist (soup=employees, id=7)", err.Error())

	err = BlobMissing("TABLE_1", 3, io.EOF)
	assert.Equal(t, "BLOB_MISSING: externalized entry has no blob (table=TABLE_1, id=3): EOF", err.Error())
}

func TestError_IsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("retrieve: %w", SoupNotFound("contacts"))

	assert.True(t, errors.Is(wrapped, ErrSoupNotFound))
	assert.False(t, errors.Is(wrapped, ErrDuplicateSoup))
	assert.True(t, IsSoupNotFound(wrapped))
	assert.Equal(t, CodeSoupNotFound, CodeOf(wrapped))
}

func TestError_UnwrapReachesCause(t *testing.T) {
	err := BlobMissing("TABLE_2", 1, io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestIsIntegrity(t *testing.T) {
	assert.True(t, IsIntegrity(SchemaIntegrity("TABLE_1", "missing index %s", "TABLE_1_0_idx")))
	assert.True(t, IsIntegrity(BlobMissing("TABLE_1", 1, nil)))
	assert.False(t, IsIntegrity(Invalid("bad path")))
	assert.False(t, IsIntegrity(errors.New("plain")))
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsDuplicateSoup(DuplicateSoup("a")))
	assert.True(t, IsRecordNotFound(RecordNotFound("a", 1)))
	assert.True(t, IsBlobMissing(BlobMissing("T", 1, nil)))
	assert.True(t, IsAuthentication(Authentication("db")))
	assert.True(t, IsConnectionClosed(ConnectionClosed()))
	assert.True(t, IsInvalidInput(Invalid("x")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestWithSoup_DoesNotMutateOriginal(t *testing.T) {
	base := Invalid("path %q is not indexed", "age")
	annotated := base.WithSoup("employees")

	assert.Empty(t, base.Soup)
	assert.Equal(t, "employees", annotated.Soup)
	assert.Contains(t, annotated.Error(), "soup=employees")
}
