package smartstore

import (
	"fmt"

	"github.com/roach88/soupstore/internal/blob"
	"github.com/roach88/soupstore/internal/fault"
	"github.com/roach88/soupstore/internal/schema"
)

// inlineContent returns the soup column value for raw. With a store key the
// document is sealed and stored as a BLOB; projected index columns are
// written in the clear either way.
func (s *SmartStore) inlineContent(table string, id int64, raw []byte) (any, error) {
	if s.sealer == nil {
		return string(raw), nil
	}
	sealed, err := s.sealer.Seal(raw, blob.AssociatedData(table, id))
	if err != nil {
		return nil, fmt.Errorf("seal %s/%d: %w", table, id, err)
	}
	return sealed, nil
}

// openInline reverses inlineContent.
func (s *SmartStore) openInline(soup schema.Soup, id int64, content string) ([]byte, error) {
	if s.sealer == nil {
		return []byte(content), nil
	}
	raw, err := s.sealer.Open([]byte(content), blob.AssociatedData(soup.Table, id))
	if err != nil {
		return nil, fault.SchemaIntegrity(soup.Table, "entry %d cannot be opened: %v", id, err).WithSoup(soup.Name)
	}
	return raw, nil
}
