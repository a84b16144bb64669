package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/soupstore/internal/value"
)

func TestEmployees_Deterministic(t *testing.T) {
	a := Employees(10)
	b := Employees(10)
	for i := range a {
		assert.True(t, value.Equal(a[i], b[i]))
	}
	assert.Equal(t, value.String("E0003"), a[3]["employee"])
}

func TestLargeDocument_ExceedsSize(t *testing.T) {
	data, err := value.Marshal(LargeDocument("big", 4096))
	require.NoError(t, err)
	assert.Greater(t, len(data), 4096)
}
