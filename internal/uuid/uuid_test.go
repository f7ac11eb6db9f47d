package uuid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducesValidV4(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := New()
		assert.True(t, IsValid(id), "generated id %q should be valid", id)

		_, dup := seen[id]
		require.False(t, dup, "duplicate id %q", id)
		seen[id] = struct{}{}
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("11111111-1111-4111-8111-111111111111"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("not-a-uuid"))
	assert.False(t, IsValid("11111111-1111-1111-1111-111111111111")) // not v4
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(New()))
	assert.Error(t, Validate("garbage"))
}
