package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresQueries(t *testing.T) {
	query, args, err := selectSlot()
	require.NoError(t, err)
	assert.Equal(t, "SELECT payload FROM profile_cache WHERE slot = $1", query)
	assert.Equal(t, []any{Slot}, args)

	query, args, err = upsertSlot([]byte(`[]`))
	require.NoError(t, err)
	assert.Contains(t, query, "INSERT INTO profile_cache (slot,payload,updated_at) VALUES ($1,$2,NOW())")
	assert.Contains(t, query, "ON CONFLICT (slot) DO UPDATE")
	assert.Equal(t, []any{Slot, []byte(`[]`)}, args)

	query, args, err = deleteSlot()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM profile_cache WHERE slot = $1", query)
	assert.Equal(t, []any{Slot}, args)
}
