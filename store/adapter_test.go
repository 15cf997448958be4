package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adapters(t *testing.T) map[string]Adapter {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "loom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Adapter{
		"memory": NewMemoryAdapter(),
		"sqlite": db,
	}
}

func TestAdapter_GetSet(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, adapter.Set(ctx, "key1", json.RawMessage(`"value1"`)))

			raw, ok, err := adapter.Get(ctx, "key1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `"value1"`, string(raw))

			require.NoError(t, adapter.Set(ctx, "key1", json.RawMessage(`{"v":2}`)))
			raw, _, err = adapter.Get(ctx, "key1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":2}`, string(raw))

			_, ok, err = adapter.Get(ctx, "nonexistent")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestAdapter_DeleteKeys(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			keys, err := adapter.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)

			_ = adapter.Set(ctx, "b", json.RawMessage(`1`))
			_ = adapter.Set(ctx, "a", json.RawMessage(`2`))

			keys, err = adapter.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, keys)

			require.NoError(t, adapter.Delete(ctx, "a"))
			require.NoError(t, adapter.Delete(ctx, "nonexistent"))

			keys, err = adapter.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, keys)
		})
	}
}

func TestAdapter_Concurrent(t *testing.T) {
	ctx := context.Background()
	for name, adapter := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Go(func() {
					key := fmt.Sprintf("k%02d", i)
					assert.NoError(t, adapter.Set(ctx, key, json.RawMessage(`true`)))
					_, _, err := adapter.Get(ctx, key)
					assert.NoError(t, err)
				})
			}
			wg.Wait()

			keys, err := adapter.Keys(ctx)
			require.NoError(t, err)
			assert.Len(t, keys, 20)
		})
	}
}

func TestMemoryAdapter_CopiesValues(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	value := json.RawMessage(`"abc"`)
	require.NoError(t, adapter.Set(ctx, "k", value))
	value[1] = 'x'

	raw, _, _ := adapter.Get(ctx, "k")
	assert.Equal(t, `"abc"`, string(raw))
}
