package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"backoffice/pkg/platform/sentinel"
)

type durable interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// runDurableContract exercises the behaviour every backend must share.
func runDurableContract(t *testing.T, store durable) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key is not found", func(t *testing.T) {
		_, err := store.Load(ctx, "absent")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("save then load round trips bytes", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "session", []byte(`{"version":1}`)))
		got, err := store.Load(ctx, "session")
		require.NoError(t, err)
		require.Equal(t, `{"version":1}`, string(got))
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "session", []byte("first")))
		require.NoError(t, store.Save(ctx, "session", []byte("second")))
		got, err := store.Load(ctx, "session")
		require.NoError(t, err)
		require.Equal(t, "second", string(got))
	})

	t.Run("delete removes and is idempotent", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "session", []byte("x")))
		require.NoError(t, store.Delete(ctx, "session"))
		require.NoError(t, store.Delete(ctx, "session"))
		_, err := store.Load(ctx, "session")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
