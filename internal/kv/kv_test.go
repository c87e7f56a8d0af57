package kv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"brewline/internal/db"
	"brewline/internal/kv"
	"brewline/internal/migrate"
)

func openSQLite(t *testing.T) kv.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return kv.NewSQLite(conn)
}

func openBadger(t *testing.T) kv.Store {
	t.Helper()
	store, err := kv.OpenBadger(kv.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStores(t *testing.T) {
	backends := map[string]func(*testing.T) kv.Store{
		"sqlite": openSQLite,
		"badger": openBadger,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			got, err := store.Load(ctx, kv.KeySessions)
			require.NoError(t, err)
			require.Nil(t, got, "absent key loads as nil")

			require.NoError(t, store.Save(ctx, kv.KeySessions, []byte(`[{"id":"a"}]`)))
			require.NoError(t, store.Save(ctx, kv.KeySessions, []byte(`[{"id":"b"}]`)))
			got, err = store.Load(ctx, kv.KeySessions)
			require.NoError(t, err)
			require.JSONEq(t, `[{"id":"b"}]`, string(got))

			require.NoError(t, store.Delete(ctx, kv.KeySessions))
			got, err = store.Load(ctx, kv.KeySessions)
			require.NoError(t, err)
			require.Nil(t, got)
		})
	}
}

func TestBadgerRequiresPath(t *testing.T) {
	_, err := kv.OpenBadger(kv.BadgerConfig{})
	require.Error(t, err)
}
