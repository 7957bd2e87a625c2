package credstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecodeed/authkit/credstore"
)

// both Store/StateStore implementations must behave identically; File is
// additionally checked for durability below.
func stores(t *testing.T) map[string]interface {
	credstore.Store
	credstore.StateStore
} {
	t.Helper()

	return map[string]interface {
		credstore.Store
		credstore.StateStore
	}{
		"memory": credstore.NewMemory(),
		"file":   credstore.NewFile(filepath.Join(t.TempDir(), "creds.json")),
	}
}

func TestStore_WriteReadClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			creds, err := store.Read(ctx)
			require.NoError(t, err)
			assert.True(t, creds.Empty(), "fresh store must read empty")

			pair := credstore.Credentials{AccessToken: "a1", RefreshToken: "r1"}
			require.NoError(t, store.Write(ctx, pair))

			creds, err = store.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, pair, creds)

			require.NoError(t, store.Clear(ctx))

			creds, err = store.Read(ctx)
			require.NoError(t, err)
			assert.True(t, creds.Empty())
		})
	}
}

func TestStore_TakeStateConsumes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := store.TakeState(ctx, "twitter")
			assert.ErrorIs(t, err, credstore.ErrNotFound)

			st := credstore.RedirectState{
				Provider:   "twitter",
				State:      "st-1",
				ReturnPath: "/courses/42",
				CreatedAt:  time.Now().UTC().Truncate(time.Second),
			}
			require.NoError(t, store.SaveState(ctx, "twitter", st))

			got, err := store.TakeState(ctx, "twitter")
			require.NoError(t, err)
			assert.Equal(t, st.State, got.State)
			assert.Equal(t, st.ReturnPath, got.ReturnPath)

			_, err = store.TakeState(ctx, "twitter")
			assert.ErrorIs(t, err, credstore.ErrNotFound, "a breadcrumb is consumed on read")
		})
	}
}

func TestFile_SurvivesReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "creds.json")

	first := credstore.NewFile(path)
	pair := credstore.Credentials{AccessToken: "a1", RefreshToken: "r1"}
	require.NoError(t, first.Write(ctx, pair))
	require.NoError(t, first.SaveState(ctx, "twitter", credstore.RedirectState{
		Provider:   "twitter",
		ReturnPath: "/home",
	}))

	// A new instance over the same path simulates a process restart.
	second := credstore.NewFile(path)

	creds, err := second.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, pair, creds)

	st, err := second.TakeState(ctx, "twitter")
	require.NoError(t, err)
	assert.Equal(t, "/home", st.ReturnPath)

	third := credstore.NewFile(path)
	_, err = third.TakeState(ctx, "twitter")
	assert.ErrorIs(t, err, credstore.ErrNotFound, "consumption must be durable")
}

func TestFile_ClearKeepsStates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds.json")

	store := credstore.NewFile(path)
	require.NoError(t, store.Write(ctx, credstore.Credentials{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, store.SaveState(ctx, "twitter", credstore.RedirectState{Provider: "twitter"}))

	require.NoError(t, store.Clear(ctx))

	creds, err := store.Read(ctx)
	require.NoError(t, err)
	assert.True(t, creds.Empty())

	_, err = store.TakeState(ctx, "twitter")
	assert.NoError(t, err, "clearing credentials must not drop a pending redirect")
}

func TestFile_RejectsCorruptDocument(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))

	store := credstore.NewFile(path)
	_, err := store.Read(context.Background())
	assert.Error(t, err)
}
