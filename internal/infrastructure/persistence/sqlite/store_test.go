package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestStore_GetSetDelete(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	key := shared.DefaultProfile.Key(shared.RecordUserProgress)

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, store.Set(ctx, key, []byte(`{"a":1}`)))
	require.NoError(t, store.Set(ctx, key, []byte(`{"a":2}`)))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStore_SurvivesReopen(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "alice:web3-app-store", []byte(`{"language":"en"}`)))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "alice:web3-app-store")
	require.NoError(t, err)
	assert.JSONEq(t, `{"language":"en"}`, string(got))
}

func TestStore_Profiles(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "alice:web3-user-store", []byte(`{}`)))
	require.NoError(t, store.Set(ctx, "alice:web3-app-store", []byte(`{}`)))
	require.NoError(t, store.Set(ctx, "bob:web3-user-store", []byte(`{}`)))

	profiles, err := store.Profiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, profiles)

	n, err := store.DeleteProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	profiles, err = store.Profiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, profiles)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestUpSection(t *testing.T) {
	assert.Equal(t, "\nCREATE TABLE t(x);\n", upSection("-- +migrate Up\nCREATE TABLE t(x);\n-- +migrate Down\nDROP TABLE t;"))
	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}

func TestStore_UpdateAcrossHandles(t *testing.T) {
	first, path := openTestStore(t)
	second, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	ctx := context.Background()
	key := shared.DefaultProfile.Key(shared.RecordUserProgress)
	type counter struct{ N int }

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		store := first
		if i%2 == 1 {
			store = second
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := shared.UpdateJSON(ctx, store, key, func() *counter { return &counter{} }, func(c *counter) error {
				c.N++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var got counter
	_, err = shared.LoadJSON(ctx, first, key, &got)
	require.NoError(t, err)
	assert.Equal(t, 10, got.N)
}

func TestStore_UpdateErrorRollsBack(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	key := shared.DefaultProfile.Key(shared.RecordAppPreferences)
	require.NoError(t, store.Set(ctx, key, []byte(`{"language":"zh"}`)))

	boom := errors.New("boom")
	err := store.Update(ctx, key, func(current []byte, found bool) ([]byte, error) {
		assert.True(t, found)
		assert.Equal(t, `{"language":"zh"}`, string(current))
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"language":"zh"}`, string(got))
}
