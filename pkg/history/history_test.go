package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/visionchat/pkg/config"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "sub", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreAppendAndList(t *testing.T) {
	ctx := context.Background()
	fixed := time.UnixMilli(1_700_000_000_000).UTC()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(ctx, "any",
				Message{Role: RoleUser, Content: "2+2?", CreatedAt: fixed},
				Message{Role: RoleAssistant, Content: "2+2 equals 4"},
			))
			require.NoError(t, store.Append(ctx, "other", Message{Role: RoleUser, Content: "elsewhere"}))

			msgs, err := store.Messages(ctx, "any")
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, RoleUser, msgs[0].Role)
			assert.Equal(t, "2+2?", msgs[0].Content)
			assert.True(t, msgs[0].CreatedAt.Equal(fixed))
			assert.Equal(t, "2+2 equals 4", msgs[1].Content)
			assert.False(t, msgs[1].CreatedAt.IsZero())

			empty, err := store.Messages(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(ctx, "any", Message{Role: RoleUser, Content: "hi"}))
			require.NoError(t, store.Append(ctx, "keep", Message{Role: RoleUser, Content: "hi"}))
			require.NoError(t, store.Clear(ctx, "any"))

			msgs, err := store.Messages(ctx, "any")
			require.NoError(t, err)
			assert.Empty(t, msgs)

			kept, err := store.Messages(ctx, "keep")
			require.NoError(t, err)
			assert.Len(t, kept, 1)
		})
	}
}

func TestStoreValidation(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Append(ctx, " ", Message{Role: RoleUser}), ErrInvalidSessionID)
			assert.ErrorIs(t, store.Append(ctx, "any", Message{Role: "system", Content: "x"}), ErrInvalidMessage)
			_, err := store.Messages(ctx, "")
			assert.ErrorIs(t, err, ErrInvalidSessionID)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, "any", Message{Role: RoleUser, Content: "original"}))

	msgs, err := store.Messages(ctx, "any")
	require.NoError(t, err)
	msgs[0].Content = "mutated"

	again, err := store.Messages(ctx, "any")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := store.Messages(context.Background(), "any")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Append(context.Background(), "any", Message{Role: RoleUser}), ErrClosed)
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Append(ctx, "any", Message{Role: RoleUser, Content: "q"}, Message{Role: RoleAssistant, Content: "a"})
		}()
	}
	wg.Wait()

	msgs, err := store.Messages(ctx, "any")
	require.NoError(t, err)
	assert.Len(t, msgs, 40)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "any", Message{Role: RoleUser, Content: "remember me"}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	msgs, err := reopened.Messages(ctx, "any")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "remember me", msgs[0].Content)
}

func TestOpenSelectsDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	store, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	cfg.History.Driver = config.HistoryDriverSQLite
	cfg.History.Path = filepath.Join(t.TempDir(), "h.db")
	store, err = Open(cfg)
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &SQLiteStore{}, store)

	cfg.History.Driver = "redis"
	_, err = Open(cfg)
	assert.Error(t, err)
}
