package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite://" + filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func completed(ref int64) *http.Response {
	return &http.Response{
		ReferenceID:      ref,
		State:            http.Completed,
		Elapsed:          42 * time.Millisecond,
		StatusLine:       "HTTP/1.1 200 OK",
		StatusCode:       200,
		Headers:          "Content-Type: text/plain\r\n",
		Body:             "hello",
		NeededClientAuth: true,
		Audit:            []string{"+0ms GET http://localhost/", "+42ms response: HTTP/1.1 200 OK"},
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	req := http.NewRequest("get", "http://localhost/")

	require.NoError(t, store.Record(ctx, "5f1c9a2e-session", req, completed(1)))

	entry, err := store.Get(ctx, "5f1c9a2e-session", 1)
	require.NoError(t, err)

	assert.Equal(t, "GET", entry.Method)
	assert.Equal(t, "http://localhost/", entry.Endpoint)
	assert.Equal(t, "completed", entry.State)
	assert.Equal(t, 200, entry.StatusCode)
	assert.Equal(t, "hello", entry.Body)
	assert.Equal(t, int64(42), entry.ElapsedMillis)
	assert.True(t, entry.NeededClientAuth)
	assert.Len(t, entry.Audit, 2)
	assert.WithinDuration(t, time.Now(), entry.RecordedAt, time.Minute)
}

func TestStore_GetBySessionPrefix(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "abc123-full", http.NewRequest("GET", "http://localhost/"), completed(3)))

	entry, err := store.Get(ctx, "abc", 3)
	require.NoError(t, err)
	assert.Equal(t, "abc123-full", entry.SessionID)

	_, err = store.Get(ctx, "a%", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_GetMissing(t *testing.T) {
	store := openStore(t)

	_, err := store.Get(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RecordFailure(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	resp := &http.Response{
		ReferenceID: 2,
		State:       http.Failed,
		Err:         errors.New("connection refused"),
	}
	require.NoError(t, store.Record(ctx, "s", http.NewRequest("POST", "http://localhost/"), resp))

	entry, err := store.Get(ctx, "s", 2)
	require.NoError(t, err)
	assert.Equal(t, "failed", entry.State)
	assert.Equal(t, "connection refused", entry.Error)
	assert.Empty(t, entry.Body)
	assert.Nil(t, entry.Audit)
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	req := http.NewRequest("GET", "http://localhost/")

	for ref := int64(1); ref <= 3; ref++ {
		require.NoError(t, store.Record(ctx, "s", req, completed(ref)))
	}

	entries, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].ReferenceID)
	assert.Equal(t, int64(2), entries[1].ReferenceID)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_RecordReplaces(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	req := http.NewRequest("GET", "http://localhost/")

	require.NoError(t, store.Record(ctx, "s", req, completed(1)))
	second := completed(1)
	second.Body = "updated"
	require.NoError(t, store.Record(ctx, "s", req, second))

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "updated", all[0].Body)
}

func TestStore_Prune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "s", http.NewRequest("GET", "http://localhost/"), completed(1)))

	n, err := store.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpen_Memory(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, ":memory:", store.Path())
}

func TestParsePath(t *testing.T) {
	assert.Equal(t, "/tmp/h.db", parsePath("sqlite:///tmp/h.db"))
	assert.Equal(t, "./h.db", parsePath("sqlite:./h.db"))
	assert.Equal(t, "h.db", parsePath(" h.db "))
}
