package localstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dl-alexandre/ecmdocs/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func opener(data string, calls *int32) OpenFunc {
	return func(context.Context) (int64, io.ReadCloser, error) {
		atomic.AddInt32(calls, 1)
		return int64(len(data)), io.NopCloser(strings.NewReader(data)), nil
	}
}

func TestResolveLocalPath(t *testing.T) {
	store := newStore(t)

	tests := []struct {
		name      string
		kind      Kind
		serverURL string
		user      string
		file      string
		want      string
	}{
		{"content", KindContent, "https://ecm.example.com:8443/alfresco", "alice", "report.pdf", filepath.Join("downloads", "ecm.example.com-alice", "report.pdf")},
		{"thumbnail", KindThumbnail, "https://ecm.example.com", "alice", "n1", filepath.Join("thumbnails", "ecm.example.com-alice", "n1")},
		{"no user", KindContent, "https://api.example.com", "", "a.txt", filepath.Join("downloads", "api.example.com-anonymous", "a.txt")},
		{"separators are flattened", KindContent, "https://h", "u", "../etc/passwd", filepath.Join("downloads", "h-u", ".._etc_passwd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ResolveLocalPath(tt.kind, tt.serverURL, tt.user, tt.file)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(store.Dir(), tt.want), got)
		})
	}

	_, err := store.ResolveLocalPath(KindContent, "not a url", "u", "f")
	assert.True(t, utils.IsCode(err, utils.ErrCodeInvalidArgument))
}

func TestIsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	remote := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, IsFresh(path, remote), "missing file is never fresh")

	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	require.NoError(t, os.Chtimes(path, remote, remote))
	assert.False(t, IsFresh(path, remote), "equal mtime is not fresh")

	later := remote.Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.True(t, IsFresh(path, remote))
}

func TestFetch_ReuseLaw(t *testing.T) {
	store := newStore(t)
	remote := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	path, err := store.ResolveLocalPath(KindContent, "https://ecm.example.com", "alice", "doc.txt")
	require.NoError(t, err)
	d := Download{Kind: KindContent, Account: "work", NodeID: "n1", LocalPath: path, RemoteModified: remote}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte("cached"), 0600))

	t.Run("newer local copy is reused", func(t *testing.T) {
		stamp := remote.Add(time.Second)
		require.NoError(t, os.Chtimes(path, stamp, stamp))

		var calls int32
		got, err := store.Fetch(context.Background(), d, opener("fresh bytes", &calls))
		require.NoError(t, err)
		assert.Equal(t, path, got)
		assert.Zero(t, atomic.LoadInt32(&calls))

		data, _ := os.ReadFile(path)
		assert.Equal(t, "cached", string(data))
	})

	t.Run("older local copy is downloaded again", func(t *testing.T) {
		stamp := remote.Add(-time.Second)
		require.NoError(t, os.Chtimes(path, stamp, stamp))

		var calls int32
		_, err := store.Fetch(context.Background(), d, opener("fresh bytes", &calls))
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

		data, _ := os.ReadFile(path)
		assert.Equal(t, "fresh bytes", string(data))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.False(t, info.ModTime().Before(remote))
		assert.True(t, IsFresh(path, remote))
	})

	entries, err := store.Entries(context.Background(), "work")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "n1", entries[0].NodeID)
	assert.Equal(t, int64(len("fresh bytes")), entries[0].Size)
	assert.True(t, entries[0].RemoteModified.Equal(remote))
}

func TestFetch_FutureRemoteTimestamp(t *testing.T) {
	store := newStore(t)
	remote := time.Now().Add(time.Hour)
	path := filepath.Join(store.Dir(), "downloads", "h-u", "future.txt")

	var calls int32
	d := Download{Kind: KindContent, Account: "work", NodeID: "n1", LocalPath: path, RemoteModified: remote}
	_, err := store.Fetch(context.Background(), d, opener("abc", &calls))
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), d, opener("abc", &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second open must reuse the download")
}

func TestFetch_ZeroLengthIsNotFound(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(store.Dir(), "downloads", "h-u", "empty")

	var calls int32
	_, err := store.Fetch(context.Background(), Download{Kind: KindContent, NodeID: "n1", LocalPath: path}, opener("", &calls))
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestFetch_UnknownLengthEmptyBodyIsNotFound(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(store.Dir(), "downloads", "h-u", "empty")

	open := func(context.Context) (int64, io.ReadCloser, error) {
		return -1, io.NopCloser(bytes.NewReader(nil)), nil
	}
	_, err := store.Fetch(context.Background(), Download{Kind: KindContent, NodeID: "n1", LocalPath: path}, open)
	assert.True(t, utils.IsCode(err, utils.ErrCodeNotFound))
}

func TestFetch_OpenErrorPropagates(t *testing.T) {
	store := newStore(t)
	boom := errors.New("boom")
	open := func(context.Context) (int64, io.ReadCloser, error) { return 0, nil, boom }

	_, err := store.Fetch(context.Background(), Download{Kind: KindThumbnail, LocalPath: filepath.Join(store.Dir(), "x")}, open)
	assert.ErrorIs(t, err, boom)
}

// blockingReader yields one chunk, then blocks until closed
type blockingReader struct {
	sent   bool
	closed chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	<-r.closed
	return 0, errors.New("read on closed body")
}

func (r *blockingReader) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

func TestFetch_CancelAbortsPromptly(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(store.Dir(), "downloads", "h-u", "big.bin")

	ctx, cancel := context.WithCancel(context.Background())
	reader := &blockingReader{closed: make(chan struct{})}
	open := func(context.Context) (int64, io.ReadCloser, error) { return 1 << 20, reader, nil }

	done := make(chan error, 1)
	go func() {
		_, err := store.Fetch(ctx, Download{Kind: KindContent, NodeID: "n1", LocalPath: path}, open)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, utils.IsCode(err, utils.ErrCodeCancelled), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("download did not observe cancellation")
	}

	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "cancelled download must not leave a file")
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".part-*"))
	assert.Empty(t, leftovers)
}

func TestForgetAndClear(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	var calls int32

	for _, tc := range []struct{ account, node string }{{"a", "n1"}, {"a", "n2"}, {"b", "n3"}} {
		path := filepath.Join(store.Dir(), "downloads", tc.account, tc.node)
		_, err := store.Fetch(ctx, Download{Kind: KindContent, Account: tc.account, NodeID: tc.node, LocalPath: path}, opener("data", &calls))
		require.NoError(t, err)
	}

	require.NoError(t, store.Forget(ctx, "a", "n1"))
	_, err := os.Stat(filepath.Join(store.Dir(), "downloads", "a", "n1"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	entries, err := store.Entries(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "n2", entries[0].NodeID)

	n, err := store.Clear(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := store.Entries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].Account)

	n, err = store.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
