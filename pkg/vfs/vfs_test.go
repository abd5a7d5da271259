package vfs

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/storage"
	"github.com/marmos91/hdftp/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlice() *account.Account {
	a := account.New("alice", "/home/alice")
	a.SetGroup("staff")
	a.SetAuthorities([]account.Authority{account.NewWriteAuthority(true)})
	return a
}

func newTestView(t *testing.T, acc *account.Account) (*View, *memory.Client) {
	t.Helper()
	client := memory.New(memory.Options{URI: "hdfs://namenode:8020"})
	view, err := NewFactory(client, true).CreateView(context.Background(), acc)
	require.NoError(t, err)
	return view, client
}

func writeBacking(t *testing.T, c storage.Client, p, content string) {
	t.Helper()
	w, err := c.Create(context.Background(), p, storage.CreateOptions{Overwrite: true})
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func getFile(t *testing.T, v *View, token string) *FileHandle {
	t.Helper()
	h, err := v.GetFile(token)
	require.NoError(t, err)
	return h
}

// faultyClient fails every metadata call with an I/O error.
type faultyClient struct {
	storage.Client
}

var errBackend = errors.New("namenode unreachable")

func (faultyClient) Exists(context.Context, string) (bool, error) {
	return false, storage.NewIOError("", errBackend)
}

func (faultyClient) Stat(_ context.Context, p string) (*storage.FileStatus, error) {
	return nil, storage.NewIOError(p, errBackend)
}

func (faultyClient) List(_ context.Context, p string) ([]*storage.FileStatus, error) {
	return nil, storage.NewIOError(p, errBackend)
}

func (faultyClient) Open(_ context.Context, p string) (io.ReadCloser, error) {
	return nil, storage.NewIOError(p, errBackend)
}

// emptyClient reports every path as missing.
type emptyClient struct {
	storage.Client
}

func (emptyClient) Stat(_ context.Context, p string) (*storage.FileStatus, error) {
	return nil, storage.NewNotFoundError(p)
}

// ============================================================================
// Factory
// ============================================================================

func TestCreateViewProvisionsHome(t *testing.T) {
	_, client := newTestView(t, newAlice())

	st, err := client.Stat(context.Background(), "/home/alice")
	require.NoError(t, err)
	assert.True(t, st.IsDir)
	assert.Equal(t, "alice", st.Owner)
	assert.Equal(t, "staff", st.Group)
}

func TestCreateViewWithoutProvisioning(t *testing.T) {
	client := memory.New(memory.Options{})
	view, err := NewFactory(client, false).CreateView(context.Background(), newAlice())
	require.NoError(t, err)
	assert.Equal(t, "/", view.WorkingDirectory())

	ok, err := client.Exists(context.Background(), "/home/alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateViewHomeIsFile(t *testing.T) {
	client := memory.New(memory.Options{})
	writeBacking(t, client, "/home/alice", "not a dir")

	_, err := NewFactory(client, true).CreateView(context.Background(), newAlice())
	assert.ErrorIs(t, err, ErrHomeNotDirectory)
}

func TestCreateViewRejectsNonAbsoluteHome(t *testing.T) {
	client := memory.New(memory.Options{})
	writeBacking(t, client, "/home/bob/private.txt", "bob's")

	for _, home := range []string{"", "home/mallory"} {
		t.Run(home, func(t *testing.T) {
			acc := account.New("mallory", home)
			acc.SetAuthorities([]account.Authority{account.NewWriteAuthority(true)})

			view, err := NewFactory(client, true).CreateView(context.Background(), acc)
			assert.ErrorIs(t, err, ErrHomeNotAbsolute)
			assert.Nil(t, view)
		})
	}

	ok, err := client.Exists(context.Background(), "/home/mallory")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateViewBackendFailure(t *testing.T) {
	_, err := NewFactory(faultyClient{}, true).CreateView(context.Background(), newAlice())
	assert.Error(t, err)
}

// ============================================================================
// View
// ============================================================================

func TestChangeWorkingDirectory(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	require.True(t, getFile(t, view, "/a/b").Mkdir(ctx))
	writeBacking(t, client, "/home/alice/a/file", "x")

	ok, err := view.ChangeWorkingDirectory(ctx, "/a/b")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = view.ChangeWorkingDirectory(ctx, "..")
	require.NoError(t, err)
	require.True(t, ok)

	wd, err := view.GetWorkingDirectory()
	require.NoError(t, err)
	assert.Equal(t, "/a", wd.Path())

	for _, token := range []string{"missing", "file"} {
		ok, err = view.ChangeWorkingDirectory(ctx, token)
		require.NoError(t, err)
		assert.False(t, ok, token)
		assert.Equal(t, "/a", view.WorkingDirectory())
	}
}

func TestChangeWorkingDirectoryRequiresRead(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	_, err := client.Mkdirs(ctx, "/home/alice/private")
	require.NoError(t, err)
	require.NoError(t, client.SetPermission(ctx, "/home/alice/private", 0o700))

	ok, err := view.ChangeWorkingDirectory(ctx, "private")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestViewHomeAndDispose(t *testing.T) {
	view, _ := newTestView(t, newAlice())

	home, err := view.GetHomeDirectory()
	require.NoError(t, err)
	assert.Equal(t, "/", home.Path())
	assert.Equal(t, "/home/alice", home.BackingPath())
	assert.Equal(t, "alice", view.Account().Name())
	assert.False(t, view.IsRandomAccessible())

	view.Dispose()
	_, err = view.GetFile("x")
	assert.ErrorIs(t, err, ErrViewDisposed)
	_, err = view.ChangeWorkingDirectory(context.Background(), "/")
	assert.ErrorIs(t, err, ErrViewDisposed)
}

// ============================================================================
// FileHandle
// ============================================================================

func TestListStripsSchemeAndHome(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	writeBacking(t, client, "/home/alice/docs/a.txt", "hello")
	require.NoError(t, client.SetOwner(ctx, "/home/alice/docs", "alice", "staff"))

	children := getFile(t, view, "/docs").List(ctx)
	require.Len(t, children, 1)
	assert.Equal(t, "/docs/a.txt", children[0].Path())
	assert.Equal(t, "a.txt", children[0].Name())
	assert.Equal(t, int64(5), children[0].Size(ctx))

	entries, ok := getFile(t, view, "/").Entries(ctx)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "/docs", entries[0].Path())
	assert.True(t, entries[0].Status.IsDir)
}

func TestListUnreadable(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	_, err := client.Mkdirs(ctx, "/home/alice/secret")
	require.NoError(t, err)
	require.NoError(t, client.SetPermission(ctx, "/home/alice/secret", 0o700))

	assert.Nil(t, getFile(t, view, "/secret").List(ctx))
	assert.Nil(t, getFile(t, view, "/missing").List(ctx))
}

func TestWriteRequiresWriteAuthority(t *testing.T) {
	ctx := context.Background()
	bob := account.New("bob", "/home/bob")
	view, _ := newTestView(t, bob)

	h := getFile(t, view, "/a.txt")
	assert.False(t, h.IsWritable(ctx))
	assert.False(t, h.IsRemovable(ctx))

	_, err := h.OpenForWrite(ctx, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestWriteDeniedByPermissionBits(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	_, err := client.Mkdirs(ctx, "/home/alice/ro")
	require.NoError(t, err)

	// Owned by the superuser with 0755: alice falls in the other tier
	h := getFile(t, view, "/ro/new.txt")
	assert.False(t, h.IsWritable(ctx))

	require.NoError(t, client.SetOwner(ctx, "/home/alice/ro", "", "staff"))
	require.NoError(t, client.SetPermission(ctx, "/home/alice/ro", 0o775))
	assert.True(t, h.IsWritable(ctx))
}

func TestWritableDefersToNearestAncestor(t *testing.T) {
	ctx := context.Background()
	view, _ := newTestView(t, newAlice())

	assert.True(t, getFile(t, view, "/new/deep/file.txt").IsWritable(ctx))
}

func TestWritableStopsAtRoot(t *testing.T) {
	f := newFileHandle(emptyClient{}, newAlice(), "/x/y")
	assert.False(t, f.IsWritable(context.Background()))
}

func TestOpenForWriteAssignsOwnerAndReplication(t *testing.T) {
	ctx := context.Background()
	alice := newAlice()
	alice.SetReplication(3)
	view, client := newTestView(t, alice)

	h := getFile(t, view, "/up/data.bin")
	require.True(t, getFile(t, view, "/up").Mkdir(ctx))

	w, err := h.OpenForWrite(ctx, 100)
	require.NoError(t, err)
	_, err = io.WriteString(w, "payload")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	st, err := client.Stat(ctx, "/home/alice/up/data.bin")
	require.NoError(t, err)
	assert.Equal(t, "alice", st.Owner)
	assert.Equal(t, "staff", st.Group)
	assert.Equal(t, 3, st.Replication)

	assert.True(t, h.IsFile(ctx))
	assert.Equal(t, "alice", h.OwnerName(ctx))
	assert.Equal(t, "staff", h.GroupName(ctx))

	r, err := h.OpenForRead(ctx, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "payload", string(data))
}

func TestOpenForReadDenied(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	writeBacking(t, client, "/home/alice/root-only", "x")
	require.NoError(t, client.SetPermission(ctx, "/home/alice/root-only", 0o600))

	_, err := getFile(t, view, "/root-only").OpenForRead(ctx, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = getFile(t, view, "/missing").OpenForRead(ctx, 0)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestMkdirAssignsOwner(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())

	require.True(t, getFile(t, view, "/x/y").Mkdir(ctx))
	st, err := client.Stat(ctx, "/home/alice/x/y")
	require.NoError(t, err)
	assert.Equal(t, "alice", st.Owner)

	writeBacking(t, client, "/home/alice/f", "x")
	assert.False(t, getFile(t, view, "/f").Mkdir(ctx))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	writeBacking(t, client, "/home/alice/d/sub/f", "x")

	assert.False(t, getFile(t, view, "/nope").Delete(ctx))
	assert.True(t, getFile(t, view, "/d").Delete(ctx))
	assert.False(t, getFile(t, view, "/d").Exists(ctx))
}

func TestMove(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	writeBacking(t, client, "/home/alice/a.txt", "x")

	src := getFile(t, view, "/a.txt")
	dst := getFile(t, view, "/b.txt")
	assert.True(t, src.Move(ctx, dst))
	assert.True(t, dst.Exists(ctx))
	assert.False(t, src.Exists(ctx))

	assert.False(t, src.Move(ctx, dst), "missing source")
}

func TestSetLastModified(t *testing.T) {
	ctx := context.Background()
	view, client := newTestView(t, newAlice())
	writeBacking(t, client, "/home/alice/a.txt", "x")

	mtime := time.Date(2011, 1, 2, 3, 4, 5, 0, time.UTC)
	h := getFile(t, view, "/a.txt")
	require.True(t, h.SetLastModified(ctx, mtime))
	assert.True(t, h.LastModified(ctx).Equal(mtime))

	assert.False(t, getFile(t, view, "/missing").SetLastModified(ctx, mtime))
}

func TestMetadataQueriesFailSilently(t *testing.T) {
	ctx := context.Background()
	f := newFileHandle(faultyClient{}, newAlice(), "/docs")

	assert.False(t, f.IsDirectory(ctx))
	assert.False(t, f.IsFile(ctx))
	assert.False(t, f.Exists(ctx))
	assert.False(t, f.IsReadable(ctx))
	assert.False(t, f.IsWritable(ctx))
	assert.Empty(t, f.OwnerName(ctx))
	assert.Empty(t, f.GroupName(ctx))
	assert.True(t, f.LastModified(ctx).IsZero())
	assert.Zero(t, f.Size(ctx))
	assert.Nil(t, f.List(ctx))
	assert.False(t, f.Delete(ctx))

	_, err := f.Status(ctx)
	assert.Error(t, err)
}
