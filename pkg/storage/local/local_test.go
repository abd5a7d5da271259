package local

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/marmos91/hdftp/pkg/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		Fs:               afero.NewMemMapFs(),
		InMemoryMetadata: true,
		Superuser:        "root",
		Supergroup:       "wheel",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeFile(t *testing.T, c *Client, p, content string) {
	t.Helper()
	w, err := c.Create(context.Background(), p, storage.CreateOptions{Overwrite: true})
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestNewRequiresRootOrFs(t *testing.T) {
	_, err := New(context.Background(), Config{InMemoryMetadata: true})
	assert.Error(t, err)
}

func TestNewOnDisk(t *testing.T) {
	root := t.TempDir()
	c, err := New(context.Background(), Config{Root: root + "/data", MetadataPath: root + "/meta"})
	require.NoError(t, err)
	defer c.Close()

	writeFile(t, c, "/a.txt", "disk")
	st, err := c.Stat(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "file:///a.txt", st.Path)
	assert.Equal(t, int64(4), st.Size)
}

func TestStatDefaultsToSuperuser(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Mkdirs(ctx, "/home/alice")
	require.NoError(t, err)

	st, err := c.Stat(ctx, "/home/alice")
	require.NoError(t, err)
	assert.True(t, st.IsDir)
	assert.Equal(t, "root", st.Owner)
	assert.Equal(t, "wheel", st.Group)
	assert.Equal(t, "file:///home/alice", st.Path)

	_, err = c.Stat(ctx, "/nope")
	assert.True(t, storage.IsNotFound(err))
}

func TestSetOwnerPersistsInAttributeStore(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	writeFile(t, c, "/home/alice/a.txt", "a")

	require.NoError(t, c.SetOwner(ctx, "/home/alice/a.txt", "alice", "staff"))
	require.NoError(t, c.SetPermission(ctx, "/home/alice/a.txt", 0o600))

	st, err := c.Stat(ctx, "/home/alice/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alice", st.Owner)
	assert.Equal(t, "staff", st.Group)
	assert.Equal(t, "rw-------", st.Permission.String())

	assert.True(t, storage.IsNotFound(c.SetOwner(ctx, "/missing", "a", "b")))
}

func TestCreateRecordsReplication(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	w, err := c.Create(ctx, "/r.bin", storage.CreateOptions{Replication: 2})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	st, err := c.Stat(ctx, "/r.bin")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Replication)

	_, err = c.Create(ctx, "/r.bin", storage.CreateOptions{})
	assert.True(t, storage.IsAlreadyExists(err))
}

func TestCreateResetsOwnership(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	writeFile(t, c, "/f", "1")
	require.NoError(t, c.SetOwner(ctx, "/f", "alice", "staff"))

	writeFile(t, c, "/f", "2")
	st, err := c.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, "root", st.Owner)
}

func TestOpenReadsContent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	writeFile(t, c, "/docs/readme.md", "# hi")

	r, err := c.Open(ctx, "/docs/readme.md")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(data))

	_, err = c.Open(ctx, "/docs")
	code, _ := storage.CodeOf(err)
	assert.Equal(t, storage.ErrIsDirectory, code)
}

func TestListChildren(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	writeFile(t, c, "/d/b", "b")
	writeFile(t, c, "/d/a", "a")
	require.NoError(t, c.SetOwner(ctx, "/d/b", "bob", ""))

	entries, err := c.List(ctx, "/d")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name())
	assert.Equal(t, "root", entries[0].Owner)
	assert.Equal(t, "b", entries[1].Name())
	assert.Equal(t, "bob", entries[1].Owner)
	assert.Equal(t, "wheel", entries[1].Group)
}

func TestDeleteAndAttributesCleanup(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	writeFile(t, c, "/d/sub/f", "x")
	require.NoError(t, c.SetOwner(ctx, "/d/sub/f", "alice", "staff"))

	_, err := c.Delete(ctx, "/d", false)
	assert.True(t, storage.IsNotEmpty(err))

	ok, err := c.Delete(ctx, "/d", true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Delete(ctx, "/d", true)
	require.NoError(t, err)
	assert.False(t, ok)

	// Recreating the path does not resurrect the old owner
	writeFile(t, c, "/d/sub/f", "y")
	st, err := c.Stat(ctx, "/d/sub/f")
	require.NoError(t, err)
	assert.Equal(t, "root", st.Owner)
}

func TestRenameMovesAttributes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	writeFile(t, c, "/src/f", "x")
	require.NoError(t, c.SetOwner(ctx, "/src/f", "alice", "staff"))

	ok, err := c.Rename(ctx, "/src", "/dst")
	require.NoError(t, err)
	require.True(t, ok)

	st, err := c.Stat(ctx, "/dst/f")
	require.NoError(t, err)
	assert.Equal(t, "alice", st.Owner)

	ok, err = c.Rename(ctx, "/missing", "/x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Rename(ctx, "/dst", "/dst/inner")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetTimes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	writeFile(t, c, "/f", "x")

	mtime := time.Date(2019, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, c.SetTimes(ctx, "/f", mtime, time.Time{}))

	st, err := c.Stat(ctx, "/f")
	require.NoError(t, err)
	assert.True(t, st.ModTime.Equal(mtime))
}

func TestMkdirsOverFile(t *testing.T) {
	c := newTestClient(t)
	writeFile(t, c, "/f", "x")

	_, err := c.Mkdirs(context.Background(), "/f")
	code, ok := storage.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, storage.ErrNotDirectory, code)
}
