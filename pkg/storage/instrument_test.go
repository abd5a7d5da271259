package storage_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/marmos91/hdftp/pkg/storage"
	"github.com/marmos91/hdftp/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	ops  []string
	errs []error
}

func (r *recordingObserver) ObserveOperation(op string, _ time.Duration, err error) {
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

func TestInstrumentNilObserver(t *testing.T) {
	c := memory.New(memory.Options{})
	assert.Same(t, storage.Client(c), storage.Instrument(c, nil))
}

func TestInstrumentReportsOperations(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	c := storage.Instrument(memory.New(memory.Options{URI: "mem://x"}), obs)

	_, err := c.Mkdirs(ctx, "/d")
	require.NoError(t, err)
	w, err := c.Create(ctx, "/d/f", storage.CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, c.SetOwner(ctx, "/d/f", "alice", ""))
	require.NoError(t, c.SetTimes(ctx, "/d/f", time.Now(), time.Time{}))
	r, err := c.Open(ctx, "/d/f")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, r)
	_, err = c.List(ctx, "/d")
	require.NoError(t, err)
	_, err = c.Exists(ctx, "/d/f")
	require.NoError(t, err)
	_, err = c.Rename(ctx, "/d/f", "/d/g")
	require.NoError(t, err)
	_, err = c.Delete(ctx, "/d", true)
	require.NoError(t, err)

	_, err = c.Stat(ctx, "/missing")
	assert.True(t, storage.IsNotFound(err))

	assert.Equal(t, []string{
		"mkdirs", "create", "set_owner", "set_times", "open", "list",
		"exists", "rename", "delete", "stat",
	}, obs.ops)
	for _, e := range obs.errs {
		assert.NoError(t, e, "not-found must not count as a failure")
	}
	assert.Equal(t, "mem://x", c.URI())
	assert.NoError(t, c.Close())
}
