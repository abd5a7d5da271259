package storage

import (
	"context"
	"io"
	"time"
)

// Observer receives the outcome of every call made through an instrumented
// Client. Implemented by metrics.NewStorageMetrics.
type Observer interface {
	ObserveOperation(operation string, duration time.Duration, err error)
}

// Instrument wraps client so every call is reported to obs. A nil obs
// returns client unchanged.
func Instrument(client Client, obs Observer) Client {
	if obs == nil {
		return client
	}
	return &instrumented{client: client, obs: obs}
}

type instrumented struct {
	client Client
	obs    Observer
}

func (c *instrumented) observe(op string, start time.Time, err error) {
	// A missing path is an answer, not a backend failure
	if IsNotFound(err) {
		err = nil
	}
	c.obs.ObserveOperation(op, time.Since(start), err)
}

func (c *instrumented) Exists(ctx context.Context, p string) (bool, error) {
	start := time.Now()
	ok, err := c.client.Exists(ctx, p)
	c.observe("exists", start, err)
	return ok, err
}

func (c *instrumented) Stat(ctx context.Context, p string) (*FileStatus, error) {
	start := time.Now()
	st, err := c.client.Stat(ctx, p)
	c.observe("stat", start, err)
	return st, err
}

func (c *instrumented) List(ctx context.Context, p string) ([]*FileStatus, error) {
	start := time.Now()
	entries, err := c.client.List(ctx, p)
	c.observe("list", start, err)
	return entries, err
}

func (c *instrumented) Mkdirs(ctx context.Context, p string) (bool, error) {
	start := time.Now()
	ok, err := c.client.Mkdirs(ctx, p)
	c.observe("mkdirs", start, err)
	return ok, err
}

func (c *instrumented) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	start := time.Now()
	ok, err := c.client.Delete(ctx, p, recursive)
	c.observe("delete", start, err)
	return ok, err
}

func (c *instrumented) Rename(ctx context.Context, src, dst string) (bool, error) {
	start := time.Now()
	ok, err := c.client.Rename(ctx, src, dst)
	c.observe("rename", start, err)
	return ok, err
}

func (c *instrumented) SetOwner(ctx context.Context, p, user, group string) error {
	start := time.Now()
	err := c.client.SetOwner(ctx, p, user, group)
	c.observe("set_owner", start, err)
	return err
}

func (c *instrumented) SetTimes(ctx context.Context, p string, mtime, atime time.Time) error {
	start := time.Now()
	err := c.client.SetTimes(ctx, p, mtime, atime)
	c.observe("set_times", start, err)
	return err
}

func (c *instrumented) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	start := time.Now()
	r, err := c.client.Open(ctx, p)
	c.observe("open", start, err)
	return r, err
}

func (c *instrumented) Create(ctx context.Context, p string, opts CreateOptions) (io.WriteCloser, error) {
	start := time.Now()
	w, err := c.client.Create(ctx, p, opts)
	c.observe("create", start, err)
	return w, err
}

func (c *instrumented) URI() string {
	return c.client.URI()
}

func (c *instrumented) Close() error {
	return c.client.Close()
}
