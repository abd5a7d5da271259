package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/storage"
)

// Create writes an empty placeholder object so the path is visible (and can
// be chowned) immediately, then returns a writer spooling to a temporary
// file. Close uploads the spool with PutObject, keeping whatever metadata
// the placeholder carries at that moment.
func (c *Client) Create(ctx context.Context, p string, opts storage.CreateOptions) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)
	if p == "/" {
		return nil, storage.NewError(storage.ErrIsDirectory, p, nil)
	}

	st, err := c.Stat(ctx, p)
	switch {
	case err == nil && st.IsDir:
		return nil, storage.NewError(storage.ErrIsDirectory, p, nil)
	case err == nil && !opts.Overwrite:
		return nil, storage.NewError(storage.ErrAlreadyExists, p, nil)
	case err != nil && !storage.IsNotFound(err):
		return nil, err
	}

	if _, err := c.Mkdirs(ctx, path.Dir(p)); err != nil {
		return nil, err
	}

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(c.objectKey(p)),
		Body:     strings.NewReader(""),
		Metadata: c.defaultMetadata(false, opts.Replication),
	})
	if err != nil {
		return nil, translateError(p, err)
	}

	spool, err := os.CreateTemp(c.tempDir, "hdftp-s3-*")
	if err != nil {
		return nil, storage.NewIOError(p, fmt.Errorf("failed to create upload spool: %w", err))
	}

	return &objectWriter{
		ctx:    ctx,
		client: c,
		path:   p,
		spool:  spool,
	}, nil
}

type objectWriter struct {
	ctx    context.Context
	client *Client
	path   string
	spool  *os.File
	closed bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, storage.NewIOError(w.path, os.ErrClosed)
	}
	return w.spool.Write(p)
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	defer func() {
		name := w.spool.Name()
		_ = w.spool.Close()
		if err := os.Remove(name); err != nil {
			logger.Warn("Failed to remove S3 upload spool %s: %v", name, err)
		}
	}()

	size, err := w.spool.Seek(0, io.SeekEnd)
	if err != nil {
		return storage.NewIOError(w.path, err)
	}
	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return storage.NewIOError(w.path, err)
	}

	key := w.client.objectKey(w.path)
	meta := w.client.defaultMetadata(false, 0)
	head, err := w.client.headObject(w.ctx, key)
	if err != nil {
		return translateError(w.path, err)
	}
	if head != nil {
		for k, v := range head.Metadata {
			meta[k] = v
		}
	}

	_, err = w.client.api.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.client.bucket),
		Key:           aws.String(key),
		Body:          w.spool,
		ContentLength: aws.Int64(size),
		Metadata:      meta,
	})
	if err != nil {
		return translateError(w.path, err)
	}
	return nil
}

func sortStatuses(statuses []*storage.FileStatus) {
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Path < statuses[j].Path
	})
}
