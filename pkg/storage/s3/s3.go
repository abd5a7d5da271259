package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/hdftp/pkg/storage"
)

// API is the subset of *s3.Client used by the storage client.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Object user-metadata keys. S3 returns user-metadata keys lowercased.
const (
	metaOwner       = "hdftp-owner"
	metaGroup       = "hdftp-group"
	metaPermission  = "hdftp-permission"
	metaReplication = "hdftp-replication"
	metaMtime       = "hdftp-mtime"

	directoryContentType = "application/x-directory"

	// deleteBatchSize is the S3 DeleteObjects limit
	deleteBatchSize = 1000
)

// Client implements storage.Client on an S3 bucket.
//
// Key Design:
//   - A backing path "/home/alice/a.txt" maps to the key "<prefix>home/alice/a.txt"
//   - Directories are marker objects whose key ends with "/" ("<prefix>home/alice/")
//   - A prefix with objects below it but no marker is an implicit directory
//     reported with the client's default ownership
//   - Owner, group, permission, replication and an mtime override are stored
//     as object user-metadata and rewritten with CopyObject (MetadataDirective REPLACE)
//
// Thread Safety:
// Safe for concurrent use; the SDK client is concurrency-safe and the
// storage client keeps no mutable state.
type Client struct {
	api        API
	bucket     string
	keyPrefix  string
	superuser  string
	supergroup string
	tempDir    string
}

var _ storage.Client = (*Client)(nil)

// Config contains configuration for the S3 storage client.
type Config struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "gateway/" maps "/home/alice" to "gateway/home/alice"
	KeyPrefix string

	// Superuser owns objects created by the gateway until SetOwner is called
	Superuser string

	// Supergroup is the group of objects created by the gateway
	Supergroup string

	// TempDir holds upload spool files (default: os.TempDir())
	TempDir string
}

// New creates an S3 storage client and verifies bucket access.
func New(ctx context.Context, cfg Config) (*Client, error) {
	// ========================================================================
	// Step 1: Validate configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	prefix := strings.Trim(cfg.KeyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	c := &Client{
		api:        cfg.Client,
		bucket:     cfg.Bucket,
		keyPrefix:  prefix,
		superuser:  cfg.Superuser,
		supergroup: cfg.Supergroup,
		tempDir:    cfg.TempDir,
	}
	if c.superuser == "" {
		c.superuser = "hdftp"
	}
	if c.supergroup == "" {
		c.supergroup = "supergroup"
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return c, nil
}

// URI returns the prefix of reported paths ("s3://<bucket>").
func (c *Client) URI() string {
	return "s3://" + c.bucket
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (c *Client) Close() error {
	return nil
}

// ============================================================================
// Keys and metadata
// ============================================================================

// objectKey maps a clean backing path to its object key.
func (c *Client) objectKey(p string) string {
	return c.keyPrefix + strings.TrimPrefix(p, "/")
}

// dirKey maps a clean backing path to its directory marker key.
func (c *Client) dirKey(p string) string {
	if p == "/" {
		return c.keyPrefix
	}
	return c.objectKey(p) + "/"
}

// pathOf maps an object key back to a clean backing path.
func (c *Client) pathOf(key string) string {
	return storage.CleanPath(strings.TrimSuffix(strings.TrimPrefix(key, c.keyPrefix), "/"))
}

// copySource renders the URL-encoded "bucket/key" CopySource value.
func (c *Client) copySource(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.bucket + "/" + strings.Join(segments, "/")
}

func (c *Client) defaultMetadata(isDir bool, replication int) map[string]string {
	perm := storage.DefaultFilePermission
	if isDir {
		perm = storage.DefaultDirPermission
	}
	meta := map[string]string{
		metaOwner:      c.superuser,
		metaGroup:      c.supergroup,
		metaPermission: strconv.FormatUint(uint64(perm), 8),
	}
	if replication > 0 {
		meta[metaReplication] = strconv.Itoa(replication)
	}
	return meta
}

// statusFromMetadata builds a FileStatus from object metadata.
func (c *Client) statusFromMetadata(p string, isDir bool, size int64, lastModified *time.Time, meta map[string]string) *storage.FileStatus {
	st := &storage.FileStatus{
		Path:       storage.ReportedPath(c.URI(), p),
		IsDir:      isDir,
		Owner:      c.superuser,
		Group:      c.supergroup,
		Permission: storage.DefaultFilePermission,
	}
	if isDir {
		st.Permission = storage.DefaultDirPermission
	} else {
		st.Size = size
	}
	if lastModified != nil {
		st.ModTime = *lastModified
	}

	if v := meta[metaOwner]; v != "" {
		st.Owner = v
	}
	if v := meta[metaGroup]; v != "" {
		st.Group = v
	}
	if v, err := strconv.ParseUint(meta[metaPermission], 8, 16); err == nil {
		st.Permission = storage.Permission(v) & storage.PermissionMask
	}
	if v, err := strconv.Atoi(meta[metaReplication]); err == nil {
		st.Replication = v
	}
	if v, err := time.Parse(time.RFC3339Nano, meta[metaMtime]); err == nil {
		st.ModTime = v
	}
	return st
}

// isNotFound reports whether err is an S3 missing-object error.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}

func translateError(p string, err error) error {
	if isNotFound(err) {
		return storage.NewNotFoundError(p)
	}
	return storage.NewIOError(p, err)
}

// ============================================================================
// Metadata operations
// ============================================================================

// headObject returns the object at key, or (nil, nil) when it does not exist.
func (c *Client) headObject(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// hasChildren reports whether any object lives under the directory prefix.
func (c *Client) hasChildren(ctx context.Context, prefix string) (bool, error) {
	out, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return false, err
	}
	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) != prefix {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) statDir(ctx context.Context, p string) (*storage.FileStatus, error) {
	marker, err := c.headObject(ctx, c.dirKey(p))
	if err != nil {
		return nil, translateError(p, err)
	}
	if marker != nil {
		return c.statusFromMetadata(p, true, 0, marker.LastModified, marker.Metadata), nil
	}

	implicit, err := c.hasChildren(ctx, c.dirKey(p))
	if err != nil {
		return nil, translateError(p, err)
	}
	if implicit {
		return c.statusFromMetadata(p, true, 0, nil, nil), nil
	}
	return nil, storage.NewNotFoundError(p)
}

// Stat returns the status of path.
func (c *Client) Stat(ctx context.Context, p string) (*storage.FileStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	if p == "/" {
		if c.keyPrefix != "" {
			marker, err := c.headObject(ctx, c.dirKey(p))
			if err == nil && marker != nil {
				return c.statusFromMetadata(p, true, 0, marker.LastModified, marker.Metadata), nil
			}
		}
		return c.statusFromMetadata(p, true, 0, nil, nil), nil
	}

	obj, err := c.headObject(ctx, c.objectKey(p))
	if err != nil {
		return nil, translateError(p, err)
	}
	if obj != nil {
		return c.statusFromMetadata(p, false, aws.ToInt64(obj.ContentLength), obj.LastModified, obj.Metadata), nil
	}
	return c.statDir(ctx, p)
}

// Exists reports whether path exists.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	_, err := c.Stat(ctx, p)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns the immediate children of a directory.
//
// Listing costs one ListObjectsV2 page per 1000 entries plus one HEAD per
// child, since ownership lives in per-object metadata.
func (c *Client) List(ctx context.Context, p string) ([]*storage.FileStatus, error) {
	p = storage.CleanPath(p)

	st, err := c.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if !st.IsDir {
		return []*storage.FileStatus{st}, nil
	}

	prefix := c.dirKey(p)
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	result := make([]*storage.FileStatus, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translateError(p, err)
		}

		for _, cp := range page.CommonPrefixes {
			child, err := c.statDir(ctx, c.pathOf(aws.ToString(cp.Prefix)))
			if err != nil {
				return nil, err
			}
			result = append(result, child)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			child, err := c.Stat(ctx, c.pathOf(key))
			if storage.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			result = append(result, child)
		}
	}

	sortStatuses(result)
	return result, nil
}

// Mkdirs creates directory markers for path and any missing ancestors.
func (c *Client) Mkdirs(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p = storage.CleanPath(p)
	if p == "/" {
		return true, nil
	}

	if _, err := c.Mkdirs(ctx, path.Dir(p)); err != nil {
		return false, err
	}

	st, err := c.Stat(ctx, p)
	switch {
	case err == nil && st.IsDir:
		return true, nil
	case err == nil:
		return false, storage.NewError(storage.ErrNotDirectory, p, nil)
	case !storage.IsNotFound(err):
		return false, err
	}

	if err := c.putMarker(ctx, p, c.defaultMetadata(true, 0)); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) putMarker(ctx context.Context, p string, meta map[string]string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.dirKey(p)),
		Body:        strings.NewReader(""),
		ContentType: aws.String(directoryContentType),
		Metadata:    meta,
	})
	if err != nil {
		return translateError(p, err)
	}
	return nil
}

// subtreeKeys lists every object key under the directory prefix, marker included.
func (c *Client) subtreeKeys(ctx context.Context, p string) ([]string, error) {
	prefix := c.dirKey(p)
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	keys := make([]string, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translateError(p, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (c *Client) deleteKeys(ctx context.Context, p string, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return translateError(p, err)
		}
		if out != nil && len(out.Errors) > 0 {
			first := out.Errors[0]
			return storage.NewIOError(p, fmt.Errorf("delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message)))
		}
	}
	return nil
}

// Delete removes path, descending into directories when recursive is set.
func (c *Client) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	p = storage.CleanPath(p)
	if p == "/" {
		return false, storage.NewError(storage.ErrInvalidArgument, p, nil)
	}

	st, err := c.Stat(ctx, p)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !st.IsDir {
		_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(c.objectKey(p)),
		})
		if err != nil {
			return false, translateError(p, err)
		}
		return true, nil
	}

	keys, err := c.subtreeKeys(ctx, p)
	if err != nil {
		return false, err
	}
	if !recursive {
		for _, key := range keys {
			if key != c.dirKey(p) {
				return false, storage.NewError(storage.ErrNotEmpty, p, nil)
			}
		}
	}
	if err := c.deleteKeys(ctx, p, keys); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) copyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(c.copySource(srcKey)),
	})
	return err
}

// Rename copies src (and its subtree) to dst, then deletes the source objects.
// S3 has no atomic rename; a failure part-way leaves both copies in place.
func (c *Client) Rename(ctx context.Context, src, dst string) (bool, error) {
	src = storage.CleanPath(src)
	dst = storage.CleanPath(dst)
	if src == "/" || src == dst || strings.HasPrefix(dst, src+"/") {
		return false, nil
	}

	st, err := c.Stat(ctx, src)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ok, err := c.Exists(ctx, dst); err != nil || ok {
		return false, err
	}
	parent, err := c.Stat(ctx, path.Dir(dst))
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !parent.IsDir {
		return false, nil
	}

	if !st.IsDir {
		if err := c.copyObject(ctx, c.objectKey(src), c.objectKey(dst)); err != nil {
			return false, translateError(src, err)
		}
		if err := c.deleteKeys(ctx, src, []string{c.objectKey(src)}); err != nil {
			return true, err
		}
		return true, nil
	}

	keys, err := c.subtreeKeys(ctx, src)
	if err != nil {
		return false, err
	}
	srcPrefix := c.dirKey(src)
	dstPrefix := c.dirKey(dst)
	for _, key := range keys {
		if err := c.copyObject(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix)); err != nil {
			return false, translateError(src, err)
		}
	}
	if err := c.deleteKeys(ctx, src, keys); err != nil {
		return true, err
	}
	return true, nil
}

// updateMetadata rewrites the user-metadata of the object backing p.
// Implicit directories get a marker carrying the new metadata.
func (c *Client) updateMetadata(ctx context.Context, p string, fn func(meta map[string]string)) error {
	st, err := c.Stat(ctx, p)
	if err != nil {
		return err
	}

	key := c.objectKey(p)
	if st.IsDir {
		key = c.dirKey(p)
	}
	if key == "" {
		return storage.NewError(storage.ErrNotSupported, p, errors.New("bucket root carries no metadata"))
	}

	head, err := c.headObject(ctx, key)
	if err != nil {
		return translateError(p, err)
	}

	meta := c.defaultMetadata(st.IsDir, 0)
	if head != nil {
		for k, v := range head.Metadata {
			meta[k] = v
		}
	}
	fn(meta)

	if head == nil {
		return c.putMarker(ctx, p, meta)
	}

	_, err = c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(c.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(c.copySource(key)),
		Metadata:          meta,
		MetadataDirective: types.MetadataDirectiveReplace,
		ContentType:       head.ContentType,
	})
	if err != nil {
		return translateError(p, err)
	}
	return nil
}

// SetOwner assigns owner and group. Empty values leave the field unchanged.
func (c *Client) SetOwner(ctx context.Context, p, user, group string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.updateMetadata(ctx, storage.CleanPath(p), func(meta map[string]string) {
		if user != "" {
			meta[metaOwner] = user
		}
		if group != "" {
			meta[metaGroup] = group
		}
	})
}

// SetTimes records a modification time override. S3 does not track access
// times, so atime is ignored.
func (c *Client) SetTimes(ctx context.Context, p string, mtime, atime time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mtime.IsZero() {
		return nil
	}
	return c.updateMetadata(ctx, storage.CleanPath(p), func(meta map[string]string) {
		meta[metaMtime] = mtime.UTC().Format(time.RFC3339Nano)
	})
}

// Open streams the object body.
func (c *Client) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(p)),
	})
	if err != nil {
		if isNotFound(err) {
			if st, statErr := c.Stat(ctx, p); statErr == nil && st.IsDir {
				return nil, storage.NewError(storage.ErrIsDirectory, p, nil)
			}
		}
		return nil, translateError(p, err)
	}
	return out.Body, nil
}
