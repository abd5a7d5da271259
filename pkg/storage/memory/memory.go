// Package memory provides an in-process storage.Client.
//
// The tree lives in a single map keyed by clean backing path and guarded by
// one RWMutex. Data is lost when the process exits. It backs unit tests and
// the "memory" storage type.
package memory

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/hdftp/pkg/storage"
)

const (
	// DefaultURI is the scheme prefix of paths reported by the memory client
	DefaultURI = "mem://"

	// DefaultSuperuser owns everything the client creates until SetOwner is called
	DefaultSuperuser = "hdftp"

	// DefaultSupergroup is the group of everything the client creates
	DefaultSupergroup = "supergroup"
)

// Options configures a memory Client.
type Options struct {
	// URI is prepended to reported paths (default "mem://")
	URI string `mapstructure:"uri"`

	// Superuser is the operating identity owning newly created paths
	Superuser string `mapstructure:"superuser"`

	// Supergroup is the group of newly created paths
	Supergroup string `mapstructure:"supergroup"`
}

type node struct {
	isDir       bool
	owner       string
	group       string
	perm        storage.Permission
	data        []byte
	modTime     time.Time
	accessTime  time.Time
	replication int
}

// Client is an in-memory storage.Client.
type Client struct {
	mu         sync.RWMutex
	uri        string
	superuser  string
	supergroup string
	nodes      map[string]*node
	closed     bool
}

var _ storage.Client = (*Client)(nil)

// New creates an empty memory client containing only the root directory.
func New(opts Options) *Client {
	if opts.URI == "" {
		opts.URI = DefaultURI
	}
	if opts.Superuser == "" {
		opts.Superuser = DefaultSuperuser
	}
	if opts.Supergroup == "" {
		opts.Supergroup = DefaultSupergroup
	}

	now := time.Now()
	c := &Client{
		uri:        opts.URI,
		superuser:  opts.Superuser,
		supergroup: opts.Supergroup,
		nodes:      make(map[string]*node),
	}
	if !strings.HasSuffix(c.uri, "://") {
		c.uri = strings.TrimSuffix(c.uri, "/")
	}
	c.nodes["/"] = c.newNode(true, now)
	return c
}

func (c *Client) newNode(isDir bool, now time.Time) *node {
	perm := storage.DefaultFilePermission
	if isDir {
		perm = storage.DefaultDirPermission
	}
	return &node{
		isDir:      isDir,
		owner:      c.superuser,
		group:      c.supergroup,
		perm:       perm,
		modTime:    now,
		accessTime: now,
	}
}

func (c *Client) status(p string, n *node) *storage.FileStatus {
	st := &storage.FileStatus{
		Path:        storage.ReportedPath(c.uri, p),
		IsDir:       n.isDir,
		Owner:       n.owner,
		Group:       n.group,
		Permission:  n.perm,
		ModTime:     n.modTime,
		AccessTime:  n.accessTime,
		Replication: n.replication,
	}
	if !n.isDir {
		st.Size = int64(len(n.data))
	}
	return st
}

func (c *Client) checkOpen(p string) error {
	if c.closed {
		return storage.NewIOError(p, io.ErrClosedPipe)
	}
	return nil
}

// URI returns the prefix of reported paths.
func (c *Client) URI() string {
	return c.uri
}

// Exists reports whether path exists.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p = storage.CleanPath(p)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(p); err != nil {
		return false, err
	}
	_, ok := c.nodes[p]
	return ok, nil
}

// Stat returns the status of path.
func (c *Client) Stat(ctx context.Context, p string) (*storage.FileStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(p); err != nil {
		return nil, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return nil, storage.NewNotFoundError(p)
	}
	return c.status(p, n), nil
}

// List returns the immediate children of a directory sorted by name.
func (c *Client) List(ctx context.Context, p string) ([]*storage.FileStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.checkOpen(p); err != nil {
		return nil, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return nil, storage.NewNotFoundError(p)
	}
	if !n.isDir {
		return []*storage.FileStatus{c.status(p, n)}, nil
	}

	children := make([]string, 0)
	for key := range c.nodes {
		if key != "/" && path.Dir(key) == p {
			children = append(children, key)
		}
	}
	sort.Strings(children)

	result := make([]*storage.FileStatus, 0, len(children))
	for _, key := range children {
		result = append(result, c.status(key, c.nodes[key]))
	}
	return result, nil
}

// Mkdirs creates path and any missing ancestors.
func (c *Client) Mkdirs(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p = storage.CleanPath(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(p); err != nil {
		return false, err
	}
	if err := c.mkdirsLocked(p, time.Now()); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) mkdirsLocked(p string, now time.Time) error {
	if n, ok := c.nodes[p]; ok {
		if !n.isDir {
			return storage.NewError(storage.ErrNotDirectory, p, nil)
		}
		return nil
	}
	if err := c.mkdirsLocked(path.Dir(p), now); err != nil {
		return err
	}
	c.nodes[p] = c.newNode(true, now)
	return nil
}

// Delete removes path, descending into directories when recursive is set.
func (c *Client) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p = storage.CleanPath(p)
	if p == "/" {
		return false, storage.NewError(storage.ErrInvalidArgument, p, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(p); err != nil {
		return false, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return false, nil
	}

	descendants := c.descendantsLocked(p)
	if n.isDir && len(descendants) > 0 && !recursive {
		return false, storage.NewError(storage.ErrNotEmpty, p, nil)
	}
	for _, key := range descendants {
		delete(c.nodes, key)
	}
	delete(c.nodes, p)
	return true, nil
}

func (c *Client) descendantsLocked(p string) []string {
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}
	var keys []string
	for key := range c.nodes {
		if key != p && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Rename moves src to dst, carrying any descendants along.
func (c *Client) Rename(ctx context.Context, src, dst string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	src = storage.CleanPath(src)
	dst = storage.CleanPath(dst)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(src); err != nil {
		return false, err
	}
	if src == "/" || src == dst || strings.HasPrefix(dst, src+"/") {
		return false, nil
	}
	n, ok := c.nodes[src]
	if !ok {
		return false, nil
	}
	if _, exists := c.nodes[dst]; exists {
		return false, nil
	}
	parent, ok := c.nodes[path.Dir(dst)]
	if !ok || !parent.isDir {
		return false, nil
	}

	for _, key := range c.descendantsLocked(src) {
		c.nodes[dst+strings.TrimPrefix(key, src)] = c.nodes[key]
		delete(c.nodes, key)
	}
	c.nodes[dst] = n
	delete(c.nodes, src)
	return true, nil
}

// SetOwner assigns owner and group. Empty values leave the field unchanged.
func (c *Client) SetOwner(ctx context.Context, p, user, group string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = storage.CleanPath(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(p); err != nil {
		return err
	}
	n, ok := c.nodes[p]
	if !ok {
		return storage.NewNotFoundError(p)
	}
	if user != "" {
		n.owner = user
	}
	if group != "" {
		n.group = group
	}
	return nil
}

// SetPermission replaces the permission bits of path.
func (c *Client) SetPermission(ctx context.Context, p string, perm storage.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = storage.CleanPath(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[p]
	if !ok {
		return storage.NewNotFoundError(p)
	}
	n.perm = perm & storage.PermissionMask
	return nil
}

// SetTimes updates modification and access times.
func (c *Client) SetTimes(ctx context.Context, p string, mtime, atime time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = storage.CleanPath(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(p); err != nil {
		return err
	}
	n, ok := c.nodes[p]
	if !ok {
		return storage.NewNotFoundError(p)
	}
	if !mtime.IsZero() {
		n.modTime = mtime
	}
	if !atime.IsZero() {
		n.accessTime = atime
	}
	return nil
}

// Open returns a reader over a snapshot of the file content.
func (c *Client) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(p); err != nil {
		return nil, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return nil, storage.NewNotFoundError(p)
	}
	if n.isDir {
		return nil, storage.NewError(storage.ErrIsDirectory, p, nil)
	}
	n.accessTime = time.Now()
	return io.NopCloser(bytes.NewReader(bytes.Clone(n.data))), nil
}

// Create creates or truncates a file. Content becomes visible on Close.
func (c *Client) Create(ctx context.Context, p string, opts storage.CreateOptions) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)
	if p == "/" {
		return nil, storage.NewError(storage.ErrIsDirectory, p, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(p); err != nil {
		return nil, err
	}

	now := time.Now()
	if n, ok := c.nodes[p]; ok {
		if n.isDir {
			return nil, storage.NewError(storage.ErrIsDirectory, p, nil)
		}
		if !opts.Overwrite {
			return nil, storage.NewError(storage.ErrAlreadyExists, p, nil)
		}
	}
	if err := c.mkdirsLocked(path.Dir(p), now); err != nil {
		return nil, err
	}

	n := c.newNode(false, now)
	n.replication = opts.Replication
	c.nodes[p] = n

	return &writer{client: c, path: p, node: n}, nil
}

// Close marks the client closed; later calls fail with an I/O error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type writer struct {
	client *Client
	path   string
	node   *node
	buf    bytes.Buffer
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, storage.NewIOError(w.path, io.ErrClosedPipe)
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.client.mu.Lock()
	defer w.client.mu.Unlock()
	w.node.data = bytes.Clone(w.buf.Bytes())
	w.node.modTime = time.Now()
	return nil
}
