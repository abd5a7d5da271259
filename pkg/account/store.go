package account

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/spf13/afero"
)

// Account file layout. Every directive has the form
//
//	ftpserver.user.<name>.<attribute>=<value>
const (
	keyPrefix = "ftpserver.user."

	attrPassword       = "userpassword"
	attrHome           = "homedirectory"
	attrWritePerm      = "writepermission"
	attrEnable         = "enableflag"
	attrMaxIdleTime    = "idletime"
	attrUploadRate     = "uploadrate"
	attrDownloadRate   = "downloadrate"
	attrMaxLogins      = "maxloginnumber"
	attrMaxLoginsPerIP = "maxloginperip"
	attrReplication    = "filereplication"
	attrGroup          = "group"

	fileHeader = "# Generated file - don't edit (please)"
)

// Credentials are presented by a session to log in.
type Credentials struct {
	Username string
	Password string

	// Anonymous selects the anonymous account; Password is ignored.
	Anonymous bool
}

// Config configures a Store.
type Config struct {
	// Fs holds the account file (default: the OS filesystem)
	Fs afero.Fs

	// File is the path of the account file
	File string

	// Encryptor hashes and verifies passwords (default: md5)
	Encryptor PasswordEncryptor

	// CreateIfMissing writes an empty account file when File does not exist
	CreateIfMissing bool
}

// Store is a flat-file backed cache of accounts.
//
// Thread Safety:
// Every operation holds one store-wide mutex for its whole duration. Load
// and Refresh replace the cache wholesale and must not interleave with the
// full-file rewrite done by Save and Delete.
type Store struct {
	mu        sync.Mutex
	fs        afero.Fs
	file      string
	encryptor PasswordEncryptor
	accounts  map[string]*Account
	disposed  bool
}

// Open creates a store and loads cfg.File.
//
// Returns ErrConfig when the file is missing (and CreateIfMissing is unset),
// unreadable or malformed.
func Open(cfg Config) (*Store, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("%w: account file path is required", ErrConfig)
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Encryptor == nil {
		cfg.Encryptor = MD5Encryptor{}
	}

	s := &Store{
		fs:        cfg.Fs,
		file:      cfg.File,
		encryptor: cfg.Encryptor,
		accounts:  make(map[string]*Account),
	}

	if cfg.CreateIfMissing {
		exists, err := afero.Exists(s.fs, s.file)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		if !exists {
			if err := s.fs.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfig, err)
			}
			if err := s.persist(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfig, err)
			}
			logger.Info("Created empty account file %s", s.file)
		}
	}

	if err := s.Load(cfg.File); err != nil {
		return nil, err
	}
	return s, nil
}

// File returns the path of the account file.
func (s *Store) File() string {
	return s.file
}

// Encryptor returns the password encryptor used by the store.
func (s *Store) Encryptor() PasswordEncryptor {
	return s.encryptor
}

// Load parses file and replaces the cache with its accounts. The store keeps
// using file for later saves and refreshes. On failure the previous cache is
// left untouched.
func (s *Store) Load(file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreDisposed
	}
	return s.loadLocked(file)
}

// Refresh reloads the current account file, picking up external edits.
func (s *Store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreDisposed
	}
	return s.loadLocked(s.file)
}

func (s *Store) loadLocked(file string) error {
	data, err := afero.ReadFile(s.fs, file)
	if err != nil {
		return fmt.Errorf("%w: failed to read account file %s: %v", ErrConfig, file, err)
	}

	accounts, err := parseAccounts(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfig, file, err)
	}

	s.file = file
	s.accounts = accounts
	logger.Info("Loaded %d account(s) from %s", len(accounts), file)
	return nil
}

// Authenticate returns the account matching creds.
//
// Fails with ErrAuthFailed when the account is unknown or disabled, or the
// password does not match. An anonymous login succeeds only when an enabled
// account named "anonymous" exists.
func (s *Store) Authenticate(creds Credentials) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrStoreDisposed
	}

	name := creds.Username
	if creds.Anonymous {
		name = AnonymousName
	}

	acc, ok := s.accounts[name]
	if !ok {
		logger.Debug("Authentication failed: unknown user %q", name)
		return nil, ErrAuthFailed
	}
	if !acc.Enabled() {
		logger.Debug("Authentication failed: user %q is disabled", name)
		return nil, ErrAuthFailed
	}
	if !creds.Anonymous && !s.encryptor.Matches(creds.Password, acc.Password()) {
		logger.Debug("Authentication failed: wrong password for %q", name)
		return nil, ErrAuthFailed
	}
	return acc, nil
}

// Save validates acc, replaces its cached record and rewrites the file.
//
// The cache keeps a copy of acc. On an ErrPersistence failure the cache
// already holds the new record.
func (s *Store) Save(acc *Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreDisposed
	}

	s.accounts[acc.Name()] = acc.Clone()
	if err := s.persist(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Delete removes the named account and rewrites the file. Deleting an
// unknown name is a no-op.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrStoreDisposed
	}
	if _, ok := s.accounts[name]; !ok {
		return nil
	}

	delete(s.accounts, name)
	if err := s.persist(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Names returns the account names in sorted order.
func (s *Store) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrStoreDisposed
	}
	return sortedNames(s.accounts), nil
}

// Exists reports whether an account named name is cached.
func (s *Store) Exists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return false, ErrStoreDisposed
	}
	_, ok := s.accounts[name]
	return ok, nil
}

// Get returns the cached account. The result is shared with the cache and
// must not be modified; Clone it first.
func (s *Store) Get(name string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, ErrStoreDisposed
	}
	acc, ok := s.accounts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, name)
	}
	return acc, nil
}

// Dispose clears the cache. Every later operation fails with ErrStoreDisposed.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = nil
	s.disposed = true
}

// ============================================================================
// Parsing
// ============================================================================

// authorityKinds maps the attributes of each persisted authority to its kind.
var authorityKinds = map[string]RequestKind{
	attrWritePerm:      WriteRequest,
	attrMaxLogins:      ConcurrentLoginRequest,
	attrMaxLoginsPerIP: ConcurrentLoginRequest,
	attrUploadRate:     TransferRateRequest,
	attrDownloadRate:   TransferRateRequest,
}

// directives collects the attributes of one account and the order in which
// its authority kinds first appear in the file.
type directives struct {
	attrs map[string]string
	kinds []RequestKind
}

func (d *directives) add(key, value string) {
	d.attrs[key] = value
	kind, ok := authorityKinds[key]
	if !ok {
		return
	}
	for _, k := range d.kinds {
		if k == kind {
			return
		}
	}
	d.kinds = append(d.kinds, kind)
}

func parseAccounts(data []byte) (map[string]*Account, error) {
	byName := make(map[string]*directives)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, keyPrefix) {
			continue
		}

		parts := strings.SplitN(line, ".", 4)
		if len(parts) < 4 || parts[2] == "" {
			return nil, fmt.Errorf("line %d: malformed directive %q", lineNo, line)
		}
		name := parts[2]

		key, value, ok := strings.Cut(parts[3], "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '=' in %q", lineNo, line)
		}

		d := byName[name]
		if d == nil {
			d = &directives{attrs: make(map[string]string)}
			byName[name] = d
		}
		d.add(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	accounts := make(map[string]*Account, len(byName))
	for name, d := range byName {
		acc := accountFromDirectives(name, d)
		if err := acc.Validate(); err != nil {
			return nil, err
		}
		accounts[name] = acc
	}
	return accounts, nil
}

// accountFromDirectives rebuilds the authority chain in file order.
func accountFromDirectives(name string, d *directives) *Account {
	a := d.attrs
	acc := New(name, a[attrHome])
	acc.SetPassword(a[attrPassword])
	acc.SetEnabled(parseBool(a, attrEnable, true))
	acc.SetMaxIdleTime(parseInt(a[attrMaxIdleTime]))
	acc.SetGroup(a[attrGroup])
	acc.SetReplication(parseInt(a[attrReplication]))

	authorities := make([]Authority, 0, len(d.kinds))
	for _, kind := range d.kinds {
		switch kind {
		case WriteRequest:
			authorities = append(authorities, NewWriteAuthority(parseBool(a, attrWritePerm, false)))
		case ConcurrentLoginRequest:
			authorities = append(authorities, NewConcurrentLoginAuthority(
				parseInt(a[attrMaxLogins]),
				parseInt(a[attrMaxLoginsPerIP]),
			))
		case TransferRateRequest:
			authorities = append(authorities, NewTransferRateAuthority(
				parseInt(a[attrUploadRate]),
				parseInt(a[attrDownloadRate]),
			))
		}
	}
	if len(authorities) == 0 {
		authorities = nil
	}
	acc.SetAuthorities(authorities)
	return acc
}

// parseInt returns the value when it is a positive integer, else 0.
func parseInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func parseBool(a map[string]string, key string, def bool) bool {
	value, ok := a[key]
	if !ok {
		return def
	}
	return strings.EqualFold(value, "true")
}

// ============================================================================
// Persistence
// ============================================================================

// persist writes the cache to a temporary file next to the account file and
// renames it over the live file once the write is complete.
func (s *Store) persist() error {
	data := formatAccounts(s.accounts)

	dir := filepath.Dir(s.file)
	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(s.file)+".new")
	if err != nil {
		return fmt.Errorf("failed to create temporary account file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if err := s.fs.Remove(tmpName); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove temporary account file %s: %v", tmpName, err)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write account file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync account file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close account file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.file); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace account file: %w", err)
	}

	logger.Debug("Saved %d account(s) to %s", len(s.accounts), s.file)
	return nil
}

// formatAccounts renders the account file. Authorities are written in chain
// order, one directive group per kind, so loading the output rebuilds the
// same chain. A later authority of an already written kind is never
// consulted by Chain and is not persisted.
func formatAccounts(accounts map[string]*Account) []byte {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	buf.WriteString("\n")

	for _, name := range sortedNames(accounts) {
		acc := accounts[name]
		put := func(attr, value string) {
			fmt.Fprintf(&buf, "%s%s.%s=%s\n", keyPrefix, name, attr, value)
		}

		fmt.Fprintf(&buf, "\n# the user : %s\n", name)
		put(attrPassword, acc.Password())
		put(attrHome, acc.HomeDirectory())
		put(attrEnable, strconv.FormatBool(acc.Enabled()))

		written := make(map[RequestKind]bool)
		for _, a := range acc.Authorities() {
			if written[a.Kind] {
				continue
			}
			written[a.Kind] = true

			switch a.Kind {
			case WriteRequest:
				put(attrWritePerm, strconv.FormatBool(a.AllowWrite))
			case ConcurrentLoginRequest:
				put(attrMaxLogins, strconv.Itoa(a.MaxLogins))
				put(attrMaxLoginsPerIP, strconv.Itoa(a.MaxLoginsPerSource))
			case TransferRateRequest:
				put(attrUploadRate, strconv.Itoa(a.MaxUploadRate))
				put(attrDownloadRate, strconv.Itoa(a.MaxDownloadRate))
			}
		}

		put(attrMaxIdleTime, strconv.Itoa(acc.MaxIdleTime()))
		put(attrReplication, strconv.Itoa(acc.Replication()))
		put(attrGroup, acc.Group())
	}
	return buf.Bytes()
}

func sortedNames(accounts map[string]*Account) []string {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
