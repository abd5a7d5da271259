// Package account implements gateway user accounts, their authorization
// chains and the flat-file account store.
package account

import (
	"fmt"
	"strings"
)

const (
	// DefaultGroup is the group assigned to accounts that do not name one.
	DefaultGroup = "ftpgroup"

	// AnonymousName is the account used for anonymous logins.
	AnonymousName = "anonymous"
)

// Account is a gateway user: credentials, home directory, group identity,
// limits and an ordered authority chain.
//
// Accounts handed out by a Store are shared with its cache. Callers must not
// mutate them in place; Clone, modify and Save instead.
type Account struct {
	name        string
	password    string
	home        string
	group       string
	enabled     bool
	maxIdle     int
	replication int
	authorities []Authority
}

// New creates an enabled account in the default group.
func New(name, home string) *Account {
	a := &Account{
		name:    name,
		group:   DefaultGroup,
		enabled: true,
	}
	a.SetHomeDirectory(home)
	return a
}

// Clone returns a copy of the account with its own authority slice.
func (a *Account) Clone() *Account {
	c := *a
	if a.authorities != nil {
		c.authorities = append([]Authority(nil), a.authorities...)
	}
	return &c
}

func (a *Account) Name() string        { return a.name }
func (a *Account) SetName(name string) { a.name = name }

// Password returns the stored credential digest.
func (a *Account) Password() string { return a.password }

// SetPassword stores a credential digest. Plain text passwords are hashed by
// a PasswordEncryptor before they get here.
func (a *Account) SetPassword(digest string) { a.password = digest }

func (a *Account) HomeDirectory() string { return a.home }

// SetHomeDirectory stores home without trailing separators; "/" stays "/".
func (a *Account) SetHomeDirectory(home string) {
	trimmed := strings.TrimRight(home, "/")
	if trimmed == "" && home != "" {
		trimmed = "/"
	}
	a.home = trimmed
}

func (a *Account) Group() string { return a.group }

// SetGroup sets the group; an empty group falls back to DefaultGroup.
func (a *Account) SetGroup(group string) {
	if group == "" {
		group = DefaultGroup
	}
	a.group = group
}

func (a *Account) Enabled() bool           { return a.enabled }
func (a *Account) SetEnabled(enabled bool) { a.enabled = enabled }

// MaxIdleTime returns the idle timeout in seconds (0 = server default).
func (a *Account) MaxIdleTime() int { return a.maxIdle }

// SetMaxIdleTime sets the idle timeout in seconds; negative values clamp to 0.
func (a *Account) SetMaxIdleTime(seconds int) { a.maxIdle = max(seconds, 0) }

// Replication returns the replication factor for new files (0 = backend default).
func (a *Account) Replication() int { return a.replication }

// SetReplication sets the replication factor; negative values clamp to 0.
func (a *Account) SetReplication(n int) { a.replication = max(n, 0) }

// Authorities returns the authority chain in evaluation order.
func (a *Account) Authorities() []Authority { return a.authorities }

// SetAuthorities replaces the authority chain.
func (a *Account) SetAuthorities(authorities []Authority) { a.authorities = authorities }

// AuthoritiesOfKind returns the authorities answering kind, in chain order.
func (a *Account) AuthoritiesOfKind(kind RequestKind) []Authority {
	var out []Authority
	for _, auth := range a.authorities {
		if auth.Kind == kind {
			out = append(out, auth)
		}
	}
	return out
}

// Authorize evaluates req against the account's chain.
func (a *Account) Authorize(req Request) Verdict {
	return Chain(a.authorities, req)
}

// CanWrite reports whether the chain grants write requests.
func (a *Account) CanWrite() bool {
	return a.Authorize(Request{Kind: WriteRequest}).Granted
}

// Validate checks the attributes required to persist the account.
func (a *Account) Validate() error {
	if a.name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAccount)
	}
	if strings.ContainsAny(a.name, ".=\n\r") {
		return fmt.Errorf("%w: name %q must not contain '.', '=' or line breaks", ErrInvalidAccount, a.name)
	}
	if a.home == "" {
		return fmt.Errorf("%w: home directory is required for %q", ErrInvalidAccount, a.name)
	}
	if !strings.HasPrefix(a.home, "/") {
		return fmt.Errorf("%w: home directory %q of %q must be absolute", ErrInvalidAccount, a.home, a.name)
	}
	return nil
}

func (a *Account) String() string {
	return fmt.Sprintf("Account{name=%s home=%s group=%s enabled=%t}", a.name, a.home, a.group, a.enabled)
}
