package ftp

import (
	"io"
	"net"
	"sync"

	"github.com/marmos91/hdftp/pkg/account"
)

// session is one control connection. account and driver are set once the
// client has logged in.
type session struct {
	id      uint32
	source  string
	conn    io.Closer
	account string
	driver  *clientDriver
}

// sessionRegistry tracks open control connections and the logged-in
// sessions per account and per account+source, which feed the
// ConcurrentLogin policy.
type sessionRegistry struct {
	mu        sync.Mutex
	sessions  map[uint32]*session
	logins    map[string]int
	perSource map[string]int
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		sessions:  make(map[uint32]*session),
		logins:    make(map[string]int),
		perSource: make(map[string]int),
	}
}

func sourceKey(name, source string) string {
	return name + "@" + source
}

// sourceIP returns the host part of a remote address.
func sourceIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// connect registers a new control connection.
func (r *sessionRegistry) connect(id uint32, source string, conn io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &session{id: id, source: source, conn: conn}
}

// admit asks acc's ConcurrentLogin policy whether connection id may log in,
// counting the session itself, and records the login when granted.
//
// The check and the registration happen under one lock so two sessions
// racing for the last slot cannot both be admitted.
func (r *sessionRegistry) admit(id uint32, acc *account.Account) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	name := acc.Name()
	key := sourceKey(name, s.source)

	verdict := acc.Authorize(account.Request{
		Kind:             account.ConcurrentLoginRequest,
		Logins:           r.logins[name] + 1,
		LoginsFromSource: r.perSource[key] + 1,
	})
	if !verdict.Granted {
		return false
	}

	s.account = name
	r.logins[name]++
	r.perSource[key]++
	return true
}

// attach binds the filesystem driver of a logged-in session.
func (r *sessionRegistry) attach(id uint32, d *clientDriver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.driver = d
	}
}

// logout undoes admit without closing the connection and returns the
// driver that was attached, if any.
func (r *sessionRegistry) logout(id uint32) *clientDriver {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	r.forgetLogin(s)
	d := s.driver
	s.driver = nil
	return d
}

// disconnect removes the connection and returns it, or nil if unknown.
func (r *sessionRegistry) disconnect(id uint32) *session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	r.forgetLogin(s)
	return s
}

func (r *sessionRegistry) forgetLogin(s *session) {
	if s.account == "" {
		return
	}
	key := sourceKey(s.account, s.source)
	if r.logins[s.account]--; r.logins[s.account] <= 0 {
		delete(r.logins, s.account)
	}
	if r.perSource[key]--; r.perSource[key] <= 0 {
		delete(r.perSource, key)
	}
	s.account = ""
}

// loginCount returns the number of logged-in sessions of an account.
func (r *sessionRegistry) loginCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logins[name]
}

// count returns the number of open control connections.
func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// closeAll closes every open control connection.
func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	conns := make([]io.Closer, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
