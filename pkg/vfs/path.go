package vfs

import (
	"path"
	"strings"

	"github.com/marmos91/hdftp/pkg/storage"
)

// Resolve computes the virtual path a session reaches from current by
// following token.
//
// Resolution is lexical and never touches storage:
//   - an absolute token replaces current
//   - ".." moves to the parent, staying at "/" when already there
//   - "", "." and "./" keep current
//   - anything else is appended below current
//
// The result is always cleaned, so "." and ".." segments inside multi-segment
// tokens are folded and can never climb above "/".
func Resolve(current, token string) string {
	if current == "" {
		current = "/"
	}

	switch token {
	case "", ".", "./":
		return path.Clean(current)
	case "..", "../":
		return path.Dir(path.Clean(current))
	}

	if strings.HasPrefix(token, "/") {
		return path.Clean(token)
	}
	return path.Clean(path.Join(current, token))
}

// backingPath maps a virtual path into the home directory.
// A home of "/" contributes no prefix.
func backingPath(home, virtual string) string {
	clean := path.Clean("/" + virtual)
	if home == "" || home == "/" {
		return clean
	}
	if clean == "/" {
		return home
	}
	return home + clean
}

// virtualPath recovers the protocol-visible path of a backend-reported path:
// the "scheme://authority" segment is removed first, then the home prefix.
func virtualPath(home, reported string) string {
	p := storage.StripURI(reported)
	if home != "" && home != "/" {
		p = strings.TrimPrefix(p, home)
	}
	if p == "" {
		return "/"
	}
	return p
}
