package storage

import (
	"fmt"
	"os"
)

// Permission is the 9-bit owner/group/other read-write-execute encoding
// reported by a backend for a path.
//
// Bit layout matches Unix mode bits: 0400 owner-read through 0001 other-exec.
type Permission uint16

const (
	OwnerRead  Permission = 0o400
	OwnerWrite Permission = 0o200
	OwnerExec  Permission = 0o100
	GroupRead  Permission = 0o040
	GroupWrite Permission = 0o020
	GroupExec  Permission = 0o010
	OtherRead  Permission = 0o004
	OtherWrite Permission = 0o002
	OtherExec  Permission = 0o001

	// PermissionMask covers the 9 meaningful bits
	PermissionMask Permission = 0o777

	// DefaultDirPermission is applied to directories created by backends
	DefaultDirPermission Permission = 0o755

	// DefaultFilePermission is applied to files created by backends
	DefaultFilePermission Permission = 0o644
)

const permissionChars = "rwxrwxrwx"

// String renders the 9-character encoding, e.g. "rwxr-x---".
func (p Permission) String() string {
	buf := make([]byte, 9)
	for i := range 9 {
		if p&(1<<uint(8-i)) != 0 {
			buf[i] = permissionChars[i]
		} else {
			buf[i] = '-'
		}
	}
	return string(buf)
}

// Has reports whether every bit of mask is set.
func (p Permission) Has(mask Permission) bool {
	return p&mask == mask
}

// FileMode converts the permission to os.FileMode permission bits.
func (p Permission) FileMode() os.FileMode {
	return os.FileMode(p & PermissionMask)
}

// PermissionFromFileMode extracts the 9 permission bits of an os.FileMode.
func PermissionFromFileMode(mode os.FileMode) Permission {
	return Permission(mode.Perm())
}

// ParsePermission parses the 9-character encoding produced by String.
func ParsePermission(s string) (Permission, error) {
	if len(s) != 9 {
		return 0, fmt.Errorf("invalid permission %q: expected 9 characters", s)
	}

	var p Permission
	for i := range 9 {
		switch s[i] {
		case permissionChars[i]:
			p |= 1 << uint(8-i)
		case '-':
		default:
			return 0, fmt.Errorf("invalid permission %q: unexpected %q at position %d", s, s[i], i)
		}
	}
	return p, nil
}
