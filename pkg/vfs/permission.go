package vfs

import "github.com/marmos91/hdftp/pkg/storage"

// Identity is the requester side of a permission check.
type Identity struct {
	Name  string
	Group string
}

// CanRead evaluates read access to a path owned by owner:group with perm.
func CanRead(perm storage.Permission, who Identity, owner, group string) bool {
	return check(perm, who, owner, group, storage.OwnerRead, storage.GroupRead, storage.OtherRead)
}

// CanWrite evaluates write access on the permission bits alone. Callers also
// consult the account's write authority.
func CanWrite(perm storage.Permission, who Identity, owner, group string) bool {
	return check(perm, who, owner, group, storage.OwnerWrite, storage.GroupWrite, storage.OtherWrite)
}

// check picks exactly one tier: owner if the names match, else group if the
// groups match, else other. The bit of that tier decides.
func check(perm storage.Permission, who Identity, owner, group string, ownerBit, groupBit, otherBit storage.Permission) bool {
	switch {
	case who.Name == owner:
		return perm.Has(ownerBit)
	case who.Group == group:
		return perm.Has(groupBit)
	default:
		return perm.Has(otherBit)
	}
}
