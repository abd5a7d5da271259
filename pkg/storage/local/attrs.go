package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// Attribute Key Namespace
// =======================
//
// The data plane (afero) has no notion of user or group names, so ownership
// and the other attributes the gateway needs live in BadgerDB, one entry per
// path that has ever been assigned something explicitly.
//
// Data Type        Prefix   Key Format          Value Type
// =========================================================
// Path Attributes  "a:"     a:<clean path>      pathAttrs (JSON)
//
// Paths without an entry report the client's superuser/supergroup and the
// permission bits of the underlying file. Subtree operations (delete,
// rename) scan the "a:<path>/" prefix.
const attrPrefix = "a:"

type pathAttrs struct {
	Owner       string `json:"owner,omitempty"`
	Group       string `json:"group,omitempty"`
	Permission  uint16 `json:"permission,omitempty"`
	Replication int    `json:"replication,omitempty"`
}

func attrKey(p string) []byte {
	return []byte(attrPrefix + p)
}

func subtreePrefix(p string) []byte {
	if p == "/" {
		return []byte(attrPrefix + "/")
	}
	return []byte(attrPrefix + p + "/")
}

func encodeAttrs(a *pathAttrs) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode path attributes: %w", err)
	}
	return data, nil
}

func decodeAttrs(data []byte) (*pathAttrs, error) {
	var a pathAttrs
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode path attributes: %w", err)
	}
	return &a, nil
}

// getAttrs returns the stored attributes for p, or nil when none exist.
func getAttrs(txn *badger.Txn, p string) (*pathAttrs, error) {
	item, err := txn.Get(attrKey(p))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var attrs *pathAttrs
	err = item.Value(func(val []byte) error {
		attrs, err = decodeAttrs(val)
		return err
	})
	return attrs, err
}

func putAttrs(txn *badger.Txn, p string, a *pathAttrs) error {
	data, err := encodeAttrs(a)
	if err != nil {
		return err
	}
	return txn.Set(attrKey(p), data)
}

// subtreeKeys returns the keys of p and every descendant of p.
func subtreeKeys(txn *badger.Txn, p string) ([][]byte, error) {
	keys := make([][]byte, 0)

	if _, err := txn.Get(attrKey(p)); err == nil {
		keys = append(keys, attrKey(p))
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = subtreePrefix(p)

	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// deleteSubtree removes the attributes of p and its descendants.
func deleteSubtree(db *badger.DB, p string) error {
	return db.Update(func(txn *badger.Txn) error {
		keys, err := subtreeKeys(txn, p)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// moveSubtree re-keys the attributes of src and its descendants under dst.
func moveSubtree(db *badger.DB, src, dst string) error {
	return db.Update(func(txn *badger.Txn) error {
		keys, err := subtreeKeys(txn, src)
		if err != nil {
			return err
		}
		for _, key := range keys {
			item, err := txn.Get(key)
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rel := strings.TrimPrefix(string(key), attrPrefix+src)
			if err := txn.Set(attrKey(dst+rel), val); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
