package store

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// DeclSig captures one declaration's identity and body hash at the time a
// file was checked. Snapshots let a later run name which declarations
// changed without re-reading the old file content.
type DeclSig struct {
	Name      string `msgpack:"name"`
	Kind      string `msgpack:"kind"`
	Container string `msgpack:"container,omitempty"`
	BodyHash  string `msgpack:"body_hash"`
}

// EncodeSnapshot serializes declaration signatures for the files.snapshot
// column.
func EncodeSnapshot(sigs []DeclSig) ([]byte, error) {
	blob, err := msgpack.Marshal(sigs)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return blob, nil
}

// DecodeSnapshot deserializes a files.snapshot blob. A nil or empty blob
// decodes to no signatures.
func DecodeSnapshot(blob []byte) ([]DeclSig, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var sigs []DeclSig
	if err := msgpack.Unmarshal(blob, &sigs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return sigs, nil
}

// ChangedDecls compares two snapshots and returns the names of
// declarations that were added, removed, or whose body hash differs.
func ChangedDecls(old, next []DeclSig) []string {
	key := func(s DeclSig) string { return s.Container + "\x00" + s.Kind + "\x00" + s.Name }
	oldByKey := make(map[string]DeclSig, len(old))
	for _, s := range old {
		oldByKey[key(s)] = s
	}

	var changed []string
	seen := make(map[string]bool, len(next))
	for _, s := range next {
		k := key(s)
		seen[k] = true
		prev, ok := oldByKey[k]
		if !ok || prev.BodyHash != s.BodyHash {
			changed = append(changed, s.Name)
		}
	}
	for k, s := range oldByKey {
		if !seen[k] {
			changed = append(changed, s.Name)
		}
	}
	return changed
}
