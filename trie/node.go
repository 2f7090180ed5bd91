// Package trie implements an authenticated Merkle-Patricia trie over an
// on-disk key-value store: content-addressed nodes, a deterministic root
// hash independent of insertion order, and Merkle proofs (spec.md §4.2).
package trie

import (
	"bytes"
	"encoding/binary"

	"github.com/quorumchain/quorumchain/crypto"
)

// kind tags the four node shapes from spec.md §3. Empty has no on-disk
// representation; it is the implicit value of an absent child hash.
type kind byte

const (
	kindLeaf kind = iota + 1
	kindExtension
	kindBranch
)

// node is the decoded in-memory form of one trie node. Only the fields for
// its kind are meaningful.
type node struct {
	kind kind

	// leaf, extension
	path []byte // nibble path

	// leaf, branch
	value    []byte
	hasValue bool

	// extension
	child [32]byte

	// branch
	children    [16][32]byte
	hasChild    [16]bool
}

// emptyHash is the root hash of a trie with no entries: SHA-256 of the
// empty byte string, matching the convention used for an empty extrinsics
// root (types.ExtrinsicsRoot(nil)).
var emptyHash = crypto.Sum256(nil)

func newLeaf(path, value []byte) *node {
	return &node{kind: kindLeaf, path: path, value: value, hasValue: true}
}

func newExtension(path []byte, child [32]byte) *node {
	return &node{kind: kindExtension, path: path, child: child}
}

func newBranch() *node {
	return &node{kind: kindBranch}
}

// encode returns the canonical byte encoding hashed to produce the node's
// content address.
func (n *node) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(n.kind))
	switch n.kind {
	case kindLeaf:
		writeBytes(&buf, n.path)
		writeBytes(&buf, n.value)
	case kindExtension:
		writeBytes(&buf, n.path)
		buf.Write(n.child[:])
	case kindBranch:
		for i := 0; i < 16; i++ {
			if n.hasChild[i] {
				buf.WriteByte(1)
				buf.Write(n.children[i][:])
			} else {
				buf.WriteByte(0)
			}
		}
		if n.hasValue {
			buf.WriteByte(1)
			writeBytes(&buf, n.value)
		} else {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes()
}

// hash returns the content address of the node: SHA-256 of its encoding.
func (n *node) hash() [32]byte {
	return crypto.Sum256(n.encode())
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf.Write(l[:])
	buf.Write(b)
}

func readBytes(b []byte, pos int) ([]byte, int, error) {
	if len(b)-pos < 4 {
		return nil, 0, errCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[pos:]))
	pos += 4
	if len(b)-pos < n {
		return nil, 0, errCorrupt
	}
	return b[pos : pos+n], pos + n, nil
}

// decodeNode parses the encoding produced by node.encode.
func decodeNode(b []byte) (*node, error) {
	if len(b) < 1 {
		return nil, errCorrupt
	}
	n := &node{kind: kind(b[0])}
	pos := 1
	switch n.kind {
	case kindLeaf:
		path, next, err := readBytes(b, pos)
		if err != nil {
			return nil, err
		}
		value, next2, err := readBytes(b, next)
		if err != nil {
			return nil, err
		}
		_ = next2
		n.path = path
		n.value = value
		n.hasValue = true
	case kindExtension:
		path, next, err := readBytes(b, pos)
		if err != nil {
			return nil, err
		}
		if len(b)-next < 32 {
			return nil, errCorrupt
		}
		copy(n.child[:], b[next:next+32])
		n.path = path
	case kindBranch:
		for i := 0; i < 16; i++ {
			if len(b)-pos < 1 {
				return nil, errCorrupt
			}
			present := b[pos]
			pos++
			if present == 1 {
				if len(b)-pos < 32 {
					return nil, errCorrupt
				}
				copy(n.children[i][:], b[pos:pos+32])
				n.hasChild[i] = true
				pos += 32
			}
		}
		if len(b)-pos < 1 {
			return nil, errCorrupt
		}
		present := b[pos]
		pos++
		if present == 1 {
			value, _, err := readBytes(b, pos)
			if err != nil {
				return nil, err
			}
			n.value = value
			n.hasValue = true
		}
	default:
		return nil, errCorrupt
	}
	return n, nil
}
