package trie

import "bytes"

// Prove returns the sequence of node encodings on the path from the root to
// key, in root-first order. A verifier reconstructs and rehashes each to
// validate against a committed root (spec.md §4.2).
func (t *Trie) Prove(key []byte) ([][]byte, error) {
	path := toNibbles(key)
	cur := t.root
	var proof [][]byte
	for {
		if !cur.ok {
			return nil, ErrNotFound
		}
		n, err := t.load(cur.hash)
		if err != nil {
			return nil, err
		}
		proof = append(proof, n.encode())
		switch n.kind {
		case kindLeaf:
			if bytes.Equal(n.path, path) {
				return proof, nil
			}
			return nil, ErrNotFound
		case kindExtension:
			if len(path) < len(n.path) || !bytes.Equal(n.path, path[:len(n.path)]) {
				return nil, ErrNotFound
			}
			path = path[len(n.path):]
			cur = ref{hash: n.child, ok: true}
		case kindBranch:
			if len(path) == 0 {
				if n.hasValue {
					return proof, nil
				}
				return nil, ErrNotFound
			}
			nb := path[0]
			if !n.hasChild[nb] {
				return nil, ErrNotFound
			}
			path = path[1:]
			cur = ref{hash: n.children[nb], ok: true}
		}
	}
}

// Verify checks that proof is a valid inclusion proof of key -> value under
// root, without touching any store. Returns false for any malformed,
// mismatched, or wrong-value proof.
func Verify(root [32]byte, key, value []byte, proof [][]byte) bool {
	if len(proof) == 0 {
		return false
	}
	path := toNibbles(key)
	wantHash := root

	for i, enc := range proof {
		n, err := decodeNode(enc)
		if err != nil {
			return false
		}
		h := n.hash()
		if h != wantHash {
			return false
		}

		switch n.kind {
		case kindLeaf:
			if !bytes.Equal(n.path, path) {
				return false
			}
			if i != len(proof)-1 {
				return false
			}
			return bytes.Equal(n.value, value)
		case kindExtension:
			if len(path) < len(n.path) || !bytes.Equal(n.path, path[:len(n.path)]) {
				return false
			}
			path = path[len(n.path):]
			wantHash = n.child
		case kindBranch:
			if len(path) == 0 {
				if !n.hasValue || i != len(proof)-1 {
					return false
				}
				return bytes.Equal(n.value, value)
			}
			nb := path[0]
			if !n.hasChild[nb] {
				return false
			}
			path = path[1:]
			wantHash = n.children[nb]
		}
	}
	return false
}
