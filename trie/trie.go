package trie

import "bytes"

// KVStore is the minimal persistence capability the trie needs: get/put by
// content hash, flushed as a batch. storage.DB and the in-memory test DB do
// not satisfy it directly (their NewBatch returns storage.Batch); the state
// store's trieDB and testutil's AsTrieStore adapt them.
type KVStore interface {
	Get(key []byte) ([]byte, error)
	NewBatch() KVBatch
}

// KVBatch is an atomic write buffer, matching storage.Batch's shape.
type KVBatch interface {
	Set(key, value []byte)
	Write() error
}

const keyPrefix = "trie:"

func nodeKey(h [32]byte) []byte {
	return append([]byte(keyPrefix), h[:]...)
}

// ref is an optional node hash: the zero value (ok=false) denotes the Empty
// node kind from spec.md §3, which has no on-disk representation.
type ref struct {
	hash [32]byte
	ok   bool
}

// Trie is an authenticated Merkle-Patricia trie over db. It is not safe for
// concurrent use; callers serialize access (the state store hands each
// caller its own Trie from OpenWorkingCopy).
type Trie struct {
	db    KVStore
	root  ref
	batch KVBatch
}

// New opens a trie at the given root. Pass a zero Hash for a fresh trie.
func New(db KVStore, root [32]byte) *Trie {
	t := &Trie{db: db}
	if root != emptyHash && root != ([32]byte{}) {
		t.root = ref{hash: root, ok: true}
	}
	return t
}

// RootHash returns the current root, or the canonical empty-trie hash when
// no entries have been inserted.
func (t *Trie) RootHash() [32]byte {
	if !t.root.ok {
		return emptyHash
	}
	return t.root.hash
}

func (t *Trie) load(h [32]byte) (*node, error) {
	raw, err := t.db.Get(nodeKey(h))
	if err != nil {
		return nil, err
	}
	return decodeNode(raw)
}

func (t *Trie) stage(n *node) [32]byte {
	h := n.hash()
	if t.batch == nil {
		t.batch = t.db.NewBatch()
	}
	t.batch.Set(nodeKey(h), n.encode())
	return h
}

// flush writes every node staged during the current top-level mutation,
// so a recovered root is always reachable (spec.md §4.2).
func (t *Trie) flush() error {
	if t.batch == nil {
		return nil
	}
	b := t.batch
	t.batch = nil
	return b.Write()
}

// Get returns the value stored at key, or ErrNotFound.
func (t *Trie) Get(key []byte) ([]byte, error) {
	path := toNibbles(key)
	cur := t.root
	for {
		if !cur.ok {
			return nil, ErrNotFound
		}
		n, err := t.load(cur.hash)
		if err != nil {
			return nil, err
		}
		switch n.kind {
		case kindLeaf:
			if bytes.Equal(n.path, path) {
				return n.value, nil
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
					return n.value, nil
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

// Insert adds or overwrites key -> value and flushes the resulting nodes.
func (t *Trie) Insert(key, value []byte) error {
	path := toNibbles(key)
	newRoot, err := t.insert(t.root, path, value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return t.flush()
}

func (t *Trie) insert(cur ref, path, value []byte) (ref, error) {
	if !cur.ok {
		h := t.stage(newLeaf(cloneNibbles(path), value))
		return ref{hash: h, ok: true}, nil
	}
	n, err := t.load(cur.hash)
	if err != nil {
		return ref{}, err
	}
	switch n.kind {
	case kindLeaf:
		return t.insertIntoLeaf(n, path, value)
	case kindExtension:
		return t.insertIntoExtension(n, path, value)
	case kindBranch:
		return t.insertIntoBranch(n, path, value)
	}
	return ref{}, errCorrupt
}

func (t *Trie) insertIntoLeaf(n *node, path, value []byte) (ref, error) {
	if bytes.Equal(n.path, path) {
		h := t.stage(newLeaf(cloneNibbles(path), value))
		return ref{hash: h, ok: true}, nil
	}
	cp := commonPrefixLen(n.path, path)
	branch := newBranch()
	if len(n.path) == cp {
		branch.value, branch.hasValue = n.value, true
	} else {
		nb := n.path[cp]
		h := t.stage(newLeaf(cloneNibbles(n.path[cp+1:]), n.value))
		branch.children[nb], branch.hasChild[nb] = [32]byte(h), true
	}
	if len(path) == cp {
		branch.value, branch.hasValue = value, true
	} else {
		nb := path[cp]
		h := t.stage(newLeaf(cloneNibbles(path[cp+1:]), value))
		branch.children[nb], branch.hasChild[nb] = [32]byte(h), true
	}
	branchHash := t.stage(branch)
	if cp == 0 {
		return ref{hash: branchHash, ok: true}, nil
	}
	extHash := t.stage(newExtension(cloneNibbles(path[:cp]), branchHash))
	return ref{hash: extHash, ok: true}, nil
}

func (t *Trie) insertIntoExtension(n *node, path, value []byte) (ref, error) {
	cp := commonPrefixLen(n.path, path)
	if cp == len(n.path) {
		newChild, err := t.insert(ref{hash: n.child, ok: true}, path[cp:], value)
		if err != nil {
			return ref{}, err
		}
		h := t.stage(newExtension(cloneNibbles(n.path), newChild.hash))
		return ref{hash: h, ok: true}, nil
	}

	branch := newBranch()
	existingNibble := n.path[cp]
	existingRemainder := n.path[cp+1:]
	var existingHash [32]byte
	if len(existingRemainder) == 0 {
		existingHash = n.child
	} else {
		existingHash = t.stage(newExtension(cloneNibbles(existingRemainder), n.child))
	}
	branch.children[existingNibble], branch.hasChild[existingNibble] = existingHash, true

	if cp == len(path) {
		branch.value, branch.hasValue = value, true
	} else {
		nb := path[cp]
		h := t.stage(newLeaf(cloneNibbles(path[cp+1:]), value))
		branch.children[nb], branch.hasChild[nb] = [32]byte(h), true
	}
	branchHash := t.stage(branch)
	if cp == 0 {
		return ref{hash: branchHash, ok: true}, nil
	}
	extHash := t.stage(newExtension(cloneNibbles(path[:cp]), branchHash))
	return ref{hash: extHash, ok: true}, nil
}

func (t *Trie) insertIntoBranch(n *node, path, value []byte) (ref, error) {
	branch := cloneBranch(n)
	if len(path) == 0 {
		branch.value, branch.hasValue = value, true
		h := t.stage(branch)
		return ref{hash: h, ok: true}, nil
	}
	nb := path[0]
	var childRef ref
	if n.hasChild[nb] {
		childRef = ref{hash: n.children[nb], ok: true}
	}
	newChild, err := t.insert(childRef, path[1:], value)
	if err != nil {
		return ref{}, err
	}
	branch.children[nb], branch.hasChild[nb] = newChild.hash, true
	h := t.stage(branch)
	return ref{hash: h, ok: true}, nil
}

func cloneBranch(n *node) *node {
	b := newBranch()
	b.children = n.children
	b.hasChild = n.hasChild
	b.value = n.value
	b.hasValue = n.hasValue
	return b
}

// Delete removes key, collapsing branches down to leaves/extensions when
// only one child remains (spec.md §4.2, Open Question 2: full collapse).
// It is a no-op error (ErrNotFound) when the key is absent.
func (t *Trie) Delete(key []byte) error {
	path := toNibbles(key)
	newRoot, err := t.delete(t.root, path)
	if err != nil {
		return err
	}
	t.root = newRoot
	return t.flush()
}

func (t *Trie) delete(cur ref, path []byte) (ref, error) {
	if !cur.ok {
		return ref{}, ErrNotFound
	}
	n, err := t.load(cur.hash)
	if err != nil {
		return ref{}, err
	}
	switch n.kind {
	case kindLeaf:
		if !bytes.Equal(n.path, path) {
			return ref{}, ErrNotFound
		}
		return ref{}, nil
	case kindExtension:
		if len(path) < len(n.path) || !bytes.Equal(n.path, path[:len(n.path)]) {
			return ref{}, ErrNotFound
		}
		newChild, err := t.delete(ref{hash: n.child, ok: true}, path[len(n.path):])
		if err != nil {
			return ref{}, err
		}
		if !newChild.ok {
			return ref{}, nil
		}
		childNode, err := t.load(newChild.hash)
		if err != nil {
			return ref{}, err
		}
		switch childNode.kind {
		case kindBranch:
			h := t.stage(newExtension(cloneNibbles(n.path), newChild.hash))
			return ref{hash: h, ok: true}, nil
		case kindLeaf:
			merged := append(cloneNibbles(n.path), childNode.path...)
			h := t.stage(newLeaf(merged, childNode.value))
			return ref{hash: h, ok: true}, nil
		case kindExtension:
			merged := append(cloneNibbles(n.path), childNode.path...)
			h := t.stage(newExtension(merged, childNode.child))
			return ref{hash: h, ok: true}, nil
		}
		return ref{}, errCorrupt
	case kindBranch:
		branch := cloneBranch(n)
		if len(path) == 0 {
			if !branch.hasValue {
				return ref{}, ErrNotFound
			}
			branch.value, branch.hasValue = nil, false
			return t.collapseBranch(branch)
		}
		nb := path[0]
		if !branch.hasChild[nb] {
			return ref{}, ErrNotFound
		}
		newChild, err := t.delete(ref{hash: branch.children[nb], ok: true}, path[1:])
		if err != nil {
			return ref{}, err
		}
		if newChild.ok {
			branch.children[nb] = newChild.hash
		} else {
			branch.children[nb] = [32]byte{}
			branch.hasChild[nb] = false
		}
		return t.collapseBranch(branch)
	}
	return ref{}, errCorrupt
}

func (t *Trie) collapseBranch(branch *node) (ref, error) {
	childCount := 0
	var onlyNibble byte
	var onlyHash [32]byte
	for i := 0; i < 16; i++ {
		if branch.hasChild[i] {
			childCount++
			onlyNibble = byte(i)
			onlyHash = branch.children[i]
		}
	}

	if childCount == 0 {
		if branch.hasValue {
			h := t.stage(newLeaf(nil, branch.value))
			return ref{hash: h, ok: true}, nil
		}
		return ref{}, nil
	}

	if childCount == 1 && !branch.hasValue {
		childNode, err := t.load(onlyHash)
		if err != nil {
			return ref{}, err
		}
		switch childNode.kind {
		case kindLeaf:
			merged := append([]byte{onlyNibble}, childNode.path...)
			h := t.stage(newLeaf(merged, childNode.value))
			return ref{hash: h, ok: true}, nil
		case kindExtension:
			merged := append([]byte{onlyNibble}, childNode.path...)
			h := t.stage(newExtension(merged, childNode.child))
			return ref{hash: h, ok: true}, nil
		case kindBranch:
			h := t.stage(newExtension([]byte{onlyNibble}, onlyHash))
			return ref{hash: h, ok: true}, nil
		}
		return ref{}, errCorrupt
	}

	h := t.stage(branch)
	return ref{hash: h, ok: true}, nil
}
