package trie

import "errors"

var (
	errCorrupt = errors.New("trie: corrupt node encoding")
	errNotFound = errors.New("trie: key not found")
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errNotFound
