// Package merkle implements the labeled Merkle tree (hash tree) that backs
// every certified response: a trie keyed by byte-string labels, hashed with
// domain-separated node encodings, and revealable as a pruned witness that a
// client can recombine with a certificate's signed root hash (spec.md §4.4).
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Domain separators for the four hash-tree node kinds hashed from their
// contents (a pruned node carries its hash as-is), following
// the platform's hash-tree construction (the same empty/fork/labeled/leaf/
// pruned node family the certificate's witness format is built from).
var (
	sepEmpty   = []byte("ic-hashtree-empty")
	sepFork    = []byte("ic-hashtree-fork")
	sepLabeled = []byte("ic-hashtree-labeled")
	sepLeaf    = []byte("ic-hashtree-leaf")
)

// ErrNotFound is returned by Reveal when no leaf exists at path.
var ErrNotFound = errors.New("merkle: no leaf at path")

func emptyHash() [32]byte { return sha256.Sum256(sepEmpty) }

func forkHash(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write(sepFork)
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func labeledHash(label []byte, sub [32]byte) [32]byte {
	h := sha256.New()
	h.Write(sepLabeled)
	h.Write(label)
	h.Write(sub[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func leafHash(value []byte) [32]byte {
	h := sha256.New()
	h.Write(sepLeaf)
	h.Write(value)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// trie is one node of the materialized tree: either an interior node with
// labeled children, or a leaf holding a value. A node never holds both.
type trie struct {
	children map[string]*trie
	value    []byte
	hasValue bool
}

func newTrie() *trie { return &trie{children: make(map[string]*trie)} }

// Tree is the concurrency-safe labeled Merkle tree a node maintains across
// certify/remove calls, mutated under Put/Delete and summarized by RootHash.
type Tree struct {
	mu   sync.RWMutex
	root *trie
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{root: newTrie()}
}

// Put inserts value as the leaf at path, creating any missing intermediate
// labeled nodes. Re-putting an existing path overwrites its value (spec.md
// §8's idempotence-of-overwrite property).
func (t *Tree) Put(path []string, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.root
	for _, label := range path {
		child, ok := n.children[label]
		if !ok {
			child = newTrie()
			n.children[label] = child
		}
		n = child
	}
	n.value = append([]byte(nil), value...)
	n.hasValue = true
}

// Delete removes the leaf at path and prunes any intermediate node left with
// no children and no value as a result.
func (t *Tree) Delete(path []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	deleteAt(t.root, path)
}

func deleteAt(n *trie, path []string) bool {
	if len(path) == 0 {
		n.value = nil
		n.hasValue = false
		return len(n.children) == 0
	}
	label := path[0]
	child, ok := n.children[label]
	if !ok {
		return false
	}
	if deleteAt(child, path[1:]) {
		delete(n.children, label)
	}
	return len(n.children) == 0 && !n.hasValue
}

// RootHash returns the current root hash of the whole tree.
func (t *Tree) RootHash() [32]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return hashOf(t.root)
}

func hashOf(n *trie) [32]byte {
	if n.hasValue {
		return leafHash(n.value)
	}
	if len(n.children) == 0 {
		return emptyHash()
	}
	labels := sortedLabels(n.children)
	hashes := make([][32]byte, len(labels))
	for i, label := range labels {
		hashes[i] = labeledHash([]byte(label), hashOf(n.children[label]))
	}
	return foldFork(hashes)
}

func sortedLabels(children map[string]*trie) []string {
	labels := make([]string, 0, len(children))
	for l := range children {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// foldFork combines a sorted sequence of sibling hashes into a single root
// hash via balanced pairwise forking, matching the construction hashOf and
// buildWitness must agree on for a revealed witness to hash identically to
// the full tree.
func foldFork(hashes [][32]byte) [32]byte {
	if len(hashes) == 0 {
		return emptyHash()
	}
	for len(hashes) > 1 {
		next := make([][32]byte, 0, (len(hashes)+1)/2)
		for i := 0; i < len(hashes); i += 2 {
			if i+1 < len(hashes) {
				next = append(next, forkHash(hashes[i], hashes[i+1]))
			} else {
				next = append(next, hashes[i])
			}
		}
		hashes = next
	}
	return hashes[0]
}

// Witness is a pruned view of the tree along one or more revealed paths: it
// hashes to exactly the same root as the full tree (see Hash), but every
// subtree not on a revealed path is collapsed to its hash alone.
type Witness struct {
	kind  witnessKind
	label []byte
	left  *Witness
	right *Witness
	value []byte
	phash [32]byte
}

type witnessKind uint8

const (
	witnessEmpty witnessKind = iota
	witnessFork
	witnessLabeled
	witnessLeaf
	witnessPruned
)

// Hash recomputes the hash this witness node commits to, which must equal
// the corresponding hashOf value in the full tree it was pruned from.
func (w *Witness) Hash() [32]byte {
	switch w.kind {
	case witnessEmpty:
		return emptyHash()
	case witnessFork:
		return forkHash(w.left.Hash(), w.right.Hash())
	case witnessLabeled:
		return labeledHash(w.label, w.left.Hash())
	case witnessLeaf:
		return leafHash(w.value)
	case witnessPruned:
		return w.phash
	default:
		panic("merkle: unknown witness kind")
	}
}

// Reveal builds a witness proving the leaf at path is present, pruning every
// sibling subtree to its bare hash. If no leaf exists at path it returns
// ErrNotFound and no witness.
// revealValue controls whether the leaf itself is disclosed in the witness
// (true) or left pruned, for callers that transmit the body separately and
// only need the witness to bind the path to the tree's root.
func (t *Tree) Reveal(path []string, revealValue bool) (*Witness, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, found := buildWitness(t.root, path, revealValue)
	if !found {
		return nil, ErrNotFound
	}
	return w, nil
}

// Reveals builds a single witness covering every path in paths at once,
// pruning everything not on any of them. All paths must share the tree
// rooted at the same Tree; paths that share a prefix share witness nodes.
func (t *Tree) Reveals(paths [][]string, revealValue bool) *Witness {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return buildWitnessMulti(t.root, paths, revealValue)
}

// buildWitness prunes every child not equal to path[0] and recurses into the
// matching child, reporting whether the full path resolved to a leaf.
func buildWitness(n *trie, path []string, revealValue bool) (*Witness, bool) {
	if len(path) == 0 {
		if !n.hasValue {
			return pruneFull(n), false
		}
		if revealValue {
			return &Witness{kind: witnessLeaf, value: n.value}, true
		}
		return &Witness{kind: witnessPruned, phash: leafHash(n.value)}, true
	}
	label := path[0]
	labels := sortedLabels(n.children)
	items := make([]*Witness, len(labels))
	found := false
	var ok bool
	for i, l := range labels {
		child := n.children[l]
		if l == label {
			var childWitness *Witness
			childWitness, ok = buildWitness(child, path[1:], revealValue)
			found = found || ok
			items[i] = &Witness{kind: witnessLabeled, label: []byte(l), left: childWitness}
		} else {
			items[i] = &Witness{kind: witnessLabeled, label: []byte(l), left: pruneFull(child)}
		}
	}
	return foldWitnessFork(items), found
}

// buildWitnessMulti is buildWitness generalized to a set of paths sharing a
// common prefix tree: at each level, every label appearing as the next
// segment of at least one remaining path is recursed into; every other
// label is pruned to its bare hash.
func buildWitnessMulti(n *trie, paths [][]string, revealValue bool) *Witness {
	if len(paths) == 0 {
		return pruneFull(n)
	}
	allEmpty := true
	for _, p := range paths {
		if len(p) != 0 {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		if !n.hasValue {
			return pruneFull(n)
		}
		if revealValue {
			return &Witness{kind: witnessLeaf, value: n.value}
		}
		return &Witness{kind: witnessPruned, phash: leafHash(n.value)}
	}

	byLabel := make(map[string][][]string)
	for _, p := range paths {
		if len(p) == 0 {
			continue
		}
		byLabel[p[0]] = append(byLabel[p[0]], p[1:])
	}

	labels := sortedLabels(n.children)
	items := make([]*Witness, len(labels))
	for i, l := range labels {
		child := n.children[l]
		if rest, ok := byLabel[l]; ok {
			items[i] = &Witness{kind: witnessLabeled, label: []byte(l), left: buildWitnessMulti(child, rest, revealValue)}
		} else {
			items[i] = &Witness{kind: witnessLabeled, label: []byte(l), left: pruneFull(child)}
		}
	}
	return foldWitnessFork(items)
}

// pruneFull collapses an entire subtree to a single Pruned node carrying its
// hash, with no further structure revealed.
func pruneFull(n *trie) *Witness {
	return &Witness{kind: witnessPruned, phash: hashOf(n)}
}

// foldWitnessFork mirrors foldFork's pairwise balancing, but over witness
// nodes instead of bare hashes, so the resulting structure hashes (via
// Witness.Hash) to the same value foldFork would have produced.
func foldWitnessFork(items []*Witness) *Witness {
	if len(items) == 0 {
		return &Witness{kind: witnessEmpty}
	}
	for len(items) > 1 {
		next := make([]*Witness, 0, (len(items)+1)/2)
		for i := 0; i < len(items); i += 2 {
			if i+1 < len(items) {
				next = append(next, &Witness{kind: witnessFork, left: items[i], right: items[i+1]})
			} else {
				next = append(next, items[i])
			}
		}
		items = next
	}
	return items[0]
}

// EncodeWitness CBOR-encodes w in the platform's hash-tree wire format: a
// tagged array per node kind ([0]=empty, [1,l,r]=fork, [2,label,sub]=labeled,
// [3,value]=leaf, [4,hash]=pruned).
func EncodeWitness(w *Witness) ([]byte, error) {
	return cbor.Marshal(encodeNode(w))
}

func encodeNode(w *Witness) interface{} {
	switch w.kind {
	case witnessEmpty:
		return []interface{}{0}
	case witnessFork:
		return []interface{}{1, encodeNode(w.left), encodeNode(w.right)}
	case witnessLabeled:
		return []interface{}{2, append([]byte(nil), w.label...), encodeNode(w.left)}
	case witnessLeaf:
		return []interface{}{3, append([]byte(nil), w.value...)}
	case witnessPruned:
		return []interface{}{4, append([]byte(nil), w.phash[:]...)}
	default:
		panic("merkle: unknown witness kind")
	}
}

// Equal reports whether two 32-byte hashes are equal (constant-time is not
// required here: hashes are compared against a locally-recomputed root, not
// against attacker-supplied secrets).
func Equal(a, b [32]byte) bool {
	return bytes.Equal(a[:], b[:])
}
