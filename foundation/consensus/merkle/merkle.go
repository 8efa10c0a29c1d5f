// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides the merkle tree whose root commits a block
// header to its transactions. Interior nodes combine with double-SHA256;
// an odd level duplicates its last node.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Hashable represents the behavior concrete data must exhibit to be used
// in the merkle tree.
type Hashable[T any] interface {
	Hash() wire.Hash
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree over data of some type T that exhibits the
// behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	Root   *Node[T]
	Leafs  []*Node[T]
	rootID wire.Hash
}

// NewTree constructs a merkle tree from the specified values.
func NewTree[T Hashable[T]](values []T) (*Tree[T], error) {
	var t Tree[T]
	if err := t.Generate(values); err != nil {
		return nil, err
	}
	return &t, nil
}

// Generate constructs the leafs and interior nodes of the tree. If the
// tree was generated previously, it is rebuilt from scratch.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return errors.New("cannot construct tree with no content")
	}

	var leafs []*Node[T]
	for _, value := range values {
		leafs = append(leafs, &Node[T]{
			ID:    value.Hash(),
			Value: value,
			leaf:  true,
		})
	}

	if len(leafs)%2 == 1 {
		last := leafs[len(leafs)-1]
		leafs = append(leafs, &Node[T]{
			ID:    last.ID,
			Value: last.Value,
			leaf:  true,
			dup:   true,
		})
	}

	root := buildIntermediate(leafs)

	t.Root = root
	t.Leafs = leafs
	t.rootID = root.ID

	return nil
}

// RootHash returns the merkle root carried in block headers.
func (t *Tree[T]) RootHash() wire.Hash {
	return t.rootID
}

// Values returns the unique values stored in the tree, dropping the
// duplicate added for an odd leaf count.
func (t *Tree[T]) Values() []T {
	var values []T
	for _, node := range t.Leafs {
		if node.dup {
			continue
		}
		values = append(values, node.Value)
	}
	return values
}

// Verify recomputes the hashes at each level of the tree and reports
// whether the stored root still matches.
func (t *Tree[T]) Verify() error {
	if !bytes.Equal(t.Root.recompute().Bytes(), t.rootID.Bytes()) {
		return errors.New("merkle root invalid")
	}
	return nil
}

// Proof returns the sibling hashes and concatenation order that prove the
// specified value is in the tree. Order 0 means the proof hash is
// concatenated first, order 1 second.
func (t *Tree[T]) Proof(data T) ([]wire.Hash, []int, error) {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		var proof []wire.Hash
		var order []int

		parent := node.Parent
		for parent != nil {
			if parent.Left.ID == node.ID {
				proof = append(proof, parent.Right.ID)
				order = append(order, 1)
			} else {
				proof = append(proof, parent.Left.ID)
				order = append(order, 0)
			}
			node = parent
			parent = parent.Parent
		}

		return proof, order, nil
	}

	return nil, nil, errors.New("unable to find data in tree")
}

// =============================================================================

// Node represents a node, root, or leaf in the tree.
type Node[T Hashable[T]] struct {
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	ID     wire.Hash
	Value  T
	leaf   bool
	dup    bool
}

// recompute walks down to the leaves recalculating each level's hash.
func (n *Node[T]) recompute() wire.Hash {
	if n.leaf {
		return n.Value.Hash()
	}
	return combine(n.Left.recompute(), n.Right.recompute())
}

// =============================================================================

// combine produces the parent hash of two children.
func combine(left, right wire.Hash) wire.Hash {
	first := sha256.Sum256(append(left.Bytes(), right.Bytes()...))
	second := sha256.Sum256(first[:])

	var h wire.Hash
	copy(h[:], second[:])
	return h
}

// buildIntermediate constructs the interior levels above a list of nodes
// and returns the resulting root.
func buildIntermediate[T Hashable[T]](nl []*Node[T]) *Node[T] {
	var nodes []*Node[T]

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		if i+1 == len(nl) {
			right = i
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			ID:    combine(nl[left].ID, nl[right].ID),
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n

		if len(nl) == 2 {
			return &n
		}
	}

	return buildIntermediate(nodes)
}
