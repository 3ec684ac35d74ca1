// Merkle commitments for inclusion lists. The tree is a binary Merkle tree
// with duplicate-last padding and domain-separated leaf/node hashing, so a
// leaf can never be reinterpreted as an interior node. Per-leaf proofs let a
// verifier confirm a single obligation's membership in O(log n) without
// seeing the whole list.
package crypto

import (
	"bytes"
	"errors"

	"github.com/bpimesh/bpimesh/core/types"
)

// Leaf/node prefixes under the Merkle domain.
const (
	merkleLeafPrefix byte = 0x00
	merkleNodePrefix byte = 0x01
)

// Merkle errors.
var (
	ErrMerkleNoLeaves   = errors.New("merkle: no leaves")
	ErrMerkleIndexRange = errors.New("merkle: leaf index out of range")
)

// MerkleProof is an audit path from one leaf to the root.
type MerkleProof struct {
	// LeafIndex is the position of the proven leaf.
	LeafIndex int

	// Siblings are the sibling hashes from leaf level to the root.
	Siblings []types.Hash
}

// MerkleRoot computes the domain-separated root over the ordered leaves.
// An empty leaf set hashes to the domain-separated empty commitment.
func MerkleRoot(domain byte, leaves [][]byte) types.Hash {
	if len(leaves) == 0 {
		return DomainHash(domain, nil)
	}
	level := hashLeaves(domain, leaves)
	for len(level) > 1 {
		level = hashLevel(domain, level)
	}
	return level[0]
}

// MerkleProve builds the audit path for the leaf at index.
func MerkleProve(domain byte, leaves [][]byte, index int) (*MerkleProof, error) {
	if len(leaves) == 0 {
		return nil, ErrMerkleNoLeaves
	}
	if index < 0 || index >= len(leaves) {
		return nil, ErrMerkleIndexRange
	}

	proof := &MerkleProof{LeafIndex: index}
	level := hashLeaves(domain, leaves)
	pos := index

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		sibling := pos ^ 1
		proof.Siblings = append(proof.Siblings, level[sibling])
		level = hashLevel(domain, level)
		pos /= 2
	}
	return proof, nil
}

// MerkleVerify checks that leaf sits at proof.LeafIndex under root.
func MerkleVerify(domain byte, root types.Hash, leaf []byte, proof *MerkleProof) bool {
	if proof == nil || proof.LeafIndex < 0 {
		return false
	}
	h := hashLeaf(domain, leaf)
	pos := proof.LeafIndex
	for _, sibling := range proof.Siblings {
		if pos%2 == 0 {
			h = hashNode(domain, h, sibling)
		} else {
			h = hashNode(domain, sibling, h)
		}
		pos /= 2
	}
	return bytes.Equal(h[:], root[:])
}

func hashLeaf(domain byte, leaf []byte) types.Hash {
	return DomainHashConcat(domain, []byte{merkleLeafPrefix}, leaf)
}

func hashNode(domain byte, left, right types.Hash) types.Hash {
	return DomainHashConcat(domain, []byte{merkleNodePrefix}, left[:], right[:])
}

func hashLeaves(domain byte, leaves [][]byte) []types.Hash {
	out := make([]types.Hash, len(leaves))
	for i, leaf := range leaves {
		out[i] = hashLeaf(domain, leaf)
	}
	return out
}

func hashLevel(domain byte, level []types.Hash) []types.Hash {
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	next := make([]types.Hash, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		next = append(next, hashNode(domain, level[i], level[i+1]))
	}
	return next
}
