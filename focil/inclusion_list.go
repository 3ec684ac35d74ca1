// inclusion_list.go builds, signs, and verifies inclusion lists. A list
// commits to its transactions through a Merkle root, so verifiers can check
// both whole lists and single-item membership, and the proposer's BLS
// signature binds the commitment to its author and height.
package focil

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bpimesh/bpimesh/core/types"
	"github.com/bpimesh/bpimesh/crypto"
)

// Inclusion list errors.
var (
	ErrListTooLarge = errors.New("focil: inclusion list exceeds maximum size")
	ErrNilSigner    = errors.New("focil: no signer configured")
	ErrTxNotInList  = errors.New("focil: transaction not in list")
)

// ListBuilder assembles signed inclusion lists from a proposer's pending
// obligations.
type ListBuilder struct {
	registry *ObligationRegistry
	signer   crypto.Signer
}

// NewListBuilder creates a builder over the registry. signer may be nil for
// read-only nodes; Build then fails.
func NewListBuilder(registry *ObligationRegistry, signer crypto.Signer) *ListBuilder {
	return &ListBuilder{registry: registry, signer: signer}
}

// Build assembles the proposer's inclusion list for the given height. It
// covers every pending obligation due within the enforcement window,
// earliest deadline first, capped at the configured list size.
func (b *ListBuilder) Build(proposer types.NodeID, height uint64) (*InclusionList, error) {
	cfg := b.registry.Config()
	horizon := height + cfg.EnforcementWindowBlocks

	var txs []types.Hash
	for _, ob := range b.registry.ByProposer(proposer) {
		if ob.Status != StatusPending || ob.DeadlineBlock > horizon {
			continue
		}
		txs = append(txs, ob.TxHash)
		if len(txs) == cfg.MaxListSize {
			break
		}
	}
	return b.Create(proposer, height, txs)
}

// Create assembles and signs a list over explicitly chosen item hashes.
// Unlike Build it never trims: a set larger than the configured list size
// returns ErrListTooLarge.
func (b *ListBuilder) Create(proposer types.NodeID, height uint64, txs []types.Hash) (*InclusionList, error) {
	if b.signer == nil {
		return nil, ErrNilSigner
	}
	if max := b.registry.Config().MaxListSize; max > 0 && len(txs) > max {
		return nil, ErrListTooLarge
	}

	list := &InclusionList{
		Proposer:     proposer,
		Height:       height,
		Transactions: append([]types.Hash(nil), txs...),
		IncRoot:      ListRoot(txs),
	}

	sig, err := b.signer.Sign(listSigningPayload(list))
	if err != nil {
		return nil, fmt.Errorf("focil: sign inclusion list: %w", err)
	}
	list.Signature = sig
	return list, nil
}

// ListRoot computes the Merkle commitment over the ordered transactions.
func ListRoot(txs []types.Hash) types.Hash {
	leaves := make([][]byte, len(txs))
	for i := range txs {
		leaves[i] = txs[i].Bytes()
	}
	return crypto.MerkleRoot(crypto.DomainInclusionListRoot, leaves)
}

// listSigningPayload is the byte string a proposer signs: a domain-separated
// hash binding author, height, and commitment.
func listSigningPayload(list *InclusionList) []byte {
	var height [8]byte
	binary.LittleEndian.PutUint64(height[:], list.Height)
	digest := crypto.DomainHashConcat(crypto.DomainInclusionListRoot,
		[]byte(list.Proposer), height[:], list.IncRoot[:])
	return digest[:]
}

// VerifyListStructure checks a published list against the proposer's BLS
// public key: size bound, root recomputation, and signature. It does not
// consult the obligation store; EnforcementEngine.VerifyList is the full
// verification contract. A false return means the list must be treated as
// an invalid proposal.
func VerifyListStructure(list *InclusionList, proposerPubkey []byte, maxListSize int) bool {
	if list == nil {
		return false
	}
	if maxListSize > 0 && len(list.Transactions) > maxListSize {
		return false
	}
	if ListRoot(list.Transactions) != list.IncRoot {
		return false
	}
	return crypto.BlsVerify(proposerPubkey, listSigningPayload(list), list.Signature)
}

// ProveMembership builds a Merkle membership proof for one transaction in
// the list.
func ProveMembership(list *InclusionList, txHash types.Hash) (*MembershipProof, error) {
	index := -1
	leaves := make([][]byte, len(list.Transactions))
	for i := range list.Transactions {
		leaves[i] = list.Transactions[i].Bytes()
		if list.Transactions[i] == txHash {
			index = i
		}
	}
	if index < 0 {
		return nil, ErrTxNotInList
	}
	proof, err := crypto.MerkleProve(crypto.DomainInclusionListRoot, leaves, index)
	if err != nil {
		return nil, err
	}
	return &MembershipProof{TxHash: txHash, Proof: proof}, nil
}

// VerifyMembership checks a membership proof against a list commitment.
func VerifyMembership(incRoot types.Hash, proof *MembershipProof) bool {
	if proof == nil || proof.Proof == nil {
		return false
	}
	return crypto.MerkleVerify(crypto.DomainInclusionListRoot, incRoot, proof.TxHash.Bytes(), proof.Proof)
}
