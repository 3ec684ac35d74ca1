// Package focil implements forced-inclusion-list obligations and their
// enforcement.
//
// Proposers accumulate inclusion obligations for pending transactions. Each
// obligation carries a deadline block; the proposer must publish an
// inclusion list covering its due obligations before the deadline passes.
// The enforcement engine audits published lists against the obligation
// registry, collects evidence for anything missing, and distills repeated
// failures into signed slashing evidence for the staking layer.
package focil

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/bpimesh/bpimesh/core/types"
	"github.com/bpimesh/bpimesh/crypto"
)

// ObligationType classifies what kind of item a proposer must include.
type ObligationType uint8

const (
	// ObligationTransaction is an ordinary user transaction awaiting
	// inclusion.
	ObligationTransaction ObligationType = iota

	// ObligationDataAvailability is a data-availability commitment the
	// proposer must carry.
	ObligationDataAvailability

	// ObligationAttestation is a validator attestation owed to the chain.
	ObligationAttestation

	// ObligationSlashingEvidence is evidence against another validator
	// that must not be suppressed.
	ObligationSlashingEvidence
)

// String returns a human-readable name for ObligationType.
func (o ObligationType) String() string {
	switch o {
	case ObligationTransaction:
		return "transaction_inclusion"
	case ObligationDataAvailability:
		return "data_availability"
	case ObligationAttestation:
		return "validator_attestation"
	case ObligationSlashingEvidence:
		return "slashing_evidence"
	default:
		return "unknown"
	}
}

// ObligationStatus tracks an obligation through its lifecycle.
type ObligationStatus uint8

const (
	// StatusPending means the obligation awaits inclusion.
	StatusPending ObligationStatus = iota

	// StatusIncluded means the proposer satisfied the obligation.
	StatusIncluded

	// StatusExpired means the deadline passed without inclusion.
	StatusExpired

	// StatusFlaggedMissing means enforcement has already emitted evidence
	// for the obligation.
	StatusFlaggedMissing
)

// String returns a human-readable name for ObligationStatus.
func (s ObligationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusIncluded:
		return "included"
	case StatusExpired:
		return "expired"
	case StatusFlaggedMissing:
		return "flagged_missing"
	default:
		return "unknown"
	}
}

// PendingObligation is one inclusion duty assigned to a proposer.
type PendingObligation struct {
	// ID is the content-addressed obligation identifier.
	ID types.Hash

	// Type classifies the obligated item.
	Type ObligationType

	// TxHash is the hash of the item that must be included.
	TxHash types.Hash

	// Proposer is the validator responsible for inclusion.
	Proposer types.NodeID

	// CreatedAtBlock is the block height the obligation was registered.
	CreatedAtBlock uint64

	// DeadlineBlock is the last height at which inclusion counts.
	DeadlineBlock uint64

	// Status is the current lifecycle state.
	Status ObligationStatus

	// IncludedAtBlock is the height of inclusion, zero while pending.
	IncludedAtBlock uint64
}

// obligationBody is the RLP view hashed into an obligation ID. Status and
// inclusion height are excluded: the ID commits to the duty, not its
// progress.
type obligationBody struct {
	Type           uint8
	TxHash         types.Hash
	Proposer       string
	CreatedAtBlock uint64
	DeadlineBlock  uint64
}

// ObligationID derives the content-addressed identifier for an obligation.
// Two identical duties always collapse to the same ID.
func ObligationID(typ ObligationType, txHash types.Hash, proposer types.NodeID, createdAt, deadline uint64) (types.Hash, error) {
	enc, err := rlp.EncodeToBytes(&obligationBody{
		Type:           uint8(typ),
		TxHash:         txHash,
		Proposer:       string(proposer),
		CreatedAtBlock: createdAt,
		DeadlineBlock:  deadline,
	})
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.DomainHash(crypto.DomainObligation, enc), nil
}

// InclusionList is a proposer's published commitment to a set of items for
// one block height.
type InclusionList struct {
	// Proposer is the list author.
	Proposer types.NodeID

	// Height is the block height the list targets.
	Height uint64

	// Transactions are the committed item hashes, in list order.
	Transactions []types.Hash

	// IncRoot is the Merkle root over Transactions.
	IncRoot types.Hash

	// Signature is the proposer's BLS signature over the signing payload.
	Signature []byte
}

// MembershipProof proves one transaction's presence in a published list
// without revealing the rest of it.
type MembershipProof struct {
	TxHash types.Hash
	Proof  *crypto.MerkleProof
}

// EvidenceType classifies one enforcement finding.
type EvidenceType uint8

const (
	// EvidenceMissingTransaction means a due obligation was absent from
	// the proposer's list.
	EvidenceMissingTransaction EvidenceType = iota

	// EvidenceIncorrectInclusion means the list carried an item the
	// proposer had no obligation for.
	EvidenceIncorrectInclusion

	// EvidenceDeadlineViolation means the obligation came due in a block
	// whose proposer published no inclusion list at all.
	EvidenceDeadlineViolation

	// EvidenceInvalidProposal means the list itself failed verification.
	EvidenceInvalidProposal
)

// String returns a human-readable name for EvidenceType.
func (e EvidenceType) String() string {
	switch e {
	case EvidenceMissingTransaction:
		return "missing_transaction"
	case EvidenceIncorrectInclusion:
		return "incorrect_inclusion"
	case EvidenceDeadlineViolation:
		return "deadline_violation"
	case EvidenceInvalidProposal:
		return "invalid_proposal"
	default:
		return "unknown"
	}
}

// severityWeight maps an evidence type to its slashing weight.
func (e EvidenceType) severityWeight() uint64 {
	switch e {
	case EvidenceMissingTransaction:
		return 5
	case EvidenceIncorrectInclusion:
		return 10
	case EvidenceDeadlineViolation:
		return 15
	case EvidenceInvalidProposal:
		return 20
	default:
		return 0
	}
}

// MissingItem is one enforcement finding against a proposer.
type MissingItem struct {
	// ObligationID points at the violated obligation. Zero for findings
	// not tied to a single obligation (invalid proposals).
	ObligationID types.Hash

	// TxHash is the item the finding concerns.
	TxHash types.Hash

	// Proposer is the validator at fault.
	Proposer types.NodeID

	// DeadlineBlock is the obligation deadline, zero when not applicable.
	DeadlineBlock uint64

	// DetectedAtBlock is the height enforcement observed the violation.
	DetectedAtBlock uint64

	// Type classifies the finding.
	Type EvidenceType

	// Commitment is the canonical hash of the finding, suitable for
	// citing in evidence.
	Commitment types.Hash
}

// missingItemBody is the RLP view hashed into a finding commitment.
type missingItemBody struct {
	ObligationID    types.Hash
	TxHash          types.Hash
	Proposer        string
	DeadlineBlock   uint64
	DetectedAtBlock uint64
	Type            uint8
}

// commit computes the finding's canonical commitment.
func (m *MissingItem) commit() (types.Hash, error) {
	enc, err := rlp.EncodeToBytes(&missingItemBody{
		ObligationID:    m.ObligationID,
		TxHash:          m.TxHash,
		Proposer:        string(m.Proposer),
		DeadlineBlock:   m.DeadlineBlock,
		DetectedAtBlock: m.DetectedAtBlock,
		Type:            uint8(m.Type),
	})
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.DomainHash(crypto.DomainSlashingEvidence, enc), nil
}

// ViolationType is the aggregate classification carried by slashing
// evidence. One evidence record covers many findings; the type reflects the
// most severe kind present.
type ViolationType uint8

const (
	// ViolationMaliciousOmission is the fallback classification.
	ViolationMaliciousOmission ViolationType = iota

	// ViolationFailedInclusion covers missed due obligations.
	ViolationFailedInclusion

	// ViolationDeadline covers obligations ignored past the full window.
	ViolationDeadline

	// ViolationInvalidList covers structurally invalid proposals.
	ViolationInvalidList
)

// String returns a human-readable name for ViolationType.
func (v ViolationType) String() string {
	switch v {
	case ViolationMaliciousOmission:
		return "malicious_omission"
	case ViolationFailedInclusion:
		return "failed_inclusion"
	case ViolationDeadline:
		return "deadline_violation"
	case ViolationInvalidList:
		return "invalid_list"
	default:
		return "unknown"
	}
}

// SlashingEvidence is the signed, content-addressed package handed to the
// staking layer when a proposer's findings warrant punishment.
type SlashingEvidence struct {
	// ID is the content-addressed evidence identifier.
	ID types.Hash

	// Proposer is the validator the evidence accuses.
	Proposer types.NodeID

	// Violation is the aggregate classification.
	Violation ViolationType

	// Items are the individual findings backing the accusation.
	Items []MissingItem

	// Severity scores the evidence for penalty scaling.
	Severity uint64

	// BlockRange is the [start, end] span of blocks the findings cover.
	// Retention is measured from the end of the range.
	BlockRange [2]uint64

	// ReporterSignature is the assembling node's BLS signature over ID.
	// Empty when the engine runs without a signer.
	ReporterSignature []byte
}

// evidenceBody is the RLP view hashed into an evidence ID.
type evidenceBody struct {
	Proposer    string
	Violation   uint8
	Commitments []types.Hash
	Severity    uint64
	BlockStart  uint64
	BlockEnd    uint64
}

// evidenceID derives the content-addressed evidence identifier from the
// finding commitments rather than the full items, keeping the ID stable
// under re-serialization.
func evidenceID(proposer types.NodeID, violation ViolationType, items []MissingItem, severity uint64, blockRange [2]uint64) (types.Hash, error) {
	commitments := make([]types.Hash, len(items))
	for i := range items {
		commitments[i] = items[i].Commitment
	}
	enc, err := rlp.EncodeToBytes(&evidenceBody{
		Proposer:    string(proposer),
		Violation:   uint8(violation),
		Commitments: commitments,
		Severity:    severity,
		BlockStart:  blockRange[0],
		BlockEnd:    blockRange[1],
	})
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.DomainHash(crypto.DomainSlashingEvidence, enc), nil
}

// EvidenceSeverity scores a set of findings: a base of 10 per finding plus
// each finding's type weight.
func EvidenceSeverity(items []MissingItem) uint64 {
	severity := uint64(10 * len(items))
	for i := range items {
		severity += items[i].Type.severityWeight()
	}
	return severity
}

// classifyViolation picks the aggregate classification for a set of
// findings, most severe kind first.
func classifyViolation(items []MissingItem) ViolationType {
	var hasDeadline, hasMissing bool
	for i := range items {
		switch items[i].Type {
		case EvidenceInvalidProposal:
			return ViolationInvalidList
		case EvidenceDeadlineViolation:
			hasDeadline = true
		case EvidenceMissingTransaction:
			hasMissing = true
		}
	}
	if hasDeadline {
		return ViolationDeadline
	}
	if hasMissing {
		return ViolationFailedInclusion
	}
	return ViolationMaliciousOmission
}
