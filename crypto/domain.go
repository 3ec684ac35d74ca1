// Package crypto provides the cryptographic primitives shared by the
// fairness subsystem: domain-separated hashing, the BLS signer capability,
// and Merkle commitments for inclusion lists.
package crypto

import (
	"golang.org/x/crypto/sha3"

	"github.com/bpimesh/bpimesh/core/types"
)

// Domain separation bytes. Distinct domains must never collide in hash
// space for identical payloads; every hash computed by this module is
// prefixed with exactly one of these.
const (
	// DomainVRFInput separates VRF input derivation.
	DomainVRFInput byte = 0x10

	// DomainVRFHashToCurve separates the hash-to-curve counter search.
	DomainVRFHashToCurve byte = 0x11

	// DomainVRFChallenge separates the Fiat-Shamir challenge.
	DomainVRFChallenge byte = 0x12

	// DomainVRFOutput separates the gamma-to-beta output hash.
	DomainVRFOutput byte = 0x13

	// DomainVRFNonce separates deterministic nonce derivation.
	DomainVRFNonce byte = 0x14

	// DomainLeaderSelection separates VRF outputs from selection hashes.
	DomainLeaderSelection byte = 0x21

	// DomainInclusionListRoot separates inclusion-list Merkle hashing.
	DomainInclusionListRoot byte = 0x22

	// DomainSlashingEvidence separates evidence IDs and commitments.
	DomainSlashingEvidence byte = 0x23

	// DomainObligation separates content-addressed obligation IDs.
	DomainObligation byte = 0x24
)

// DomainHash returns Keccak256(domain || data). It is the single hashing
// entry point for all commitments in the subsystem.
func DomainHash(domain byte, data []byte) types.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{domain})
	h.Write(data)
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// DomainHashConcat hashes multiple byte segments under one domain without
// intermediate allocation. Equivalent to DomainHash(domain, concat(segments)).
func DomainHashConcat(domain byte, segments ...[]byte) types.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{domain})
	for _, s := range segments {
		h.Write(s)
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}
