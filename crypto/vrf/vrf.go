// Package vrf implements an elliptic-curve verifiable random function over
// the edwards25519 prime-order subgroup.
//
// The construction follows the ECVRF shape from RFC 9381: the input is
// hashed to a curve point H with a bounded try-and-increment search, the
// prover commits gamma = k*H for a nonce k, binds it with a Fiat-Shamir
// challenge c = H(G, H, pk, gamma, k*G, input), and responds with
// s = k + c*sk. The output beta is the domain-separated hash of gamma.
//
// The nonce is derived deterministically as k = H(sk || input), so an honest
// prover always reproduces the same proof and output for one (key, input)
// pair. Verification checks the response against the key commitment but not
// gamma's discrete log, so it establishes authorship and determinism for
// honest provers rather than full proof uniqueness.
package vrf

import (
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"

	"github.com/bpimesh/bpimesh/crypto"
)

// VRF sizes in bytes.
const (
	// PointSize is the size of a compressed edwards25519 point.
	PointSize = 32

	// ScalarSize is the size of an edwards25519 scalar.
	ScalarSize = 32

	// ProofSize is the serialized proof size: gamma || c || s.
	ProofSize = PointSize + 2*ScalarSize

	// OutputSize is the size of the VRF output beta.
	OutputSize = 32

	// maxHashToCurveAttempts bounds the try-and-increment search.
	maxHashToCurveAttempts = 256
)

// VRF errors.
var (
	ErrNilKey          = errors.New("vrf: nil key")
	ErrNilProof        = errors.New("vrf: nil proof")
	ErrHashToCurve     = errors.New("vrf: hash-to-curve search exhausted")
	ErrInvalidProofLen = errors.New("vrf: invalid proof length")
	ErrEmptySeed       = errors.New("vrf: empty key seed")
)

// suite is the edwards25519 group all VRF arithmetic runs over.
var suite = edwards25519.NewBlakeSHA256Ed25519()

// cofactor clears the edwards25519 cofactor, forcing hashed points into the
// prime-order subgroup.
var cofactor = suite.Scalar().SetInt64(8)

// Proof is the publicly verifiable VRF proof (gamma, c, s).
type Proof struct {
	// Gamma is the nonce-scaled image of the hashed input, k*H(input).
	Gamma kyber.Point

	// C is the Fiat-Shamir challenge scalar.
	C kyber.Scalar

	// S is the response scalar k + c*sk.
	S kyber.Scalar
}

// Output is the pseudorandom VRF output derived from a proof.
type Output struct {
	// Beta is the domain-separated hash of gamma.
	Beta [OutputSize]byte
}

// KeyPair holds a VRF secret scalar and the matching public point.
type KeyPair struct {
	secret kyber.Scalar
	public kyber.Point
}

// NewKeyPairFromSeed derives a key pair deterministically from seed bytes.
// The seed is hashed before reduction so weak seeds still spread over the
// full scalar range.
func NewKeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}
	digest := crypto.DomainHash(crypto.DomainVRFNonce, seed)
	sk := suite.Scalar().SetBytes(digest[:])
	return &KeyPair{
		secret: sk,
		public: suite.Point().Mul(sk, nil),
	}, nil
}

// Public returns the public point of the key pair.
func (kp *KeyPair) Public() kyber.Point { return kp.public }

// PublicBytes returns the compressed public point.
func (kp *KeyPair) PublicBytes() []byte {
	b, err := kp.public.MarshalBinary()
	if err != nil {
		// Marshaling a valid group element cannot fail.
		panic(fmt.Sprintf("vrf: marshal public key: %v", err))
	}
	return b
}

// Prove computes the VRF proof and output for input under the key pair.
// Deterministic: identical (key, input) pairs yield identical results.
func (kp *KeyPair) Prove(input []byte) (*Proof, *Output, error) {
	if kp == nil || kp.secret == nil {
		return nil, nil, ErrNilKey
	}

	h, err := HashToCurve(input)
	if err != nil {
		return nil, nil, err
	}

	k := deriveNonce(kp.secret, input)

	gamma := suite.Point().Mul(k, h)
	u := suite.Point().Mul(k, nil)

	c, err := challenge(kp.public, h, gamma, u, input)
	if err != nil {
		return nil, nil, err
	}

	s := suite.Scalar().Mul(c, kp.secret)
	s = s.Add(s, k)

	out := &Output{Beta: hashPointToOutput(gamma)}
	return &Proof{Gamma: gamma, C: c, S: s}, out, nil
}

// Verify checks a proof/output pair against a public key and input. A false
// return means the proof does not verify; an error means the inputs were
// malformed or the curve search failed.
func Verify(public kyber.Point, proof *Proof, output *Output, input []byte) (bool, error) {
	if public == nil {
		return false, ErrNilKey
	}
	if proof == nil || proof.Gamma == nil || proof.C == nil || proof.S == nil || output == nil {
		return false, ErrNilProof
	}

	h, err := HashToCurve(input)
	if err != nil {
		return false, err
	}

	// u = s*G - c*pk. For an honest proof this recovers the prover's k*G.
	u := suite.Point().Mul(proof.S, nil)
	u = u.Sub(u, suite.Point().Mul(proof.C, public))

	c, err := challenge(public, h, proof.Gamma, u, input)
	if err != nil {
		return false, err
	}
	if !c.Equal(proof.C) {
		return false, nil
	}

	if hashPointToOutput(proof.Gamma) != output.Beta {
		return false, nil
	}
	return true, nil
}

// HashToCurve maps input bytes to a point in the prime-order subgroup using
// a domain-separated, counter-bounded try-and-increment search. The failure
// case is cryptographically unreachable (each attempt succeeds with
// probability ~1/2) but surfaces as ErrHashToCurve rather than looping.
func HashToCurve(input []byte) (kyber.Point, error) {
	seed := crypto.DomainHash(crypto.DomainVRFHashToCurve, input)

	for ctr := 0; ctr < maxHashToCurveAttempts; ctr++ {
		candidate := crypto.DomainHashConcat(crypto.DomainVRFHashToCurve, seed[:], []byte{byte(ctr)})

		p := suite.Point()
		if err := p.UnmarshalBinary(candidate[:]); err != nil {
			continue
		}
		// Clear the cofactor and reject the identity so the result is a
		// generator of the prime-order subgroup.
		p = p.Mul(cofactor, p)
		if p.Equal(suite.Point().Null()) {
			continue
		}
		return p, nil
	}
	return nil, ErrHashToCurve
}

// Bytes serializes the proof as gamma || c || s.
func (p *Proof) Bytes() ([]byte, error) {
	if p == nil || p.Gamma == nil || p.C == nil || p.S == nil {
		return nil, ErrNilProof
	}
	out := make([]byte, 0, ProofSize)
	for _, m := range []interface{ MarshalBinary() ([]byte, error) }{p.Gamma, p.C, p.S} {
		b, err := m.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("vrf: marshal proof: %w", err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// ProofFromBytes parses a serialized proof.
func ProofFromBytes(b []byte) (*Proof, error) {
	if len(b) != ProofSize {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidProofLen, ProofSize, len(b))
	}
	gamma := suite.Point()
	if err := gamma.UnmarshalBinary(b[:PointSize]); err != nil {
		return nil, fmt.Errorf("vrf: unmarshal gamma: %w", err)
	}
	c := suite.Scalar()
	if err := c.UnmarshalBinary(b[PointSize : PointSize+ScalarSize]); err != nil {
		return nil, fmt.Errorf("vrf: unmarshal c: %w", err)
	}
	s := suite.Scalar()
	if err := s.UnmarshalBinary(b[PointSize+ScalarSize:]); err != nil {
		return nil, fmt.Errorf("vrf: unmarshal s: %w", err)
	}
	return &Proof{Gamma: gamma, C: c, S: s}, nil
}

// PublicKeyFromBytes parses a compressed public point.
func PublicKeyFromBytes(b []byte) (kyber.Point, error) {
	p := suite.Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("vrf: unmarshal public key: %w", err)
	}
	return p, nil
}

// deriveNonce computes the deterministic nonce k = H(sk || input).
func deriveNonce(sk kyber.Scalar, input []byte) kyber.Scalar {
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		panic(fmt.Sprintf("vrf: marshal secret scalar: %v", err))
	}
	digest := crypto.DomainHashConcat(crypto.DomainVRFNonce, skBytes, input)
	return suite.Scalar().SetBytes(digest[:])
}

// challenge computes the Fiat-Shamir challenge c = H(G, H, pk, gamma, u, input).
func challenge(public, h, gamma, u kyber.Point, input []byte) (kyber.Scalar, error) {
	segments := make([][]byte, 0, 6)
	for _, pt := range []kyber.Point{suite.Point().Base(), h, public, gamma, u} {
		b, err := pt.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("vrf: marshal challenge point: %w", err)
		}
		segments = append(segments, b)
	}
	segments = append(segments, input)
	digest := crypto.DomainHashConcat(crypto.DomainVRFChallenge, segments...)
	return suite.Scalar().SetBytes(digest[:]), nil
}

// hashPointToOutput maps gamma to the 32-byte VRF output beta.
func hashPointToOutput(gamma kyber.Point) [OutputSize]byte {
	b, err := gamma.MarshalBinary()
	if err != nil {
		panic(fmt.Sprintf("vrf: marshal gamma: %v", err))
	}
	digest := crypto.DomainHash(crypto.DomainVRFOutput, b)
	return digest
}
