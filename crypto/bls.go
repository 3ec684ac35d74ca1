// BLS12-381 signer capability using the supranational/blst library with the
// MinPk scheme: public keys in G1 (48-byte compressed), signatures in G2
// (96-byte compressed).
//
// Validators sign inclusion lists and evidence attributions through the
// Signer interface; consensus code never touches raw secret keys.
package crypto

import (
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// blsDST is the domain separation tag for mesh BLS signatures.
var blsDST = []byte("BPI_MESH_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// Key and signature sizes for the MinPk scheme.
const (
	// BlsPubkeySize is the compressed G1 public key size.
	BlsPubkeySize = 48

	// BlsSignatureSize is the compressed G2 signature size.
	BlsSignatureSize = 96

	// BlsSecretSize is the serialized secret scalar size.
	BlsSecretSize = 32
)

// BLS errors.
var (
	ErrBlsInvalidIKM       = errors.New("bls: IKM must be at least 32 bytes")
	ErrBlsKeyGenFailed     = errors.New("bls: key generation failed")
	ErrBlsInvalidSecretKey = errors.New("bls: invalid secret key bytes")
	ErrBlsSignFailed       = errors.New("bls: signing failed")
)

// Signer is the opaque signing capability consumed by the fairness
// subsystem. Each validator node controls its own Signer; this package only
// defines the surface and one BLS-backed implementation.
type Signer interface {
	// Sign signs the given bytes and returns the signature.
	Sign(data []byte) ([]byte, error)

	// PublicKey returns the serialized public key.
	PublicKey() []byte
}

// BlsSigner implements Signer over a blst secret key.
type BlsSigner struct {
	secret *blst.SecretKey
	pubkey []byte
}

// NewBlsSigner derives a signer from input key material. IKM must be at
// least 32 bytes of entropy (or a deterministic test seed).
func NewBlsSigner(ikm []byte) (*BlsSigner, error) {
	if len(ikm) < 32 {
		return nil, ErrBlsInvalidIKM
	}
	sk := blst.KeyGen(ikm)
	if sk == nil {
		return nil, ErrBlsKeyGenFailed
	}
	pk := new(blst.P1Affine).From(sk)
	return &BlsSigner{
		secret: sk,
		pubkey: pk.Compress(),
	}, nil
}

// BlsSignerFromSecret restores a signer from a serialized secret scalar,
// the inverse of SecretBytes.
func BlsSignerFromSecret(sk []byte) (*BlsSigner, error) {
	if len(sk) != BlsSecretSize {
		return nil, ErrBlsInvalidSecretKey
	}
	secret := new(blst.SecretKey).Deserialize(sk)
	if secret == nil {
		return nil, ErrBlsInvalidSecretKey
	}
	pk := new(blst.P1Affine).From(secret)
	return &BlsSigner{
		secret: secret,
		pubkey: pk.Compress(),
	}, nil
}

// SecretBytes returns the serialized secret scalar for persistence. Handle
// with care.
func (s *BlsSigner) SecretBytes() []byte {
	return s.secret.Serialize()
}

// Sign signs data with the MinPk scheme, returning the 96-byte compressed
// signature.
func (s *BlsSigner) Sign(data []byte) ([]byte, error) {
	sig := new(blst.P2Affine).Sign(s.secret, data, blsDST)
	if sig == nil {
		return nil, ErrBlsSignFailed
	}
	return sig.Compress(), nil
}

// PublicKey returns the 48-byte compressed G1 public key.
func (s *BlsSigner) PublicKey() []byte {
	out := make([]byte, len(s.pubkey))
	copy(out, s.pubkey)
	return out
}

// BlsVerify checks a single BLS signature. pubkey must be a 48-byte
// compressed G1 point and sig a 96-byte compressed G2 point.
func BlsVerify(pubkey, msg, sig []byte) bool {
	if len(pubkey) == 0 || len(sig) == 0 {
		return false
	}
	pk := new(blst.P1Affine).Uncompress(pubkey)
	if pk == nil {
		return false
	}
	s := new(blst.P2Affine).Uncompress(sig)
	if s == nil {
		return false
	}
	return s.Verify(true, pk, true, msg, blsDST)
}
