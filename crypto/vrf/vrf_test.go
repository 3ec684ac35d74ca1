package vrf

import (
	"bytes"
	"testing"
)

func testKeyPair(t *testing.T, seed string) *KeyPair {
	t.Helper()
	kp, err := NewKeyPairFromSeed([]byte(seed))
	if err != nil {
		t.Fatalf("NewKeyPairFromSeed(%q): %v", seed, err)
	}
	return kp
}

func TestProveVerify(t *testing.T) {
	kp := testKeyPair(t, "validator-1 vrf seed")
	input := []byte("height=42 round=0")

	proof, out, err := kp.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	ok, err := Verify(kp.Public(), proof, out, input)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("valid proof rejected")
	}
}

func TestProveDeterministic(t *testing.T) {
	kp := testKeyPair(t, "deterministic seed")
	input := []byte("round input")

	p1, o1, err := kp.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	p2, o2, err := kp.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	if o1.Beta != o2.Beta {
		t.Fatalf("outputs differ for identical input: %x vs %x", o1.Beta, o2.Beta)
	}
	b1, err := p1.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	b2, err := p2.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatal("proofs differ for identical input")
	}
}

func TestOutputVariesWithInput(t *testing.T) {
	kp := testKeyPair(t, "seed")

	_, o1, err := kp.Prove([]byte("input-a"))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	_, o2, err := kp.Prove([]byte("input-b"))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if o1.Beta == o2.Beta {
		t.Fatal("distinct inputs produced identical outputs")
	}
}

func TestOutputVariesWithKey(t *testing.T) {
	input := []byte("shared input")
	a := testKeyPair(t, "seed-a")
	b := testKeyPair(t, "seed-b")

	_, oa, err := a.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	_, ob, err := b.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if oa.Beta == ob.Beta {
		t.Fatal("distinct keys produced identical outputs")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	input := []byte("input")
	kp := testKeyPair(t, "honest")
	other := testKeyPair(t, "imposter")

	proof, out, err := kp.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	ok, err := Verify(other.Public(), proof, out, input)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("proof verified under the wrong public key")
	}
}

func TestVerifyRejectsWrongInput(t *testing.T) {
	kp := testKeyPair(t, "seed")
	proof, out, err := kp.Prove([]byte("original"))
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	ok, err := Verify(kp.Public(), proof, out, []byte("substituted"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("proof verified against a different input")
	}
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	kp := testKeyPair(t, "seed")
	input := []byte("input")
	proof, out, err := kp.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	one := suite.Scalar().One()

	tamperedS := &Proof{Gamma: proof.Gamma, C: proof.C, S: suite.Scalar().Add(proof.S, one)}
	if ok, _ := Verify(kp.Public(), tamperedS, out, input); ok {
		t.Fatal("proof with shifted response scalar verified")
	}

	tamperedC := &Proof{Gamma: proof.Gamma, C: suite.Scalar().Add(proof.C, one), S: proof.S}
	if ok, _ := Verify(kp.Public(), tamperedC, out, input); ok {
		t.Fatal("proof with shifted challenge scalar verified")
	}

	tamperedGamma := &Proof{Gamma: suite.Point().Add(proof.Gamma, suite.Point().Base()), C: proof.C, S: proof.S}
	if ok, _ := Verify(kp.Public(), tamperedGamma, out, input); ok {
		t.Fatal("proof with shifted gamma verified")
	}
}

func TestVerifyRejectsTamperedOutput(t *testing.T) {
	kp := testKeyPair(t, "seed")
	input := []byte("input")
	proof, out, err := kp.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	forged := &Output{Beta: out.Beta}
	forged.Beta[0] ^= 0x01
	ok, err := Verify(kp.Public(), proof, forged, input)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("mismatched output accepted")
	}
}

func TestProofRoundTrip(t *testing.T) {
	kp := testKeyPair(t, "seed")
	input := []byte("input")
	proof, out, err := kp.Prove(input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	raw, err := proof.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if len(raw) != ProofSize {
		t.Fatalf("proof size = %d, want %d", len(raw), ProofSize)
	}

	parsed, err := ProofFromBytes(raw)
	if err != nil {
		t.Fatalf("ProofFromBytes: %v", err)
	}
	ok, err := Verify(kp.Public(), parsed, out, input)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("round-tripped proof rejected")
	}

	if _, err := ProofFromBytes(raw[:ProofSize-1]); err == nil {
		t.Fatal("short proof bytes accepted")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	kp := testKeyPair(t, "seed")
	pub, err := PublicKeyFromBytes(kp.PublicBytes())
	if err != nil {
		t.Fatalf("PublicKeyFromBytes: %v", err)
	}
	if !pub.Equal(kp.Public()) {
		t.Fatal("public key round trip changed the point")
	}
}

func TestHashToCurveSubgroup(t *testing.T) {
	inputs := [][]byte{
		[]byte("a"),
		[]byte("b"),
		[]byte("longer input with more entropy"),
		{},
	}
	// Multiplying by the group order must send every hashed point to the
	// identity; that holds only for points in the prime-order subgroup.
	// -1 mod order is order-1, so (order-1)*P + P = order*P.
	orderMinusOne := suite.Scalar().Neg(suite.Scalar().One())
	for _, in := range inputs {
		p, err := HashToCurve(in)
		if err != nil {
			t.Fatalf("HashToCurve(%q): %v", in, err)
		}
		if p.Equal(suite.Point().Null()) {
			t.Fatalf("HashToCurve(%q) returned the identity", in)
		}
		sum := suite.Point().Add(suite.Point().Mul(orderMinusOne, p), p)
		if !sum.Equal(suite.Point().Null()) {
			t.Fatalf("HashToCurve(%q) outside the prime-order subgroup", in)
		}
	}
}

func TestNewKeyPairFromSeed(t *testing.T) {
	if _, err := NewKeyPairFromSeed(nil); err != ErrEmptySeed {
		t.Fatalf("empty seed: got %v, want ErrEmptySeed", err)
	}

	a := testKeyPair(t, "same seed")
	b := testKeyPair(t, "same seed")
	if !a.Public().Equal(b.Public()) {
		t.Fatal("identical seeds produced different keys")
	}
}
