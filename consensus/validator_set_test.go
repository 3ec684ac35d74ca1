package consensus

import (
	"testing"

	"github.com/bpimesh/bpimesh/core/types"
)

func TestValidatorSetRegisterAndLookup(t *testing.T) {
	vs := NewValidatorSet()

	idx, err := vs.Register("node-a", 5000, []byte{0x01}, []byte{0x02})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if idx != 0 {
		t.Fatalf("first index = %d, want 0", idx)
	}

	info, err := vs.Get("node-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.Stake != 5000 || !info.Active {
		t.Fatalf("unexpected record: %+v", info)
	}

	byIdx, err := vs.GetByIndex(0)
	if err != nil {
		t.Fatalf("GetByIndex: %v", err)
	}
	if byIdx.NodeID != "node-a" {
		t.Fatalf("GetByIndex node = %s, want node-a", byIdx.NodeID)
	}
}

func TestValidatorSetRejects(t *testing.T) {
	vs := NewValidatorSet()
	if _, err := vs.Register("node-a", 1000, nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := vs.Register("node-a", 2000, nil, nil); err != ErrDuplicateValidator {
		t.Fatalf("duplicate: got %v, want ErrDuplicateValidator", err)
	}
	if _, err := vs.Register("node-b", 0, nil, nil); err != ErrZeroStake {
		t.Fatalf("zero stake: got %v, want ErrZeroStake", err)
	}
	if _, err := vs.Get("missing"); err != ErrValidatorNotFound {
		t.Fatalf("missing: got %v, want ErrValidatorNotFound", err)
	}
	if _, err := vs.GetByIndex(99); err != ErrValidatorNotFound {
		t.Fatalf("bad index: got %v, want ErrValidatorNotFound", err)
	}
	if err := vs.UpdateStake("missing", 100); err != ErrValidatorNotFound {
		t.Fatalf("update missing: got %v, want ErrValidatorNotFound", err)
	}
}

func TestValidatorSetActiveFiltering(t *testing.T) {
	vs := NewValidatorSet()
	for _, id := range []types.NodeID{"node-c", "node-a", "node-b"} {
		if _, err := vs.Register(id, 1000, nil, nil); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}

	if err := vs.SetActive("node-b", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	active := vs.Active()
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2", len(active))
	}
	if active[0].NodeID != "node-a" || active[1].NodeID != "node-c" {
		t.Fatalf("active order = [%s %s], want [node-a node-c]", active[0].NodeID, active[1].NodeID)
	}
	if got := vs.TotalActiveStake(); got != 2000 {
		t.Fatalf("TotalActiveStake = %d, want 2000", got)
	}
	if vs.Len() != 3 {
		t.Fatalf("Len = %d, want 3", vs.Len())
	}
}

func TestValidatorSetUpdateStake(t *testing.T) {
	vs := NewValidatorSet()
	if _, err := vs.Register("node-a", 1000, nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := vs.UpdateStake("node-a", 7500); err != nil {
		t.Fatalf("UpdateStake: %v", err)
	}
	info, err := vs.Get("node-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.Stake != 7500 {
		t.Fatalf("stake = %d, want 7500", info.Stake)
	}
	if err := vs.UpdateStake("node-a", 0); err != ErrZeroStake {
		t.Fatalf("zero stake update: got %v, want ErrZeroStake", err)
	}
}

func TestValidatorSetCopies(t *testing.T) {
	vs := NewValidatorSet()
	pub := []byte{0xaa, 0xbb}
	if _, err := vs.Register("node-a", 1000, pub, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	pub[0] = 0x00
	info, err := vs.Get("node-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.VRFPublicKey[0] != 0xaa {
		t.Fatal("registry must copy key material on registration")
	}

	info.Stake = 1
	again, _ := vs.Get("node-a")
	if again.Stake != 1000 {
		t.Fatal("Get must return a copy, not the stored record")
	}
}
