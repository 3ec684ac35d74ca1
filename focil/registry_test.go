package focil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bpimesh/bpimesh/core/types"
)

func testTxHash(tag string) types.Hash {
	return types.BytesToHash([]byte(tag))
}

func newTestRegistry(t *testing.T, config Config) *ObligationRegistry {
	t.Helper()
	r, err := NewObligationRegistry(config)
	if err != nil {
		t.Fatalf("NewObligationRegistry: %v", err)
	}
	return r
}

func TestRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t, Config{})

	ob, err := r.Register(ObligationTransaction, testTxHash("tx-1"), "prop-a", 100)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ob.DeadlineBlock != 100+DefaultConfig().ObligationTimeoutBlocks {
		t.Fatalf("deadline = %d, want %d", ob.DeadlineBlock, 100+DefaultConfig().ObligationTimeoutBlocks)
	}
	if ob.Status != StatusPending {
		t.Fatalf("status = %s, want pending", ob.Status)
	}

	got, err := r.Get(ob.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != ob {
		t.Fatalf("Get returned %+v, want %+v", got, ob)
	}
}

func TestObligationIDContentAddressed(t *testing.T) {
	id1, err := ObligationID(ObligationTransaction, testTxHash("tx"), "prop-a", 10, 42)
	if err != nil {
		t.Fatalf("ObligationID: %v", err)
	}
	id2, err := ObligationID(ObligationTransaction, testTxHash("tx"), "prop-a", 10, 42)
	if err != nil {
		t.Fatalf("ObligationID: %v", err)
	}
	if id1 != id2 {
		t.Fatal("identical duties must share one ID")
	}

	id3, _ := ObligationID(ObligationTransaction, testTxHash("tx"), "prop-b", 10, 42)
	id4, _ := ObligationID(ObligationDataAvailability, testTxHash("tx"), "prop-a", 10, 42)
	if id1 == id3 || id1 == id4 {
		t.Fatal("changing proposer or type must change the ID")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t, Config{})
	if _, err := r.Register(ObligationTransaction, testTxHash("tx"), "prop-a", 100); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Register(ObligationTransaction, testTxHash("tx"), "prop-a", 100); !errors.Is(err, ErrDuplicateObligation) {
		t.Fatalf("duplicate: got %v, want ErrDuplicateObligation", err)
	}
}

func TestRegisterCapacity(t *testing.T) {
	r := newTestRegistry(t, Config{MaxPendingObligations: 2})

	for i := 0; i < 2; i++ {
		if _, err := r.Register(ObligationTransaction, testTxHash(fmt.Sprintf("tx-%d", i)), "prop-a", 100); err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
	}
	if _, err := r.Register(ObligationTransaction, testTxHash("tx-overflow"), "prop-a", 100); !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("over capacity: got %v, want ErrRegistryFull", err)
	}
}

func TestMarkIncludedLifecycle(t *testing.T) {
	r := newTestRegistry(t, Config{})
	ob, err := r.Register(ObligationTransaction, testTxHash("tx"), "prop-a", 100)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.MarkIncluded(ob.ID, 120); err != nil {
		t.Fatalf("MarkIncluded: %v", err)
	}
	got, _ := r.Get(ob.ID)
	if got.Status != StatusIncluded || got.IncludedAtBlock != 120 {
		t.Fatalf("after inclusion: %+v", got)
	}

	if err := r.MarkIncluded(ob.ID, 121); !errors.Is(err, ErrNotPending) {
		t.Fatalf("double inclusion: got %v, want ErrNotPending", err)
	}
	if err := r.MarkIncluded(testTxHash("missing"), 120); !errors.Is(err, ErrObligationNotFound) {
		t.Fatalf("unknown id: got %v, want ErrObligationNotFound", err)
	}
}

func TestByProposerSorted(t *testing.T) {
	r := newTestRegistry(t, Config{})

	// Later registration means later deadline; order must come out by
	// deadline regardless of insertion order.
	if _, err := r.Register(ObligationTransaction, testTxHash("late"), "prop-a", 110); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Register(ObligationTransaction, testTxHash("early"), "prop-a", 100); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Register(ObligationTransaction, testTxHash("other"), "prop-b", 100); err != nil {
		t.Fatalf("Register: %v", err)
	}

	obs := r.ByProposer("prop-a")
	if len(obs) != 2 {
		t.Fatalf("len = %d, want 2", len(obs))
	}
	if obs[0].TxHash != testTxHash("early") || obs[1].TxHash != testTxHash("late") {
		t.Fatal("obligations not sorted by deadline")
	}
	if len(r.ByProposer("prop-c")) != 0 {
		t.Fatal("unknown proposer must have no obligations")
	}
}

func TestDueBy(t *testing.T) {
	r := newTestRegistry(t, Config{ObligationTimeoutBlocks: 10})

	a, _ := r.Register(ObligationTransaction, testTxHash("a"), "prop-a", 100) // deadline 110
	if _, err := r.Register(ObligationTransaction, testTxHash("b"), "prop-a", 105); err != nil {
		t.Fatalf("Register: %v", err) // deadline 115
	}

	due := r.DueBy(110)
	if len(due) != 1 || due[0].ID != a.ID {
		t.Fatalf("DueBy(110) = %d entries, want only the first obligation", len(due))
	}
	if len(r.DueBy(109)) != 0 {
		t.Fatal("DueBy(109) must be empty")
	}
	if len(r.DueBy(115)) != 2 {
		t.Fatal("DueBy(115) must cover both")
	}

	// Satisfied obligations drop out of the due set.
	if err := r.MarkIncluded(a.ID, 108); err != nil {
		t.Fatalf("MarkIncluded: %v", err)
	}
	if len(r.DueBy(110)) != 0 {
		t.Fatal("included obligation still reported due")
	}
}

func TestExpireOverdue(t *testing.T) {
	r := newTestRegistry(t, Config{ObligationTimeoutBlocks: 10})
	ob, _ := r.Register(ObligationTransaction, testTxHash("a"), "prop-a", 100) // deadline 110

	if n := r.ExpireOverdue(110); n != 0 {
		t.Fatalf("at deadline: expired %d, want 0", n)
	}
	if n := r.ExpireOverdue(111); n != 1 {
		t.Fatalf("past deadline: expired %d, want 1", n)
	}
	got, _ := r.Get(ob.ID)
	if got.Status != StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
	// Idempotent.
	if n := r.ExpireOverdue(112); n != 0 {
		t.Fatalf("second pass expired %d, want 0", n)
	}
}

func TestPruneSettled(t *testing.T) {
	r := newTestRegistry(t, Config{ObligationTimeoutBlocks: 10, SlashingEvidenceRetentionBlocks: 50})

	kept, _ := r.Register(ObligationTransaction, testTxHash("kept"), "prop-a", 100)    // deadline 110
	pruned, _ := r.Register(ObligationTransaction, testTxHash("pruned"), "prop-a", 10) // deadline 20
	if err := r.MarkIncluded(pruned.ID, 15); err != nil {
		t.Fatalf("MarkIncluded: %v", err)
	}

	// Pending obligations never prune, settled ones prune after retention.
	if n := r.PruneSettled(200); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if _, err := r.Get(pruned.ID); !errors.Is(err, ErrObligationNotFound) {
		t.Fatal("settled obligation survived pruning")
	}
	if _, err := r.Get(kept.ID); err != nil {
		t.Fatal("pending obligation must survive pruning")
	}
	if len(r.ByProposer("prop-a")) != 1 {
		t.Fatal("proposer index not updated by pruning")
	}
}

func TestConfigDefaults(t *testing.T) {
	r := newTestRegistry(t, Config{})
	if r.Config() != DefaultConfig() {
		t.Fatalf("effective config %+v, want defaults", r.Config())
	}

	if _, err := NewObligationRegistry(Config{
		ObligationTimeoutBlocks: 4,
		EnforcementWindowBlocks: 8,
	}); !errors.Is(err, ErrConfigWindow) {
		t.Fatalf("window > timeout: got %v, want ErrConfigWindow", err)
	}
}
