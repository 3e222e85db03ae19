package mempool

import (
	"math/rand"
	"testing"
)

func TestGeneratorSubmitOneEnqueuesVerifiableTransaction(t *testing.T) {
	gen, err := NewGenerator(3, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	pool := New()
	for i := 0; i < 10; i++ {
		if err := gen.SubmitOne(pool); err != nil {
			t.Fatalf("SubmitOne: %v", err)
		}
	}
	if pool.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", pool.Len())
	}
	for _, tx := range pool.SelectForProposal(0) {
		if !VerifyTransaction(tx) {
			t.Fatalf("generated transaction failed verification: %+v", tx)
		}
	}
}

func TestGeneratorUsesDistinctSubmitters(t *testing.T) {
	gen, err := NewGenerator(2, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if len(gen.signers) != 2 {
		t.Fatalf("expected 2 distinct submitters, got %d", len(gen.signers))
	}
	if gen.signers[0].Address() == gen.signers[1].Address() {
		t.Fatalf("expected distinct submitter addresses")
	}
}
