package mempool

import (
	"testing"

	"github.com/uhyunpark/pfhs/pkg/consensus"
	"github.com/uhyunpark/pfhs/pkg/crypto"
)

func mustSigner(t *testing.T) *crypto.TxSigner {
	t.Helper()
	s, err := crypto.NewTxSigner()
	if err != nil {
		t.Fatalf("NewTxSigner: %v", err)
	}
	return s
}

func TestSignAndSubmitProducesVerifiableTransaction(t *testing.T) {
	m := New()
	signer := mustSigner(t)
	tx, err := m.SignAndSubmit([]byte("payload"), signer)
	if err != nil {
		t.Fatalf("SignAndSubmit: %v", err)
	}
	if !VerifyTransaction(tx) {
		t.Fatalf("expected a freshly signed transaction to verify")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}

func TestVerifyTransactionRejectsTamperedPayload(t *testing.T) {
	m := New()
	signer := mustSigner(t)
	tx, err := m.SignAndSubmit([]byte("payload"), signer)
	if err != nil {
		t.Fatalf("SignAndSubmit: %v", err)
	}
	tx.Payload = []byte("tampered")
	if VerifyTransaction(tx) {
		t.Fatalf("expected tampered payload to fail verification")
	}
}

func TestSelectForProposalIsFIFOAndDrains(t *testing.T) {
	m := New()
	signer := mustSigner(t)
	for i := 0; i < 5; i++ {
		if _, err := m.SignAndSubmit([]byte{byte(i)}, signer); err != nil {
			t.Fatalf("SignAndSubmit: %v", err)
		}
	}

	first := m.SelectForProposal(2)
	if len(first) != 2 || first[0].Payload[0] != 0 || first[1].Payload[0] != 1 {
		t.Fatalf("expected the first 2 transactions in FIFO order, got %+v", first)
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 remaining", m.Len())
	}

	rest := m.SelectForProposal(0)
	if len(rest) != 3 {
		t.Fatalf("expected max<=0 to drain all remaining, got %d", len(rest))
	}
	if m.Len() != 0 {
		t.Fatalf("expected mempool to be empty after draining, got Len()=%d", m.Len())
	}
}

func TestSubmitAcceptsPreSignedTransaction(t *testing.T) {
	m := New()
	tx := consensus.Transaction{Payload: []byte("x"), Signature: []byte("sig"), PubKey: []byte("pub")}
	m.Submit(tx)
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
}
