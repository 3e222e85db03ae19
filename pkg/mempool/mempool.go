// Package mempool is the transaction intake layer a primary drains when
// filling a Block: a FIFO queue of signed, opaque transactions. Consensus
// itself never looks inside a Transaction's payload or predicates anything
// on Verify — that is this package's whole reason to exist, separate from
// pkg/consensus, mirroring the teacher's own split between consensus and
// its mempool.
package mempool

import (
	"sync"

	"github.com/uhyunpark/pfhs/pkg/consensus"
	"github.com/uhyunpark/pfhs/pkg/crypto"
)

// Mempool is a simple FIFO queue of admitted transactions, safe for
// concurrent use by the submitting client goroutines and the single
// primary goroutine that drains it once per view it leads.
type Mempool struct {
	mu      sync.Mutex
	pending []consensus.Transaction
}

func New() *Mempool { return &Mempool{} }

// SignAndSubmit signs payload with signer and enqueues the resulting
// Transaction. Submission never touches the BLS validator identities —
// signer is an ordinary ECDSA keypair, the Ethereum-compatible identity a
// transaction author holds independent of any validator.
func (m *Mempool) SignAndSubmit(payload []byte, signer *crypto.TxSigner) (consensus.Transaction, error) {
	sig, err := signer.SignPayload(payload)
	if err != nil {
		return consensus.Transaction{}, err
	}
	tx := consensus.Transaction{
		Payload:   append([]byte(nil), payload...),
		Signature: sig,
		PubKey:    signer.PublicKeyBytes(),
	}
	m.Submit(tx)
	return tx, nil
}

// Submit enqueues an already-constructed Transaction as-is, without
// re-signing it. Used when a transaction arrives pre-signed over the wire.
func (m *Mempool) Submit(tx consensus.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, tx)
}

// SelectForProposal removes and returns up to max pending transactions in
// FIFO admission order, for a primary to embed in its next Block. max <= 0
// means no limit.
func (m *Mempool) SelectForProposal(max int) []consensus.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max <= 0 || max >= len(m.pending) {
		out := m.pending
		m.pending = nil
		return out
	}
	out := append([]consensus.Transaction(nil), m.pending[:max]...)
	m.pending = m.pending[max:]
	return out
}

// Len reports the number of transactions currently queued.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// VerifyTransaction checks a Transaction's detached ECDSA signature
// against its carried payload and public key. Consensus never calls this
// — a block's certificate and pipeline safety are all it checks before
// voting — but an execution layer applying committed blocks, or a mempool
// doing admission control, needs it.
func VerifyTransaction(tx consensus.Transaction) bool {
	return crypto.VerifyPayloadSignature(tx.Payload, tx.PubKey, tx.Signature)
}
