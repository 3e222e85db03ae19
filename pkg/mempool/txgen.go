package mempool

import (
	"fmt"
	"math/rand"

	"github.com/uhyunpark/pfhs/pkg/crypto"
)

// Generator produces synthetic, individually-signed transactions for a
// local devnet or load test, mirroring the teacher's randomized order
// generator but emitting opaque payload bytes instead of exchange orders —
// consensus never inspects a transaction's contents, so a devnet generator
// only needs to produce something that verifies.
type Generator struct {
	signers []*crypto.TxSigner
	rng     *rand.Rand
	seq     int
}

// NewGenerator creates numSubmitters simulated transaction authors, each
// with its own ECDSA keypair, sharing rng for payload randomness.
func NewGenerator(numSubmitters int, rng *rand.Rand) (*Generator, error) {
	signers := make([]*crypto.TxSigner, numSubmitters)
	for i := range signers {
		s, err := crypto.NewTxSigner()
		if err != nil {
			return nil, fmt.Errorf("mempool: generate submitter %d: %w", i, err)
		}
		signers[i] = s
	}
	return &Generator{signers: signers, rng: rng}, nil
}

// SubmitOne signs and enqueues a single synthetic transaction into pool
// from a randomly chosen simulated submitter.
func (g *Generator) SubmitOne(pool *Mempool) error {
	g.seq++
	signer := g.signers[g.rng.Intn(len(g.signers))]
	payload := []byte(fmt.Sprintf("tx:%d:from=%s", g.seq, signer.Address().Hex()))
	_, err := pool.SignAndSubmit(payload, signer)
	return err
}
