// Package cluster assembles an in-process validator set wired together
// with Go channels, for tests and local demonstration runs. It is the Go
// counterpart of a thread-per-endpoint bootstrap harness: every validator
// gets a private key, a deterministic name, and a duplex Link to every
// other validator.
package cluster

import (
	crand "crypto/rand"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/pfhs/pkg/consensus"
	"github.com/uhyunpark/pfhs/pkg/crypto"
	"github.com/uhyunpark/pfhs/pkg/util"
)

// chanLink is the in-process consensus.Link implementation: one buffered
// Go channel per direction, so Send never blocks the caller on a slow or
// absent reader and TryRecv is naturally non-blocking.
type chanLink struct {
	out chan consensus.SignedMessage
	in  chan consensus.SignedMessage
}

const linkBuffer = 256

func newChanPair() (a, b *chanLink) {
	ab := make(chan consensus.SignedMessage, linkBuffer)
	ba := make(chan consensus.SignedMessage, linkBuffer)
	a = &chanLink{out: ab, in: ba}
	b = &chanLink{out: ba, in: ab}
	return a, b
}

func (l *chanLink) Send(msg consensus.SignedMessage) error {
	select {
	case l.out <- msg:
		return nil
	default:
		return fmt.Errorf("cluster: link buffer full")
	}
}

func (l *chanLink) TryRecv() (consensus.SignedMessage, bool) {
	select {
	case msg := <-l.in:
		return msg, true
	default:
		return consensus.SignedMessage{}, false
	}
}

// nameGen reproduces the five-name bootstrap cycle (alice, bob, carol,
// dave, eric) with a numeric generation suffix once a cluster exceeds five
// validators.
func nameGen(i int) string {
	basenames := [...]string{"alice", "bob", "carol", "dave", "eric"}
	generation := i / len(basenames)
	basename := basenames[i%len(basenames)]
	if generation == 0 {
		return basename
	}
	return fmt.Sprintf("%s%d", basename, generation)
}

// SetupCluster builds quorumSize = 3f+1 endpoints, fully meshed with
// in-process links, ready to run. All endpoints share a Clock and timeout;
// callers may override Log/Execute/WAL per endpoint after construction.
func SetupCluster(f int, timeout time.Duration, clock util.Clock, log *zap.SugaredLogger) ([]*consensus.Endpoint, error) {
	if f < 0 {
		return nil, fmt.Errorf("cluster: f must be >= 0, got %d", f)
	}
	quorumSize := 3*f + 1

	identities := make([]consensus.Identity, quorumSize)
	publicKeys := make([]*crypto.PublicKey, quorumSize)
	for i := 0; i < quorumSize; i++ {
		ikm := make([]byte, 32)
		if _, err := crand.Read(ikm); err != nil {
			return nil, fmt.Errorf("cluster: seed key material for %s: %w", nameGen(i), err)
		}
		sk, err := crypto.GenerateKey(ikm)
		if err != nil {
			return nil, fmt.Errorf("cluster: generate key for %s: %w", nameGen(i), err)
		}
		identities[i] = consensus.Identity{Name: nameGen(i), PrivateKey: sk, Index: i}
		publicKeys[i] = sk.PublicKey()
	}
	quorum := consensus.NewQuorum(publicKeys)

	peerTables := make([][]consensus.Peer, quorumSize)
	for one := 0; one < quorumSize; one++ {
		for two := 0; two < one; two++ {
			linkOne, linkTwo := newChanPair()
			peerTables[one] = append(peerTables[one], consensus.Peer{
				PublicKey: publicKeys[two], Index: two, Link: linkOne,
			})
			peerTables[two] = append(peerTables[two], consensus.Peer{
				PublicKey: publicKeys[one], Index: one, Link: linkTwo,
			})
		}
	}

	endpoints := make([]*consensus.Endpoint, quorumSize)
	for i := 0; i < quorumSize; i++ {
		var epLog *zap.SugaredLogger
		if log != nil {
			epLog = log.With("validator", identities[i].Name)
		}
		endpoints[i] = consensus.NewEndpoint(identities[i], peerTables[i], quorum, clock, timeout, epLog)
	}
	return endpoints, nil
}
