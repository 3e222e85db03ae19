package storage

import (
	"sync"

	"github.com/uhyunpark/pfhs/pkg/consensus"
)

// InMemoryBlockStore is a read side-channel for diagnostics and tests: it
// mirrors every block an Endpoint commits, with its certificate, keyed
// the same way the engine itself addresses them. It is not consulted by
// the engine and carries no recovery guarantee.
type InMemoryBlockStore struct {
	mu         sync.Mutex
	blocks     map[consensus.Blockhash]consensus.Block
	certByView map[consensus.View]consensus.QuorumCertificate
	committed  *consensus.Blockhash
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{
		blocks:     make(map[consensus.Blockhash]consensus.Block),
		certByView: make(map[consensus.View]consensus.QuorumCertificate),
	}
}

func (s *InMemoryBlockStore) SaveBlock(h consensus.Blockhash, b consensus.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[h] = b
	return nil
}

func (s *InMemoryBlockStore) GetBlock(h consensus.Blockhash) (consensus.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[h]
	return b, ok
}

func (s *InMemoryBlockStore) SaveCert(v consensus.View, c consensus.QuorumCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certByView[v] = c
	return nil
}

func (s *InMemoryBlockStore) GetCert(v consensus.View) (consensus.QuorumCertificate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certByView[v]
	return c, ok
}

func (s *InMemoryBlockStore) SetCommitted(h consensus.Blockhash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = &h
	return nil
}

func (s *InMemoryBlockStore) GetCommitted() (consensus.Blockhash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed == nil {
		return consensus.Blockhash{}, false
	}
	return *s.committed, true
}

var _ consensus.BlockStore = (*InMemoryBlockStore)(nil)
