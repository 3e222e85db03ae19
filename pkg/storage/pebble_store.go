package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/pfhs/pkg/consensus"
)

// PebbleStore is the optional durable diagnostic store, mirroring
// InMemoryBlockStore onto a pebble LSM. Like InMemoryBlockStore, nothing in
// the engine reads it back on startup: PFHS carries no persistence or
// recovery guarantee across restarts, so this exists for operators to
// inspect committed history after the fact, not for the engine to resume
// from.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: b:<blockhash>, c:<8-byte-view>, and "cm" for the committed blockhash
func kBlock(h consensus.Blockhash) []byte { return append([]byte("b:"), h.Bytes()...) }
func kCert(v consensus.View) []byte       { return append([]byte("c:"), viewKey(v)...) }
func kCommitted() []byte                  { return []byte("cm") }

// SaveBlock, SaveCert and SetCommitted report failures instead of
// panicking: a disk hiccup on this diagnostic store must not crash a
// validator mid-commit (see §7's drop-and-continue error policy), so
// callers are expected to log and carry on rather than treat this as fatal.
func (s *PebbleStore) SaveBlock(h consensus.Blockhash, b consensus.Block) error {
	val, err := encodeGob(b)
	if err != nil {
		return fmt.Errorf("pebble: encode block: %w", err)
	}
	if err := s.db.Set(kBlock(h), val, pebble.Sync); err != nil {
		return fmt.Errorf("pebble: save block: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetBlock(h consensus.Blockhash) (consensus.Block, bool) {
	val, closer, err := s.db.Get(kBlock(h))
	if err != nil {
		return consensus.Block{}, false
	}
	defer closer.Close()
	var out consensus.Block
	if err := decodeGob(val, &out); err != nil {
		return consensus.Block{}, false
	}
	return out, true
}

func (s *PebbleStore) SaveCert(v consensus.View, c consensus.QuorumCertificate) error {
	val, err := encodeGob(c)
	if err != nil {
		return fmt.Errorf("pebble: encode cert: %w", err)
	}
	if err := s.db.Set(kCert(v), val, pebble.Sync); err != nil {
		return fmt.Errorf("pebble: save cert: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetCert(v consensus.View) (consensus.QuorumCertificate, bool) {
	val, closer, err := s.db.Get(kCert(v))
	if err != nil {
		return consensus.QuorumCertificate{}, false
	}
	defer closer.Close()
	var out consensus.QuorumCertificate
	if err := decodeGob(val, &out); err != nil {
		return consensus.QuorumCertificate{}, false
	}
	return out, true
}

func (s *PebbleStore) SetCommitted(h consensus.Blockhash) error {
	if err := s.db.Set(kCommitted(), h.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("pebble: set committed: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetCommitted() (consensus.Blockhash, bool) {
	val, closer, err := s.db.Get(kCommitted())
	if err != nil {
		return consensus.Blockhash{}, false
	}
	defer closer.Close()
	return consensus.BlockhashFromBytes(val), true
}

var _ consensus.BlockStore = (*PebbleStore)(nil)
