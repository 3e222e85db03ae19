package storage

import (
	"path/filepath"
	"testing"

	"github.com/uhyunpark/pfhs/pkg/consensus"
)

func sampleBlock(view consensus.View) consensus.Block {
	return consensus.Block{
		Certificate:   consensus.GenesisCertificate(),
		LastBlockhash: consensus.GenesisMarker(),
		View:          view,
	}
}

func TestInMemoryBlockStoreRoundTrips(t *testing.T) {
	store := NewInMemoryBlockStore()
	h := consensus.BlockhashFromBytes([]byte("blockhash-1"))
	b := sampleBlock(1)

	if err := store.SaveBlock(h, b); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}
	got, ok := store.GetBlock(h)
	if !ok || got.View != b.View {
		t.Fatalf("expected round-tripped block with view %d, got %+v (ok=%v)", b.View, got, ok)
	}

	if err := store.SaveCert(1, b.Certificate); err != nil {
		t.Fatalf("SaveCert: %v", err)
	}
	if cert, ok := store.GetCert(1); !ok || cert.Kind != consensus.CertGenesis {
		t.Fatalf("expected round-tripped Genesis certificate, got %+v (ok=%v)", cert, ok)
	}

	if err := store.SetCommitted(h); err != nil {
		t.Fatalf("SetCommitted: %v", err)
	}
	if committed, ok := store.GetCommitted(); !ok || committed != h {
		t.Fatalf("expected GetCommitted to return the set blockhash")
	}
}

func TestInMemoryBlockStoreMissingKeys(t *testing.T) {
	store := NewInMemoryBlockStore()
	if _, ok := store.GetBlock(consensus.BlockhashFromBytes([]byte("nope"))); ok {
		t.Fatalf("expected GetBlock for an unsaved hash to report not-found")
	}
	if _, ok := store.GetCert(99); ok {
		t.Fatalf("expected GetCert for an unsaved view to report not-found")
	}
	if _, ok := store.GetCommitted(); ok {
		t.Fatalf("expected GetCommitted to report not-found before any SetCommitted call")
	}
}

func TestPebbleStoreRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPebbleStore(filepath.Join(dir, "blocks"))
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	defer store.Close()

	h := consensus.BlockhashFromBytes([]byte("blockhash-pebble"))
	b := sampleBlock(7)

	if err := store.SaveBlock(h, b); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}
	got, ok := store.GetBlock(h)
	if !ok || got.View != b.View {
		t.Fatalf("expected round-tripped block with view %d, got %+v (ok=%v)", b.View, got, ok)
	}

	if err := store.SaveCert(7, b.Certificate); err != nil {
		t.Fatalf("SaveCert: %v", err)
	}
	if cert, ok := store.GetCert(7); !ok || cert.Kind != consensus.CertGenesis {
		t.Fatalf("expected round-tripped Genesis certificate, got %+v (ok=%v)", cert, ok)
	}

	if err := store.SetCommitted(h); err != nil {
		t.Fatalf("SetCommitted: %v", err)
	}
	if committed, ok := store.GetCommitted(); !ok || committed != h {
		t.Fatalf("expected GetCommitted to return the set blockhash")
	}
}

func TestPebbleStoreMissingKeyIsNotFoundNotPanic(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPebbleStore(filepath.Join(dir, "blocks"))
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	defer store.Close()

	if _, ok := store.GetBlock(consensus.BlockhashFromBytes([]byte("nope"))); ok {
		t.Fatalf("expected GetBlock for an unsaved hash to report not-found")
	}
}
