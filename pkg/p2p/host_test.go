package p2p

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/uhyunpark/pfhs/pkg/consensus"
	"github.com/uhyunpark/pfhs/pkg/crypto"
)

func mustHost(t *testing.T, ctx context.Context) *Host {
	t.Helper()
	h, err := NewHost(ctx, Config{ListenAddr: "/ip4/127.0.0.1/tcp/0"})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func hostAddr(h *Host) string {
	addrs := h.h.Addrs()
	return fmt.Sprintf("%s/p2p/%s", addrs[0].String(), h.ID())
}

func signedVote(t *testing.T, view consensus.View) consensus.SignedMessage {
	t.Helper()
	ikm := make([]byte, 32)
	ikm[0] = 0x42
	sk, err := crypto.GenerateKey(ikm)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	vote := consensus.Vote{View: view, Blockhash: consensus.BlockhashFromBytes([]byte("x"))}
	return consensus.SignVote(vote, sk)
}

func TestHostDirectStreamDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := mustHost(t, ctx)
	b := mustHost(t, ctx)

	link, err := a.Connect(ctx, hostAddr(b))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	msg := signedVote(t, 7)
	if err := link.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	bLink := b.linkFor(a.h.ID())
	for time.Now().Before(deadline) {
		if got, ok := bLink.TryRecv(); ok {
			if got.MessageType.Vote.View != msg.MessageType.Vote.View {
				t.Fatalf("received vote view %d, want %d", got.MessageType.Vote.View, msg.MessageType.Vote.View)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("did not receive the forwarded message within the deadline")
}

func TestHostBroadcastDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := mustHost(t, ctx)
	b := mustHost(t, ctx)

	if _, err := a.Connect(ctx, hostAddr(b)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// Give gossipsub time to establish the mesh between the two peers
	// before publishing; a cold topic can otherwise drop the first message.
	time.Sleep(300 * time.Millisecond)

	msg := signedVote(t, 9)
	if err := a.Broadcast(msg); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	bLink := b.linkFor(a.h.ID())
	for time.Now().Before(deadline) {
		if got, ok := bLink.TryRecv(); ok {
			if got.MessageType.Vote.View != msg.MessageType.Vote.View {
				t.Fatalf("received vote view %d, want %d", got.MessageType.Vote.View, msg.MessageType.Vote.View)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("did not receive the broadcast message within the deadline")
}
