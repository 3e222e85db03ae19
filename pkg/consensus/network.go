package consensus

// Link is the duplex conduit between one validator and one peer. Send is
// non-blocking from the producer's viewpoint; TryRecv is the required
// non-blocking receive variant. Per-link ordering is FIFO; no ordering is
// implied across links.
//
// pkg/cluster provides the in-process, Go-channel-backed implementation
// used by the bootstrap fixture; pkg/p2p provides a libp2p-backed
// implementation for a real network deployment.
type Link interface {
	Send(msg SignedMessage) error
	TryRecv() (SignedMessage, bool)
}

// Peer is one entry in a validator's ordered peer table: the peer's public
// key, its bootstrap index (used for primary_for_view), and the link to it.
type Peer struct {
	PublicKey *PublicKey
	Index     int
	Link      Link
}
