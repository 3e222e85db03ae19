// Package p2p is the production consensus.Link transport: a libp2p host
// exchanging canonically-encoded SignedMessage envelopes. Point-to-point
// traffic (votes, new-views) goes out one direct stream per send, mirroring
// the unicast-stream shape the reference implementation used for vote
// delivery. Block proposals are a true one-to-many broadcast, so those go
// out over a gossipsub topic instead of N individual streams — the same
// propose/prepare split the teacher's own libp2p transport draws, adapted
// here to PFHS's three message kinds instead of HotStuff's four phases.
package p2p

import (
	"context"
	"fmt"
	"io"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/pfhs/pkg/consensus"
)

const (
	protocolID = protocol.ID("/pfhs/message/1.0.0")
	blockTopic = "/pfhs/block/1.0.0"
	linkBuffer = 256
)

// Config configures a Host.
type Config struct {
	ListenAddr string
	Logger     *zap.SugaredLogger
}

// Host owns one libp2p node and hands out a consensus.Link per peer it has
// ever sent to or received from, plus the gossipsub topic every host joins
// for block proposals.
type Host struct {
	h   host.Host
	log *zap.SugaredLogger

	mu    sync.Mutex
	links map[peer.ID]*link

	ps        *pubsub.PubSub
	topic     *pubsub.Topic
	sub       *pubsub.Subscription
	cancelSub context.CancelFunc
}

func NewHost(ctx context.Context, cfg Config) (*Host, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("p2p: parse listen addr: %w", err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("p2p: new host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("p2p: new gossipsub: %w", err)
	}
	topic, err := ps.Join(blockTopic)
	if err != nil {
		return nil, fmt.Errorf("p2p: join block topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("p2p: subscribe block topic: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	hs := &Host{
		h: h, log: cfg.Logger, links: make(map[peer.ID]*link),
		ps: ps, topic: topic, sub: sub, cancelSub: cancel,
	}
	h.SetStreamHandler(protocolID, hs.handleStream)
	go hs.handleBlockTopic(subCtx)
	if cfg.Logger != nil {
		cfg.Logger.Infow("p2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	}
	return hs, nil
}

func (hs *Host) ID() string { return hs.h.ID().String() }

func (hs *Host) Close() error {
	hs.cancelSub()
	hs.sub.Cancel()
	if err := hs.topic.Close(); err != nil && hs.log != nil {
		hs.log.Warnw("p2p_topic_close_failed", "err", err)
	}
	return hs.h.Close()
}

// Broadcast publishes msg to every subscriber of the shared block topic.
// Delivery to the local subscription itself is filtered out in
// handleBlockTopic so a proposer never loops its own proposal back in as a
// synthetic peer message.
func (hs *Host) Broadcast(msg consensus.SignedMessage) error {
	if err := hs.topic.Publish(context.Background(), consensus.EncodeSignedMessage(msg)); err != nil {
		return fmt.Errorf("p2p: publish block: %w", err)
	}
	return nil
}

var _ consensus.Broadcaster = (*Host)(nil)

// handleBlockTopic demuxes gossipsub deliveries into the per-publisher
// consensus.Link inbox, so nonPrimaryLogic keeps reading proposals off
// Peer.Link exactly as it does with the direct-stream transport; only the
// wire path differs.
func (hs *Host) handleBlockTopic(ctx context.Context) {
	for {
		m, err := hs.sub.Next(ctx)
		if err != nil {
			return
		}
		if m.ReceivedFrom == hs.h.ID() {
			continue
		}
		msg, err := consensus.DecodeSignedMessage(m.Data)
		if err != nil {
			if hs.log != nil {
				hs.log.Warnw("p2p_block_decode_failed", "peer", m.ReceivedFrom.String(), "err", err)
			}
			continue
		}
		l := hs.linkFor(m.GetFrom())
		select {
		case l.inbox <- msg:
		default:
			if hs.log != nil {
				hs.log.Warnw("p2p_inbox_full", "peer", m.GetFrom().String())
			}
		}
	}
}

// Connect dials addr (a multiaddr with an embedded peer ID) and returns a
// consensus.Link to the peer there. Calling Connect twice for the same
// peer returns the same Link.
func (hs *Host) Connect(ctx context.Context, addr string) (consensus.Link, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("p2p: parse peer addr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("p2p: resolve peer addr: %w", err)
	}
	if err := hs.h.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("p2p: connect: %w", err)
	}
	return hs.linkFor(info.ID), nil
}

func (hs *Host) linkFor(id peer.ID) *link {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if l, ok := hs.links[id]; ok {
		return l
	}
	l := &link{host: hs, peerID: id, inbox: make(chan consensus.SignedMessage, linkBuffer)}
	hs.links[id] = l
	return l
}

func (hs *Host) handleStream(s network.Stream) {
	defer s.Close()
	remote := s.Conn().RemotePeer()
	data, err := io.ReadAll(s)
	if err != nil {
		if hs.log != nil {
			hs.log.Warnw("p2p_stream_read_failed", "peer", remote.String(), "err", err)
		}
		return
	}
	msg, err := consensus.DecodeSignedMessage(data)
	if err != nil {
		if hs.log != nil {
			hs.log.Warnw("p2p_decode_failed", "peer", remote.String(), "err", err)
		}
		return
	}
	l := hs.linkFor(remote)
	select {
	case l.inbox <- msg:
	default:
		if hs.log != nil {
			hs.log.Warnw("p2p_inbox_full", "peer", remote.String())
		}
	}
}

// link is the per-peer consensus.Link: Send opens one stream per message
// (stateless, at PFHS's message rate this is simpler and cheap enough to
// avoid multiplexing one long-lived stream per direction); TryRecv drains
// the inbox the Host's single stream handler feeds.
type link struct {
	host   *Host
	peerID peer.ID
	inbox  chan consensus.SignedMessage
}

func (l *link) Send(msg consensus.SignedMessage) error {
	s, err := l.host.h.NewStream(context.Background(), l.peerID, protocolID)
	if err != nil {
		return fmt.Errorf("p2p: open stream to %s: %w", l.peerID, err)
	}
	defer s.Close()
	if _, err := s.Write(consensus.EncodeSignedMessage(msg)); err != nil {
		return fmt.Errorf("p2p: write to %s: %w", l.peerID, err)
	}
	return nil
}

func (l *link) TryRecv() (consensus.SignedMessage, bool) {
	select {
	case msg := <-l.inbox:
		return msg, true
	default:
		return consensus.SignedMessage{}, false
	}
}

var _ consensus.Link = (*link)(nil)
