package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/uhyunpark/pfhs/pkg/util"
)

// DefaultTimeoutMillis is the reference per-view wall-clock deadline for
// both primary (collecting votes/new-views) and non-primary (awaiting a
// proposal) logic.
const DefaultTimeoutMillis = 4000

// pollInterval paces the non-blocking receive loop. Busy-polling at this
// granularity keeps CPU use reasonable without needing select-over-channel
// plumbing across two different Link backends (in-process and libp2p).
const pollInterval = time.Millisecond

// Identity is a validator's bootstrap-assigned name, keypair, and
// deterministic index in 0..n used by primary_for_view.
type Identity struct {
	Name       string
	PrivateKey *PrivateKey
	Index      int
}

func (id Identity) PublicKey() *PublicKey { return id.PrivateKey.PublicKey() }

// WAL is the append-only advisory log an Endpoint may report committed
// blocks to. It is never read back on startup — the protocol carries no
// persistence/recovery guarantee across restarts (see DESIGN.md) — so this
// is strictly a write-only audit trail, not a recovery log.
type WAL interface {
	Append(line string)
}

// BlockStore is an optional durable mirror of committed blocks and
// certificates, written alongside the WAL as each block commits. Like WAL,
// it is never read back by this package — the protocol carries no
// persistence/recovery guarantee across restarts (see DESIGN.md) — so it
// exists purely for operators and tooling to inspect committed history
// after the fact. A write failure here is reported to Log, never fatal: a
// disk hiccup on the diagnostic store must not take down a validator
// mid-commit.
type BlockStore interface {
	SaveBlock(h Blockhash, b Block) error
	SaveCert(v View, c QuorumCertificate) error
	SetCommitted(h Blockhash) error
}

// Endpoint is the per-validator state machine: identity, peer table,
// quorum, and the monotonic view loop over primary and non-primary logic.
type Endpoint struct {
	Identity Identity
	Peers    []Peer
	Quorum   *Quorum

	Timeout time.Duration
	Clock   util.Clock

	CurrentView View
	RecentViews []ValidatorView
	SelfVote    *SignedMessage
	HighCert    QuorumCertificate

	// Execute is invoked once per committed block, in commit order. It is
	// the sole side effect the core exposes; block execution itself is
	// opaque to consensus.
	Execute func(Block)
	Log     *zap.SugaredLogger
	WAL     WAL

	// BlockStore receives a durable mirror of every block this validator
	// commits. Nil means no durable mirror is kept; consensus behaviour is
	// identical either way.
	BlockStore BlockStore

	// Mempool supplies the transactions a primary embeds in its proposal.
	// Nil means every proposal carries an empty transaction batch, which
	// is always a valid Block — consensus never predicates safety on
	// transaction contents.
	Mempool Mempool

	// MaxTxsPerBlock bounds how many pending transactions a primary pulls
	// per proposal. <= 0 means no limit.
	MaxTxsPerBlock int

	// Metrics receives advisory counters/gauges alongside the Log lines
	// already emitted at the same points. Nil means no metrics are
	// recorded; consensus behaviour is identical either way.
	Metrics Metrics

	// BroadcastTransport, when set, carries block proposals out over a
	// single one-to-many send instead of the per-peer Link.Send loop. Votes
	// and new-views stay point-to-point regardless, since each has exactly
	// one destination (the next view's leader).
	BroadcastTransport Broadcaster
}

// Broadcaster is a one-to-many transport for block proposals, the role
// pkg/p2p.Host fills with a gossipsub topic. The in-process cluster fixture
// has no need for it: fanning a Block out over per-peer Links already costs
// nothing there.
type Broadcaster interface {
	Broadcast(msg SignedMessage) error
}

// Metrics is the advisory instrumentation hook an Endpoint reports into.
// pkg/metrics.Collector is the Prometheus-backed implementation; nothing
// in pkg/consensus depends on Prometheus directly.
type Metrics interface {
	OnViewStart(validator string, view uint64)
	OnViewAbandoned(validator string)
	OnProposed(validator string)
	OnCommitted(validator string)
}

// Mempool supplies pending, opaque transactions to embed in a proposal.
// pkg/mempool.Mempool satisfies this; consensus depends only on the
// interface so it never needs to know how transactions were admitted or
// signed.
type Mempool interface {
	SelectForProposal(max int) []Transaction
}

// NewEndpoint constructs an Endpoint ready to run from view 1. The genesis
// certificate is the implicit HighCert until the validator observes or
// builds something better.
func NewEndpoint(id Identity, peers []Peer, quorum *Quorum, clock util.Clock, timeout time.Duration, log *zap.SugaredLogger) *Endpoint {
	return &Endpoint{
		Identity: id,
		Peers:    peers,
		Quorum:   quorum,
		Clock:    clock,
		Timeout:  timeout,
		HighCert: GenesisCertificate(),
		Log:      log,
	}
}

func (e *Endpoint) primaryIndex(v View) int { return PrimaryForView(v, e.Quorum.N()) }

// IsPrimary reports whether this validator leads view v.
func (e *Endpoint) IsPrimary(v View) bool { return e.primaryIndex(v) == e.Identity.Index }

func (e *Endpoint) peerByIndex(i int) *Peer {
	for idx := range e.Peers {
		if e.Peers[idx].Index == i {
			return &e.Peers[idx]
		}
	}
	return nil
}

func (e *Endpoint) broadcast(msg SignedMessage) {
	if e.BroadcastTransport != nil {
		if err := e.BroadcastTransport.Broadcast(msg); err != nil && e.Log != nil {
			e.Log.Warnw("broadcast_failed", "validator", e.Identity.Name, "err", err)
		}
		return
	}
	for i := range e.Peers {
		_ = e.Peers[i].Link.Send(msg)
	}
}

// StartConsensus blocks, driving views 1..maxView. It returns only on
// context cancellation or after maxView completes; per-view failures
// (timeouts, dropped messages) never surface as an error here, matching
// the protocol's local-recovery error policy.
func (e *Endpoint) StartConsensus(ctx context.Context, maxView View) error {
	for v := View(1); v <= maxView; v++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.CurrentView = v
		if e.Log != nil {
			e.Log.Infow("view_start", "validator", e.Identity.Name, "view", uint64(v))
		}
		if e.Metrics != nil {
			e.Metrics.OnViewStart(e.Identity.Name, uint64(v))
		}
		if e.IsPrimary(v) {
			e.primaryLogic(ctx)
		} else if peer := e.peerByIndex(e.primaryIndex(v)); peer != nil {
			e.nonPrimaryLogic(ctx, peer)
		}
	}
	return nil
}

type voteEntry struct {
	pk  *PublicKey
	sig Signature
}

// primaryLogic runs when this validator leads CurrentView. See §4.5: seed
// the tally from a stashed self-vote, short-circuit to Genesis at v==1,
// otherwise drain peer channels until a supermajority of votes or
// new-views is assembled or the deadline elapses.
func (e *Endpoint) primaryLogic(ctx context.Context) {
	v := e.CurrentView

	votesReceived := map[Vote][]voteEntry{}
	seenVoteSigner := map[Vote]map[string]bool{}

	var nvViews []NewView
	var nvEta []Signature
	var nvSigners []*PublicKey
	seenNVSigner := map[string]bool{}

	var certificate QuorumCertificate
	built := false

	if e.SelfVote != nil && e.SelfVote.MessageType.Kind == KindVote && e.SelfVote.MessageType.Vote.View == v-1 {
		sv := *e.SelfVote
		e.SelfVote = nil
		// Route the stashed self-vote through the same tally path a peer's
		// vote takes, so the seed is checked for supermajority immediately —
		// load-bearing when this validator leads v-1 and v back to back
		// (always true at n=1), since no peer vote will ever arrive to
		// trigger that check afterwards.
		e.tallyVote(v, sv, votesReceived, seenVoteSigner, &certificate, &built)
	}

	switch {
	case built:
		// Self-vote alone already cleared supermajority — always true when
		// this validator leads v-1 and v back to back (n=1).
	case v == 1:
		certificate = GenesisCertificate()
		built = true
	default:
		deadline := e.Clock.Now().Add(e.Timeout)
		for !built && e.Clock.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return
			default:
			}
			for i := range e.Peers {
				msg, ok := e.Peers[i].Link.TryRecv()
				if !ok {
					continue
				}
				if !msg.Verify() || !e.Quorum.Contains(msg.Transmitter) {
					continue
				}
				switch msg.MessageType.Kind {
				case KindVote:
					e.tallyVote(v, msg, votesReceived, seenVoteSigner, &certificate, &built)
				case KindNewView:
					e.tallyNewView(v, msg, &nvViews, &nvEta, &nvSigners, seenNVSigner, &certificate, &built)
				case KindBlock:
					// primary never consumes proposals
				}
				if built {
					break
				}
			}
			if !built {
				e.sleepPoll(ctx)
			}
		}
		if !built {
			if e.Log != nil {
				e.Log.Infow("view_abandoned", "validator", e.Identity.Name, "view", uint64(v))
			}
			if e.Metrics != nil {
				e.Metrics.OnViewAbandoned(e.Identity.Name)
			}
			return
		}
	}

	last := GenesisMarker()
	if n := len(e.RecentViews); n > 0 {
		last = e.RecentViews[n-1].Blockhash
	}
	var txs []Transaction
	if e.Mempool != nil {
		txs = e.Mempool.SelectForProposal(e.MaxTxsPerBlock)
	}
	block := Block{Transactions: txs, Certificate: certificate, LastBlockhash: last, View: v}
	signed := SignBlock(block, e.Identity.PrivateKey)
	e.HighCert = certificate
	e.RecentViews = append(e.RecentViews, ValidatorView{
		Height: v, Leader: e.Identity.PublicKey(), Block: block, Blockhash: signed.Blockhash(),
	})
	e.broadcast(signed)
	if e.Log != nil {
		e.Log.Infow("proposed", "validator", e.Identity.Name, "view", uint64(v),
			"blockhash", base58.Encode(signed.Blockhash().Bytes()))
	}
	if e.Metrics != nil {
		e.Metrics.OnProposed(e.Identity.Name)
	}

	// A primary must also vote for its own proposal: otherwise a validator
	// leading two consecutive views (always true at n=1, since v mod n is
	// the same index every view) never contributes its own signature to the
	// next view's tally, so back-to-back leadership can never form a QC and
	// the pipeline stalls forever. This mirrors nonPrimaryLogic's vote
	// dispatch and commit check exactly.
	vote := Vote{View: v, Blockhash: last}
	e.dispatchVote(v, SignVote(vote, e.Identity.PrivateKey))
	e.maybeCommit()
}

func (e *Endpoint) tallyVote(v View, msg SignedMessage, votesReceived map[Vote][]voteEntry, seen map[Vote]map[string]bool, certificate *QuorumCertificate, built *bool) {
	vt := msg.MessageType.Vote
	if vt.View != v-1 {
		return
	}
	key := string(msg.Transmitter.Bytes())
	if seen[vt] == nil {
		seen[vt] = map[string]bool{}
	}
	if seen[vt][key] {
		return
	}
	seen[vt][key] = true
	votesReceived[vt] = append(votesReceived[vt], voteEntry{pk: msg.Transmitter, sig: msg.Signature})

	entries := votesReceived[vt]
	if !IsSupermajority(len(entries), e.Quorum.N()) {
		return
	}
	signers := make([]*PublicKey, len(entries))
	sigs := make([]Signature, len(entries))
	for j, ent := range entries {
		signers[j] = ent.pk
		sigs[j] = ent.sig
	}
	qc, err := QCFromVotes(vt, sigs, signers, e.Identity.PrivateKey)
	if err != nil {
		return
	}
	*certificate = HappyCertificate(qc)
	*built = true
}

func (e *Endpoint) tallyNewView(v View, msg SignedMessage, nvViews *[]NewView, nvEta *[]Signature, nvSigners *[]*PublicKey, seen map[string]bool, certificate *QuorumCertificate, built *bool) {
	nv := msg.MessageType.NewView
	if nv.View != v {
		return
	}
	key := string(msg.Transmitter.Bytes())
	if seen[key] {
		return
	}
	seen[key] = true
	*nvViews = append(*nvViews, nv)
	*nvEta = append(*nvEta, nv.EtaSig)
	*nvSigners = append(*nvSigners, msg.Transmitter)

	if !IsSupermajority(len(*nvSigners), e.Quorum.N()) {
		return
	}
	agg, err := AggQCFromNewViews(*nvViews, *nvEta, *nvSigners, e.Identity.PrivateKey)
	if err != nil {
		return
	}
	*certificate = SadCertificate(agg)
	*built = true
}

// nonPrimaryLogic runs when peer leads CurrentView. See §4.6: poll only
// peer's channel until a Block arrives that passes the relevant safety
// predicate, vote for it, route the vote to the next leader, and check the
// three-chain commit rule.
func (e *Endpoint) nonPrimaryLogic(ctx context.Context, primary *Peer) {
	v := e.CurrentView
	deadline := e.Clock.Now().Add(e.Timeout)

	var accepted *SignedMessage
	for accepted == nil && e.Clock.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if msg, ok := primary.Link.TryRecv(); ok {
			if msg.Verify() && e.Quorum.Contains(msg.Transmitter) && msg.MessageType.Kind == KindBlock {
				block := msg.MessageType.Block
				if e.acceptableProposal(block, v) {
					m := msg
					accepted = &m
				}
			}
		}
		if accepted == nil {
			e.sleepPoll(ctx)
		}
	}

	if accepted == nil {
		e.onViewTimeout(v)
		if e.Log != nil {
			e.Log.Infow("view_timeout", "validator", e.Identity.Name, "view", uint64(v))
		}
		if e.Metrics != nil {
			e.Metrics.OnViewAbandoned(e.Identity.Name)
		}
		return
	}

	block := accepted.MessageType.Block
	if e.Log != nil {
		e.Log.Infow("proposal_received", "validator", e.Identity.Name, "view", uint64(v),
			"blockhash", base58.Encode(accepted.Blockhash().Bytes()))
	}
	e.HighCert = block.Certificate

	vote := Vote{View: v, Blockhash: block.LastBlockhash}
	e.dispatchVote(v, SignVote(vote, e.Identity.PrivateKey))

	e.RecentViews = append(e.RecentViews, ValidatorView{
		Height: block.View, Leader: accepted.Transmitter, Block: block, Blockhash: accepted.Blockhash(),
	})
	e.maybeCommit()
}

func (e *Endpoint) acceptableProposal(b Block, currentView View) bool {
	switch b.Certificate.Kind {
	case CertGenesis:
		return currentView == 1
	case CertHappy:
		return b.Certificate.QC.Valid(e.Quorum) && PipelineSafeBlockQC(b, b.Certificate.QC, currentView)
	case CertSad:
		return b.Certificate.AggQC.Valid(e.Quorum) && PipelineSafeBlockAggQC(b, b.Certificate.AggQC, currentView)
	default:
		return false
	}
}

// dispatchVote routes a vote to the leader of the next view, using the
// self-vote shortcut when this validator leads it too.
func (e *Endpoint) dispatchVote(v View, signed SignedMessage) {
	nextIdx := e.primaryIndex(v + 1)
	if nextIdx == e.Identity.Index {
		e.SelfVote = &signed
		return
	}
	if p := e.peerByIndex(nextIdx); p != nil {
		_ = p.Link.Send(signed)
	}
}

// onViewTimeout emits a NewView disclosing this validator's highest known
// certificate to the next view's leader, making Sad/AggQC recovery
// reachable. The reference behaviour this spec was distilled from abandons
// the view silently instead (see DESIGN.md, Open Question 1); this is the
// one place this implementation goes beyond that reference.
func (e *Endpoint) onViewTimeout(v View) {
	nv := NewView{View: v + 1, Certificate: e.HighCert}
	if e.HighCert.Kind == CertHappy {
		nv.EtaSig = SignEta(e.HighCert.QC, e.Identity.PrivateKey)
	}
	signed := SignNewView(nv, e.Identity.PrivateKey)

	nextIdx := e.primaryIndex(v + 1)
	if nextIdx == e.Identity.Index {
		return
	}
	if p := e.peerByIndex(nextIdx); p != nil {
		_ = p.Link.Send(signed)
	}
}

// maybeCommit applies the three-chain rule over the three most recent
// views: latest, parent, grandparent.
func (e *Endpoint) maybeCommit() {
	n := len(e.RecentViews)
	if n < 3 {
		return
	}
	latest, parent, grandparent := e.RecentViews[n-1], e.RecentViews[n-2], e.RecentViews[n-3]
	if latest.Block.LastBlockhash == parent.Blockhash && parent.Block.LastBlockhash == grandparent.Blockhash {
		e.commitUpTo(grandparent.Blockhash)
	}
}

// commitUpTo pops views from the front of RecentViews and executes each,
// stopping once the view matching target has been executed.
func (e *Endpoint) commitUpTo(target Blockhash) {
	for len(e.RecentViews) > 0 {
		head := e.RecentViews[0]
		e.RecentViews = e.RecentViews[1:]
		if e.Execute != nil {
			e.Execute(head.Block)
		}
		line := fmt.Sprintf("commit height=%d blockhash=%s", uint64(head.Height), base58.Encode(head.Blockhash.Bytes()))
		if e.WAL != nil {
			e.WAL.Append(line)
		}
		if e.BlockStore != nil {
			if err := e.BlockStore.SaveBlock(head.Blockhash, head.Block); err != nil && e.Log != nil {
				e.Log.Warnw("blockstore_save_block_failed", "validator", e.Identity.Name, "err", err)
			}
			if err := e.BlockStore.SaveCert(head.Height, head.Block.Certificate); err != nil && e.Log != nil {
				e.Log.Warnw("blockstore_save_cert_failed", "validator", e.Identity.Name, "err", err)
			}
			if err := e.BlockStore.SetCommitted(head.Blockhash); err != nil && e.Log != nil {
				e.Log.Warnw("blockstore_set_committed_failed", "validator", e.Identity.Name, "err", err)
			}
		}
		if e.Log != nil {
			e.Log.Infow("committed", "validator", e.Identity.Name, "height", uint64(head.Height),
				"blockhash", base58.Encode(head.Blockhash.Bytes()))
		}
		if e.Metrics != nil {
			e.Metrics.OnCommitted(e.Identity.Name)
		}
		if head.Blockhash == target {
			return
		}
	}
}

func (e *Endpoint) sleepPoll(ctx context.Context) {
	t := time.NewTimer(pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
