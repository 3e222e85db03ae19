package consensus

import (
	"github.com/uhyunpark/pfhs/pkg/codec"
	"github.com/uhyunpark/pfhs/pkg/crypto"
)

// MessageKind discriminates the three payload types a SignedMessage can carry.
type MessageKind byte

const (
	KindVote MessageKind = iota + 1
	KindNewView
	KindBlock
)

// MessageType is the closed sum type Vote | NewView | Block carried inside
// a SignedMessage envelope.
type MessageType struct {
	Kind    MessageKind
	Vote    Vote
	NewView NewView
	Block   Block
}

func VoteMessage(v Vote) MessageType       { return MessageType{Kind: KindVote, Vote: v} }
func NewViewMessage(n NewView) MessageType { return MessageType{Kind: KindNewView, NewView: n} }
func BlockMessage(b Block) MessageType     { return MessageType{Kind: KindBlock, Block: b} }

func (m MessageType) EncodeCanonical(w *codec.Writer) {
	w.Tag(byte(m.Kind))
	switch m.Kind {
	case KindVote:
		m.Vote.EncodeCanonical(w)
	case KindNewView:
		m.NewView.EncodeCanonical(w)
	case KindBlock:
		m.Block.EncodeCanonical(w)
	}
}

// SignedMessage wraps a typed payload with the transmitter's identity and a
// signature over encode(transmitter.pubkey) ‖ encode(message_type) — the
// same pubkey-prefixing discipline used throughout the certificate algebra.
type SignedMessage struct {
	MessageType MessageType
	Transmitter *PublicKey
	Signature   Signature
}

func sign(mt MessageType, signer *PrivateKey) SignedMessage {
	payload := codec.Encode(mt)
	pk := signer.PublicKey()
	return SignedMessage{
		MessageType: mt,
		Transmitter: pk,
		Signature:   signer.Sign(signedBytes(pk, payload)),
	}
}

func SignVote(v Vote, signer *PrivateKey) SignedMessage       { return sign(VoteMessage(v), signer) }
func SignNewView(n NewView, signer *PrivateKey) SignedMessage { return sign(NewViewMessage(n), signer) }

// SignBlock signs a Block proposal. The resulting Signature doubles as the
// canonical blockhash used in votes and in the next block's LastBlockhash.
func SignBlock(b Block, signer *PrivateKey) SignedMessage { return sign(BlockMessage(b), signer) }

// Verify reconstructs the signed bytes and checks Signature against
// Transmitter. Returns false (never panics) on any malformed input.
func (m SignedMessage) Verify() bool {
	if m.Transmitter == nil {
		return false
	}
	payload := codec.Encode(m.MessageType)
	return crypto.Verify(m.Transmitter, signedBytes(m.Transmitter, payload), m.Signature)
}

// Blockhash returns the blockhash identifying the proposal this message
// carries: the proposer's own signature over the encoded block message.
func (m SignedMessage) Blockhash() Blockhash { return BlockhashFromSignature(m.Signature) }

// SignEta produces the auxiliary commitment a validator attaches to a
// NewView carrying a Happy certificate: a signature over its own high QC's
// aggregated signature bytes. This is a deliberately distinct signature
// from the NewView's own envelope signature (which authenticates the whole
// NewView on the wire) because AggQC.Valid must reconstruct, per signer,
// exactly `encode(signer) ‖ encode(high_qc.aggregated_signature)` — not the
// full NewView payload each signer actually transmitted. See DESIGN.md for
// why the spec's certificate algebra requires this second signature.
func SignEta(highQC *QC, signer *PrivateKey) Signature {
	if highQC == nil {
		return nil
	}
	pk := signer.PublicKey()
	return signer.Sign(signedBytes(pk, highQC.AggregatedSignature))
}

// GenesisMarker is the view-1 LastBlockhash: the signature of the empty
// message under the all-zero BLS private key. Every validator computes it
// independently and identically; no agreement beyond the choice of
// constant is required.
func GenesisMarker() Blockhash {
	gk := crypto.GenesisPrivateKey()
	return BlockhashFromSignature(gk.Sign(nil))
}
