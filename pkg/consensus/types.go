package consensus

import (
	"github.com/uhyunpark/pfhs/pkg/codec"
	"github.com/uhyunpark/pfhs/pkg/crypto"
)

// PublicKey, PrivateKey and Signature are the opaque cryptographic handles
// the rest of this package operates on. They are BLS handles (see
// pkg/crypto/bls.go); consensus never reaches past the PublicKey/PrivateKey
// API to touch curve internals.
type PublicKey = crypto.PublicKey
type PrivateKey = crypto.PrivateKey
type Signature = crypto.Signature

// View is a monotonically increasing round number. View 0 is reserved for
// genesis and is never assigned to a validator as current_view.
type View uint64

// Blockhash identifies a block by the proposer's signature over its encoded
// block message. The same value doubles as the target of the next block's
// LastBlockhash, so equality here is plain byte equality.
type Blockhash struct {
	key string
}

// BlockhashFromSignature wraps a proposer's block signature as a Blockhash.
func BlockhashFromSignature(sig Signature) Blockhash {
	return Blockhash{key: string(sig)}
}

// BlockhashFromBytes reconstructs a Blockhash from its raw byte form, as
// returned by Bytes. Used when a storage layer round-trips a Blockhash
// through its own encoding.
func BlockhashFromBytes(b []byte) Blockhash { return Blockhash{key: string(b)} }

func (h Blockhash) Bytes() []byte { return []byte(h.key) }
func (h Blockhash) IsZero() bool  { return h.key == "" }

// GobEncode/GobDecode let Blockhash round-trip through encoding/gob despite
// its backing field being unexported; storage/codec.go's encodeGob relies
// on this.
func (h Blockhash) GobEncode() ([]byte, error) { return []byte(h.key), nil }
func (h *Blockhash) GobDecode(b []byte) error {
	h.key = string(b)
	return nil
}

// Vote attests that the signer observed the block identified by Blockhash
// at the given view. Vote is comparable (View is an integer, Blockhash
// wraps a single string) so it can be used directly as a map key when
// tallying votes by (view, blockhash).
type Vote struct {
	View      View
	Blockhash Blockhash
}

func (v Vote) EncodeCanonical(w *codec.Writer) {
	w.Uint64(uint64(v.View))
	w.LenPrefixed(v.Blockhash.Bytes())
}

// NewView is a validator's declaration, upon failing to observe a proposal
// in the view before View, of the highest certificate it holds; View is the
// view whose leader the NewView is sent to. EtaSig is the auxiliary
// per-signer commitment aggregated into an AggQC's AggregatedSignature; see
// SignEta for why this is a signature distinct from the NewView's own
// envelope signature.
type NewView struct {
	View        View
	Certificate QuorumCertificate
	EtaSig      Signature
}

func (n NewView) EncodeCanonical(w *codec.Writer) {
	w.Uint64(uint64(n.View))
	n.Certificate.EncodeCanonical(w)
	w.LenPrefixed(n.EtaSig)
}

// Transaction is opaque to consensus: payload bytes plus a detached ECDSA
// signature and signing public key. Consensus neither interprets the
// payload nor predicates anything on Verify's result; it exists purely so
// a Block has something to carry.
type Transaction struct {
	Payload   []byte
	Signature []byte
	PubKey    []byte
}

func (t Transaction) EncodeCanonical(w *codec.Writer) {
	w.LenPrefixed(t.Payload)
	w.LenPrefixed(t.Signature)
	w.LenPrefixed(t.PubKey)
}

// Block carries a certificate justifying entry into View, the hash of the
// parent block it extends, and a batch of opaque transactions.
type Block struct {
	Transactions  []Transaction
	Certificate   QuorumCertificate
	LastBlockhash Blockhash
	View          View
}

func (b Block) EncodeCanonical(w *codec.Writer) {
	codec.Slice(w, b.Transactions, func(w *codec.Writer, t Transaction) { t.EncodeCanonical(w) })
	b.Certificate.EncodeCanonical(w)
	w.LenPrefixed(b.LastBlockhash.Bytes())
	w.Uint64(uint64(b.View))
}

// ValidatorView is a validator's local record of a (possibly still
// uncommitted) step in the pipeline: the height it advanced to, who led it,
// the block itself, and the blockhash identifying it.
type ValidatorView struct {
	Height    View
	Leader    *PublicKey
	Block     Block
	Blockhash Blockhash
}
