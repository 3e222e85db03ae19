package consensus

import (
	"fmt"

	"github.com/uhyunpark/pfhs/pkg/codec"
	"github.com/uhyunpark/pfhs/pkg/crypto"
)

// This file is the read side of the EncodeCanonical methods declared
// alongside each type. It exists only for pkg/p2p: the in-process cluster
// fixture passes SignedMessage values directly over Go channels and never
// needs to leave canonical form, but a real network transport has to turn
// bytes back into structures.

func decodePublicKey(r *codec.Reader) (*PublicKey, error) {
	b, err := r.Bytes()
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return crypto.PublicKeyFromBytes(b)
}

func decodeBlockhash(r *codec.Reader) (Blockhash, error) {
	b, err := r.Bytes()
	if err != nil {
		return Blockhash{}, err
	}
	return BlockhashFromBytes(b), nil
}

func decodeVote(r *codec.Reader) (Vote, error) {
	view, err := r.Uint64()
	if err != nil {
		return Vote{}, err
	}
	bh, err := decodeBlockhash(r)
	if err != nil {
		return Vote{}, err
	}
	return Vote{View: View(view), Blockhash: bh}, nil
}

func decodeTransaction(r *codec.Reader) (Transaction, error) {
	payload, err := r.Bytes()
	if err != nil {
		return Transaction{}, err
	}
	sig, err := r.Bytes()
	if err != nil {
		return Transaction{}, err
	}
	pub, err := r.Bytes()
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{Payload: payload, Signature: sig, PubKey: pub}, nil
}

func decodeQC(r *codec.Reader) (*QC, error) {
	vote, err := decodeVote(r)
	if err != nil {
		return nil, err
	}
	aggSig, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	n, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	signers := make([]*PublicKey, n)
	for i := range signers {
		pk, err := decodePublicKey(r)
		if err != nil {
			return nil, err
		}
		signers[i] = pk
	}
	sig, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	producer, err := decodePublicKey(r)
	if err != nil {
		return nil, err
	}
	return &QC{
		Vote:                vote,
		AggregatedSignature: Signature(aggSig),
		Signers:             signers,
		Signature:           Signature(sig),
		Producer:            producer,
	}, nil
}

func decodeAggQC(r *codec.Reader) (*AggQC, error) {
	n, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	qcs := make([]*QC, n)
	for i := range qcs {
		qc, err := decodeQC(r)
		if err != nil {
			return nil, err
		}
		qcs[i] = qc
	}
	aggSig, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	m, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	signers := make([]*PublicKey, m)
	for i := range signers {
		pk, err := decodePublicKey(r)
		if err != nil {
			return nil, err
		}
		signers[i] = pk
	}
	sig, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	producer, err := decodePublicKey(r)
	if err != nil {
		return nil, err
	}
	return &AggQC{
		QCs:                 qcs,
		AggregatedSignature: Signature(aggSig),
		Signers:             signers,
		Signature:           Signature(sig),
		Producer:            producer,
	}, nil
}

func decodeQuorumCertificate(r *codec.Reader) (QuorumCertificate, error) {
	tag, err := r.Tag()
	if err != nil {
		return QuorumCertificate{}, err
	}
	switch CertKind(tag) {
	case CertGenesis:
		return GenesisCertificate(), nil
	case CertHappy:
		qc, err := decodeQC(r)
		if err != nil {
			return QuorumCertificate{}, err
		}
		return HappyCertificate(qc), nil
	case CertSad:
		agg, err := decodeAggQC(r)
		if err != nil {
			return QuorumCertificate{}, err
		}
		return SadCertificate(agg), nil
	default:
		return QuorumCertificate{}, fmt.Errorf("decode certificate: unknown kind %d", tag)
	}
}

func decodeBlock(r *codec.Reader) (Block, error) {
	n, err := r.Uint64()
	if err != nil {
		return Block{}, err
	}
	txs := make([]Transaction, n)
	for i := range txs {
		tx, err := decodeTransaction(r)
		if err != nil {
			return Block{}, err
		}
		txs[i] = tx
	}
	cert, err := decodeQuorumCertificate(r)
	if err != nil {
		return Block{}, err
	}
	last, err := decodeBlockhash(r)
	if err != nil {
		return Block{}, err
	}
	view, err := r.Uint64()
	if err != nil {
		return Block{}, err
	}
	return Block{Transactions: txs, Certificate: cert, LastBlockhash: last, View: View(view)}, nil
}

func decodeNewView(r *codec.Reader) (NewView, error) {
	view, err := r.Uint64()
	if err != nil {
		return NewView{}, err
	}
	cert, err := decodeQuorumCertificate(r)
	if err != nil {
		return NewView{}, err
	}
	eta, err := r.Bytes()
	if err != nil {
		return NewView{}, err
	}
	return NewView{View: View(view), Certificate: cert, EtaSig: Signature(eta)}, nil
}

func decodeMessageType(r *codec.Reader) (MessageType, error) {
	tag, err := r.Tag()
	if err != nil {
		return MessageType{}, err
	}
	switch MessageKind(tag) {
	case KindVote:
		v, err := decodeVote(r)
		if err != nil {
			return MessageType{}, err
		}
		return VoteMessage(v), nil
	case KindNewView:
		nv, err := decodeNewView(r)
		if err != nil {
			return MessageType{}, err
		}
		return NewViewMessage(nv), nil
	case KindBlock:
		b, err := decodeBlock(r)
		if err != nil {
			return MessageType{}, err
		}
		return BlockMessage(b), nil
	default:
		return MessageType{}, fmt.Errorf("decode message: unknown kind %d", tag)
	}
}

// EncodeSignedMessage produces the wire form of a SignedMessage: the
// canonical message type followed by the transmitter's public key and the
// signature, both length-prefixed.
func EncodeSignedMessage(m SignedMessage) []byte {
	w := codec.NewWriter()
	m.MessageType.EncodeCanonical(w)
	w.LenPrefixed(m.Transmitter.Bytes())
	w.LenPrefixed(m.Signature)
	return w.Bytes()
}

// DecodeSignedMessage parses the wire form produced by EncodeSignedMessage.
// It does not verify the signature; callers (as the in-process tally loops
// in endpoint.go already do for values handed to them directly) must call
// Verify before trusting the result.
func DecodeSignedMessage(b []byte) (SignedMessage, error) {
	r := codec.NewReader(b)
	mt, err := decodeMessageType(r)
	if err != nil {
		return SignedMessage{}, fmt.Errorf("decode signed message: %w", err)
	}
	transmitterBytes, err := r.Bytes()
	if err != nil {
		return SignedMessage{}, fmt.Errorf("decode signed message: %w", err)
	}
	transmitter, err := crypto.PublicKeyFromBytes(transmitterBytes)
	if err != nil {
		return SignedMessage{}, fmt.Errorf("decode signed message: %w", err)
	}
	sig, err := r.Bytes()
	if err != nil {
		return SignedMessage{}, fmt.Errorf("decode signed message: %w", err)
	}
	return SignedMessage{MessageType: mt, Transmitter: transmitter, Signature: Signature(sig)}, nil
}
