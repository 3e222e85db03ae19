package consensus

import (
	"fmt"

	"github.com/uhyunpark/pfhs/pkg/codec"
	"github.com/uhyunpark/pfhs/pkg/crypto"
)

// CertKind discriminates the three QuorumCertificate variants.
type CertKind byte

const (
	CertGenesis CertKind = iota
	CertHappy
	CertSad
)

// QuorumCertificate is the closed sum type Happy(QC) | Sad(AggQC) | Genesis.
// Exactly one of QC / AggQC is populated, selected by Kind.
type QuorumCertificate struct {
	Kind  CertKind
	QC    *QC
	AggQC *AggQC
}

func GenesisCertificate() QuorumCertificate { return QuorumCertificate{Kind: CertGenesis} }
func HappyCertificate(qc *QC) QuorumCertificate {
	return QuorumCertificate{Kind: CertHappy, QC: qc}
}
func SadCertificate(agg *AggQC) QuorumCertificate {
	return QuorumCertificate{Kind: CertSad, AggQC: agg}
}

func (c QuorumCertificate) EncodeCanonical(w *codec.Writer) {
	w.Tag(byte(c.Kind))
	switch c.Kind {
	case CertHappy:
		c.QC.EncodeCanonical(w)
	case CertSad:
		c.AggQC.EncodeCanonical(w)
	}
}

// QC is the Happy certificate: proof that a supermajority signed the same
// Vote for view v-1.
type QC struct {
	Vote                Vote
	AggregatedSignature Signature
	Signers             []*PublicKey // insertion-ordered, paired positionally with the reconstructed messages during verification
	Signature           Signature
	Producer            *PublicKey
}

func (qc *QC) EncodeCanonical(w *codec.Writer) {
	qc.Vote.EncodeCanonical(w)
	w.LenPrefixed(qc.AggregatedSignature)
	codec.Slice(w, qc.Signers, func(w *codec.Writer, pk *PublicKey) { w.LenPrefixed(pk.Bytes()) })
	w.LenPrefixed(qc.Signature)
	w.LenPrefixed(qc.Producer.Bytes())
}

// signedBytes reconstructs the effective signed message `encode(pubkey) ‖
// encode(payload)` that the rogue-key discipline requires every signature
// in this package to be produced over.
func signedBytes(pk *PublicKey, payload []byte) []byte {
	w := codec.NewWriter()
	w.LenPrefixed(pk.Bytes())
	w.LenPrefixed(payload)
	return w.Bytes()
}

// QCFromVotes builds a Happy certificate from a supermajority of votes for
// the same (view, blockhash).
//
// Preconditions, assumed already checked by the caller (the endpoint's
// primary logic, which verifies each SignedMessage before it ever reaches
// the tally): every vote_signature in voteSignatures has already been
// verified against its corresponding signer in signers; all of them attest
// the same vote; len(signers) >= 2f+1.
func QCFromVotes(vote Vote, voteSignatures []Signature, signers []*PublicKey, producer *PrivateKey) (*QC, error) {
	if len(voteSignatures) != len(signers) {
		return nil, fmt.Errorf("qc: %d vote signatures for %d signers", len(voteSignatures), len(signers))
	}
	agg, err := crypto.Aggregate(voteSignatures)
	if err != nil {
		return nil, fmt.Errorf("qc: aggregate vote signatures: %w", err)
	}
	pk := producer.PublicKey()
	sig := producer.Sign(signedBytes(pk, agg))
	return &QC{
		Vote:                vote,
		AggregatedSignature: agg,
		Signers:             append([]*PublicKey(nil), signers...),
		Signature:           sig,
		Producer:            pk,
	}, nil
}

// Valid evaluates the three sub-predicates in ascending compute cost, short
// circuiting on the first failure:
//  1. |signers| > 2n/3
//  2. every signer belongs to the quorum
//  3. multi-message BLS verification of AggregatedSignature against each
//     signer's reconstructed `encode(signer_i) ‖ encode(Vote(vote))`
func (qc *QC) Valid(q *Quorum) bool {
	if qc == nil || q == nil {
		return false
	}
	if !IsSupermajority(len(qc.Signers), q.N()) {
		return false
	}
	for _, s := range qc.Signers {
		if !q.Contains(s) {
			return false
		}
	}
	voteMsg := codec.Encode(VoteMessage(qc.Vote))
	msgs := make([][]byte, len(qc.Signers))
	for i, s := range qc.Signers {
		msgs[i] = signedBytes(s, voteMsg)
	}
	return crypto.VerifyAggregate(qc.Signers, msgs, qc.AggregatedSignature)
}

// AggQC is the Sad certificate: proof that a supermajority sent NewView for
// the current view, each disclosing its highest known Happy QC. Signers[i]
// corresponds positionally to QCs[i]; this pairing is load-bearing for
// verification.
type AggQC struct {
	QCs                 []*QC
	AggregatedSignature Signature
	Signers             []*PublicKey
	Signature           Signature
	Producer            *PublicKey
}

func (a *AggQC) EncodeCanonical(w *codec.Writer) {
	codec.Slice(w, a.QCs, func(w *codec.Writer, qc *QC) { qc.EncodeCanonical(w) })
	w.LenPrefixed(a.AggregatedSignature)
	codec.Slice(w, a.Signers, func(w *codec.Writer, pk *PublicKey) { w.LenPrefixed(pk.Bytes()) })
	w.LenPrefixed(a.Signature)
	w.LenPrefixed(a.Producer.Bytes())
}

// AggQCFromNewViews builds a Sad certificate from a supermajority of
// NewView declarations for the current view.
//
// Only NewViews carrying a Happy certificate contribute an embedded QC;
// NewViews carrying Sad or Genesis certificates are dropped here, and their
// signer/eta-signature entries are dropped alongside them so that the
// positional pairing required by AggQC.Valid is preserved.
//
// views, etaSignatures and signers must be positionally aligned (views[i]
// was signed by signers[i], whose auxiliary commitment is etaSignatures[i]
// — see SignEta). Preconditions, assumed already checked by the caller:
// each etaSignatures[i] has already been verified; len(signers) >= 2f+1.
func AggQCFromNewViews(views []NewView, etaSignatures []Signature, signers []*PublicKey, producer *PrivateKey) (*AggQC, error) {
	if len(views) != len(signers) || len(etaSignatures) != len(signers) {
		return nil, fmt.Errorf("aggqc: mismatched views/etaSignatures/signers lengths")
	}
	var qcs []*QC
	var keptSigners []*PublicKey
	var keptEta []Signature
	for i, nv := range views {
		if nv.Certificate.Kind != CertHappy || nv.Certificate.QC == nil {
			continue
		}
		qcs = append(qcs, nv.Certificate.QC)
		keptSigners = append(keptSigners, signers[i])
		keptEta = append(keptEta, etaSignatures[i])
	}
	if len(qcs) == 0 {
		return nil, fmt.Errorf("aggqc: no Happy certificates among new-views")
	}
	agg, err := crypto.Aggregate(keptEta)
	if err != nil {
		return nil, fmt.Errorf("aggqc: aggregate eta signatures: %w", err)
	}
	pk := producer.PublicKey()
	sig := producer.Sign(signedBytes(pk, agg))
	return &AggQC{
		QCs:                 qcs,
		AggregatedSignature: agg,
		Signers:             keptSigners,
		Signature:           sig,
		Producer:            pk,
	}, nil
}

// Valid evaluates, short circuited:
//  1. |signers| > 2n/3
//  2. signers ⊆ quorum
//  3. the high QC (maximal vote.view among QCs) is itself Valid(q)
//  4. multi-message BLS verification of AggregatedSignature against each
//     signer's reconstructed `encode(signer_i) ‖ encode(QCs[i].AggregatedSignature)`
//
// Step 4's shape is load-bearing: each signer's NewView commitment was to
// *their own* high QC's aggregated signature, not to the whole NewView.
func (a *AggQC) Valid(q *Quorum) bool {
	if a == nil || q == nil {
		return false
	}
	if !IsSupermajority(len(a.Signers), q.N()) {
		return false
	}
	for _, s := range a.Signers {
		if !q.Contains(s) {
			return false
		}
	}
	high := a.FindHighQC()
	if high == nil || !high.Valid(q) {
		return false
	}
	if len(a.Signers) != len(a.QCs) {
		return false
	}
	msgs := make([][]byte, len(a.Signers))
	for i, s := range a.Signers {
		msgs[i] = signedBytes(s, a.QCs[i].AggregatedSignature)
	}
	return crypto.VerifyAggregate(a.Signers, msgs, a.AggregatedSignature)
}

// FindHighQC returns the embedded QC with the greatest Vote.View, or nil if
// AggQC carries no QCs.
func (a *AggQC) FindHighQC() *QC {
	if a == nil || len(a.QCs) == 0 {
		return nil
	}
	best := a.QCs[0]
	for _, qc := range a.QCs[1:] {
		if qc.Vote.View > best.Vote.View {
			best = qc
		}
	}
	return best
}
