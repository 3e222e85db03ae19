package crypto

import (
	"encoding"
	"fmt"

	bls "github.com/cloudflare/circl/sign/bls"
)

// scheme fixes public keys to the G1 group and signatures to G2: the
// smaller-key / larger-signature trade-off (48-byte compressed public keys,
// 96-byte compressed signatures).
type scheme = bls.KeyG1SigG2

// PublicKey is a validator's BLS public key with a stable canonical byte
// encoding, suitable for use as the pubkey prefix in the rogue-key defense
// and as a map/set key once converted via Bytes().
type PublicKey struct {
	pk *bls.PublicKey[scheme]
}

// PrivateKey signs messages and exposes the corresponding PublicKey.
type PrivateKey struct {
	sk *bls.PrivateKey[scheme]
	pk *bls.PublicKey[scheme]
}

// Signature is an opaque BLS signature (or aggregate thereof) in its
// canonical compressed byte form.
type Signature []byte

// GenerateKey derives a private key from 32 bytes of key material. Real
// validators should source ikm from a CSPRNG; the all-zero seed is reserved
// for the protocol's well-known genesis identity (see GenesisPrivateKey).
func GenerateKey(ikm []byte) (*PrivateKey, error) {
	sk, err := bls.KeyGen[scheme](ikm, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("bls: key generation: %w", err)
	}
	return &PrivateKey{sk: sk, pk: sk.PublicKey()}, nil
}

// GenesisPrivateKey is the all-zero-byte private key referenced by the
// protocol's genesis marker: every validator derives it identically and
// uses it to sign the empty message, giving view-1 proposals a
// network-agreed last_blockhash without any coordination.
func GenesisPrivateKey() *PrivateKey {
	zero := make([]byte, 32)
	sk, err := GenerateKey(zero)
	if err != nil {
		// KeyGen over a fixed, well-formed 32-byte seed cannot fail; a
		// failure here means circl's API shape changed under us.
		panic(fmt.Errorf("bls: genesis key derivation: %w", err))
	}
	return sk
}

func (sk *PrivateKey) PublicKey() *PublicKey { return &PublicKey{pk: sk.pk} }

func (sk *PrivateKey) Sign(msg []byte) Signature {
	return Signature(bls.Sign(sk.sk, msg))
}

// Bytes returns the canonical compressed encoding of the public key.
func (pk *PublicKey) Bytes() []byte {
	m, ok := any(pk.pk).(encoding.BinaryMarshaler)
	if !ok {
		panic("bls: public key does not implement BinaryMarshaler")
	}
	b, err := m.MarshalBinary()
	if err != nil {
		panic(fmt.Errorf("bls: marshal public key: %w", err))
	}
	return b
}

// Equal reports whether two public keys encode to the same canonical bytes.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	a, b := pk.Bytes(), other.Bytes()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PublicKeyFromBytes parses a canonical public-key encoding, as produced by
// Bytes. Used when reconstructing a PublicKey embedded in a wire message.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	var pk bls.PublicKey[scheme]
	u, ok := any(&pk).(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, fmt.Errorf("bls: public key does not implement BinaryUnmarshaler")
	}
	if err := u.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("bls: unmarshal public key: %w", err)
	}
	return &PublicKey{pk: &pk}, nil
}

// GobEncode/GobDecode let PublicKey round-trip through encoding/gob despite
// its backing field being unexported; storage's diagnostic stores persist
// certificates (which embed PublicKeys) this way.
func (pk *PublicKey) GobEncode() ([]byte, error) { return pk.Bytes(), nil }

func (pk *PublicKey) GobDecode(b []byte) error {
	parsed, err := PublicKeyFromBytes(b)
	if err != nil {
		return err
	}
	*pk = *parsed
	return nil
}

// Verify checks a single-message BLS signature.
func Verify(pk *PublicKey, msg []byte, sig Signature) bool {
	if pk == nil || len(sig) == 0 {
		return false
	}
	return bls.Verify(pk.pk, msg, bls.Signature(sig))
}

// Aggregate combines per-signer signatures into a single aggregate
// signature. Preconditions (checked by callers, per the certificate
// algebra): every input signature was produced over a distinct message,
// which is what defeats rogue-key attacks — see pkg/consensus's pubkey
// prefixing.
func Aggregate(sigs []Signature) (Signature, error) {
	raw := make([]bls.Signature, 0, len(sigs))
	for _, s := range sigs {
		if len(s) == 0 {
			continue
		}
		raw = append(raw, bls.Signature(s))
	}
	agg, err := bls.Aggregate(bls.G1{}, raw)
	if err != nil {
		return nil, fmt.Errorf("bls: aggregate: %w", err)
	}
	return Signature(agg), nil
}

// VerifyAggregate multi-message-verifies an aggregate signature: pks[i] must
// have signed msgs[i]. This is the rogue-key-resistant verification mode —
// every signer's message differs because it is prefixed with that signer's
// own public key.
func VerifyAggregate(pks []*PublicKey, msgs [][]byte, agg Signature) bool {
	if len(pks) == 0 || len(pks) != len(msgs) || len(agg) == 0 {
		return false
	}
	raw := make([]*bls.PublicKey[scheme], len(pks))
	for i, pk := range pks {
		if pk == nil {
			return false
		}
		raw[i] = pk.pk
	}
	return bls.VerifyAggregate(raw, msgs, bls.Signature(agg))
}
