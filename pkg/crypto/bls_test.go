package crypto

import "testing"

func TestBLSSignAndVerify(t *testing.T) {
	sk, err := GenerateKey([]byte("validator-alice-seed-bytes-32!!!"))
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	msg := []byte("view=7")
	sig := sk.Sign(msg)
	if !Verify(sk.PublicKey(), msg, sig) {
		t.Fatal("expected signature to verify")
	}
	if Verify(sk.PublicKey(), []byte("view=8"), sig) {
		t.Fatal("signature over a different message must not verify")
	}
}

func TestBLSPublicKeyRoundTrip(t *testing.T) {
	sk, _ := GenerateKey([]byte("validator-bob-seed-bytes-32!!!!!"))
	b := sk.PublicKey().Bytes()
	pk2, err := PublicKeyFromBytes(b)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	if !sk.PublicKey().Equal(pk2) {
		t.Fatal("round-tripped public key should equal original")
	}
}

func TestBLSAggregateRogueKeyResistant(t *testing.T) {
	signers := []*PrivateKey{
		mustKey(t, "seed-one-32-bytes-padding-zzzzzz"),
		mustKey(t, "seed-two-32-bytes-padding-zzzzzz"),
		mustKey(t, "seed-three-32-bytes-padding-zzzz"),
	}

	pks := make([]*PublicKey, len(signers))
	msgs := make([][]byte, len(signers))
	sigs := make([]Signature, len(signers))
	for i, sk := range signers {
		pks[i] = sk.PublicKey()
		msgs[i] = append(append([]byte{}, pks[i].Bytes()...), []byte("vote:view=5")...)
		sigs[i] = sk.Sign(msgs[i])
	}

	agg, err := Aggregate(sigs)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !VerifyAggregate(pks, msgs, agg) {
		t.Fatal("expected aggregate to verify against per-signer prefixed messages")
	}

	// Tampering with one signer's message (as if the prefix were dropped,
	// collapsing distinct messages together) must break verification.
	msgs[1] = []byte("vote:view=5")
	if VerifyAggregate(pks, msgs, agg) {
		t.Fatal("aggregate must not verify once a message diverges from what was signed")
	}
}

func TestGenesisPrivateKeyDeterministic(t *testing.T) {
	a := GenesisPrivateKey()
	b := GenesisPrivateKey()
	if !a.PublicKey().Equal(b.PublicKey()) {
		t.Fatal("genesis key derivation must be deterministic across validators")
	}
	sigA := a.Sign(nil)
	sigB := b.Sign(nil)
	if len(sigA) == 0 || len(sigB) == 0 {
		t.Fatal("expected non-empty genesis signature")
	}
	if !Verify(a.PublicKey(), nil, sigB) {
		t.Fatal("genesis signature over the empty message must verify under the genesis key")
	}
}

func mustKey(t *testing.T, seed string) *PrivateKey {
	t.Helper()
	sk, err := GenerateKey([]byte(seed))
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return sk
}
