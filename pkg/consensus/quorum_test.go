package consensus

import (
	"testing"

	"github.com/uhyunpark/pfhs/pkg/crypto"
)

func mustGenKey(t *testing.T, seed byte) *PrivateKey {
	t.Helper()
	ikm := make([]byte, 32)
	ikm[0] = seed
	sk, err := crypto.GenerateKey(ikm)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return sk
}

func TestPrimaryForViewRotatesRoundRobin(t *testing.T) {
	cases := []struct {
		v    View
		n    int
		want int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{4, 4, 0},
		{5, 4, 1},
		{7, 4, 3},
	}
	for _, c := range cases {
		if got := PrimaryForView(c.v, c.n); got != c.want {
			t.Errorf("PrimaryForView(%d, %d) = %d, want %d", c.v, c.n, got, c.want)
		}
	}
}

func TestIsSupermajority(t *testing.T) {
	cases := []struct {
		k, n int
		want bool
	}{
		{3, 4, true},
		{2, 4, false},
		{5, 7, true},
		{4, 7, false},
	}
	for _, c := range cases {
		if got := IsSupermajority(c.k, c.n); got != c.want {
			t.Errorf("IsSupermajority(%d, %d) = %v, want %v", c.k, c.n, got, c.want)
		}
	}
}

func TestQuorumFAndContains(t *testing.T) {
	keys := []*PrivateKey{mustGenKey(t, 1), mustGenKey(t, 2), mustGenKey(t, 3), mustGenKey(t, 4)}
	members := make([]*PublicKey, len(keys))
	for i, k := range keys {
		members[i] = k.PublicKey()
	}
	q := NewQuorum(members)

	if q.N() != 4 {
		t.Fatalf("N() = %d, want 4", q.N())
	}
	if q.F() != 1 {
		t.Fatalf("F() = %d, want 1", q.F())
	}
	if !q.Contains(members[0]) {
		t.Fatalf("expected quorum to contain its own member")
	}
	outsider := mustGenKey(t, 99).PublicKey()
	if q.Contains(outsider) {
		t.Fatalf("quorum should not contain a key outside its member set")
	}
}

func TestQuorumMemberWrapsAround(t *testing.T) {
	keys := []*PrivateKey{mustGenKey(t, 1), mustGenKey(t, 2)}
	members := []*PublicKey{keys[0].PublicKey(), keys[1].PublicKey()}
	q := NewQuorum(members)
	if !q.Member(2).Equal(members[0]) {
		t.Fatalf("Member(2) should wrap to index 0")
	}
}
