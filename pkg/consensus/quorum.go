package consensus

// Quorum is the fixed, known set of n = 3f+1 validators, ordered by their
// bootstrap-assigned index. Index order is what primary_for_view rotates
// over; any total order is valid provided every validator agrees on it
// (here: bootstrap assignment order, see pkg/cluster).
type Quorum struct {
	members []*PublicKey
}

func NewQuorum(members []*PublicKey) *Quorum {
	return &Quorum{members: append([]*PublicKey(nil), members...)}
}

func (q *Quorum) N() int { return len(q.members) }

// F returns the maximum number of Byzantine validators this quorum
// tolerates, derived from n = 3f+1.
func (q *Quorum) F() int { return (q.N() - 1) / 3 }

func (q *Quorum) Member(i int) *PublicKey { return q.members[i%len(q.members)] }

func (q *Quorum) Contains(pk *PublicKey) bool {
	for _, m := range q.members {
		if m.Equal(pk) {
			return true
		}
	}
	return false
}

// IsSupermajority reports whether k exceeds 2n/3 — the threshold every QC
// and AggQC must clear.
func IsSupermajority(k, n int) bool { return k > 2*n/3 }

// PrimaryForView selects the leader index for v by round-robin over the
// quorum's bootstrap order.
func PrimaryForView(v View, n int) int { return int(uint64(v) % uint64(n)) }
