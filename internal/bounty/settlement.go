package bounty

// Decision is the settlement verdict over the current set of proofs.
type Decision int

const (
	// AwaitingSecondProof: one proof in, the other participant has not
	// spoken yet.
	AwaitingSecondProof Decision = iota
	// Agreed: both participants named the same winner.
	Agreed
	// Conflicting: the proofs name different winners.
	Conflicting
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case AwaitingSecondProof:
		return "awaiting_second_proof"
	case Agreed:
		return "agreed"
	case Conflicting:
		return "conflicting"
	default:
		return "unknown"
	}
}

// Evaluate inspects the proofs submitted for a wager and decides how
// settlement should proceed. Pure decision logic; the state machine
// performs any resulting transitions. The winner return is only
// meaningful when the decision is Agreed.
//
// Proofs are capped at one per participant, so len > 2 never happens.
func Evaluate(proofs []*Proof) (Decision, string) {
	switch len(proofs) {
	case 0, 1:
		return AwaitingSecondProof, ""
	default:
		if proofs[0].ClaimedWinner == proofs[1].ClaimedWinner {
			return Agreed, proofs[0].ClaimedWinner
		}
		return Conflicting, ""
	}
}
