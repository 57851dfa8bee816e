package consensus

import "time"

// State of a review round.
type State string

const (
	StateReviewing            State = "reviewing"
	StateValidating           State = "validating"
	StateSubmitting           State = "submitting"
	StateDistributingStatuses State = "distributing_statuses"
	StateDone                 State = "done"
	StatePartiallyFailed      State = "partially_failed"
)

// Terminal reports whether the round has finalized on the ledger.
func (s State) Terminal() bool {
	return s == StateDone || s == StatePartiallyFailed
}

// Outcome labels for consensus_rounds_total.
const (
	outcomeDone            = "done"
	outcomePartiallyFailed = "partially_failed"
	outcomeRefused         = "refused"
	outcomeAborted         = "aborted"
)

type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Summary is a point-in-time view of a round for operators and the API.
type Summary struct {
	RoundID          string   `json:"round_id"`
	TaskID           uint64   `json:"task_id"`
	State            State    `json:"state"`
	Accepted         []uint64 `json:"accepted"`
	Rejected         []uint64 `json:"rejected"`
	Unreviewed       []uint64 `json:"unreviewed"`
	PayoutPerLabeler uint64   `json:"payout_per_labeler"`
	TotalPayout      uint64   `json:"total_payout"`
	FinalizeDigest   string   `json:"finalize_digest,omitempty"`
	FailedUpdates    []uint64 `json:"failed_updates,omitempty"`
}
