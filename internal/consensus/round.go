package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/internal/metrics"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

type decision int

const (
	undecided decision = iota
	accept
	reject
)

// Round is the review of one task. Decisions are only accepted while the round is
// reviewing; once the finalize transaction executes the round cannot be reopened.
type Round struct {
	mu sync.Mutex

	id          string
	orch        *Orchestrator
	task        *types.Task
	submissions map[uint64]*types.Submission
	order       []uint64
	decisions   map[uint64]decision

	state          State
	transitions    []Transition
	finalizeDigest string
	succeeded      []uint64
	failed         []pkgErrors.StatusUpdateFailure

	logger logging.Logger
	now    func() time.Time
}

func newRound(o *Orchestrator, task *types.Task, pending []*types.Submission) *Round {
	id := uuid.New().String()
	r := &Round{
		id:          id,
		orch:        o,
		task:        task,
		submissions: make(map[uint64]*types.Submission, len(pending)),
		decisions:   make(map[uint64]decision, len(pending)),
		state:       StateReviewing,
		logger:      o.logger.With("round", id, "task", task.TaskID),
		now:         time.Now,
	}
	for _, s := range pending {
		r.submissions[s.SubmissionID] = s
		r.order = append(r.order, s.SubmissionID)
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	r.logger.Info("Review round opened", "pending", len(r.order))
	return r
}

func (r *Round) ID() string {
	return r.id
}

func (r *Round) Task() *types.Task {
	return r.task
}

func (r *Round) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Round) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

// ToggleAccept marks id accepted, clearing any rejection. Accepting an already
// accepted submission clears the mark.
func (r *Round) ToggleAccept(id uint64) error {
	return r.toggle(id, accept)
}

// ToggleReject is the mirror of ToggleAccept.
func (r *Round) ToggleReject(id uint64) error {
	return r.toggle(id, reject)
}

func (r *Round) toggle(id uint64, d decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateReviewing {
		return &pkgErrors.GuardError{Rule: "review", Detail: fmt.Sprintf("round is %s.", r.state)}
	}
	if _, ok := r.submissions[id]; !ok {
		return &pkgErrors.ValidationError{Field: "submission_id", Reason: fmt.Sprintf("submission %d is not pending for task %d", id, r.task.TaskID)}
	}
	if r.decisions[id] == d {
		delete(r.decisions, id)
		return nil
	}
	r.decisions[id] = d
	return nil
}

func (r *Round) IsAccepted(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions[id] == accept
}

func (r *Round) IsRejected(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions[id] == reject
}

func (r *Round) Accepted() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idsLocked(accept)
}

func (r *Round) Rejected() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idsLocked(reject)
}

func (r *Round) Unreviewed() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idsLocked(undecided)
}

func (r *Round) idsLocked(d decision) []uint64 {
	ids := []uint64{}
	for _, id := range r.order {
		if r.decisions[id] == d {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Round) subsLocked(d decision) []*types.Submission {
	ids := r.idsLocked(d)
	subs := make([]*types.Submission, len(ids))
	for i, id := range ids {
		subs[i] = r.submissions[id]
	}
	return subs
}

// Validate checks both finalize gates without changing state.
func (r *Round) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validateLocked()
}

func (r *Round) validateLocked() error {
	if unreviewed := r.idsLocked(undecided); len(unreviewed) > 0 {
		return &pkgErrors.GuardError{
			Rule:   "review_incomplete",
			Detail: fmt.Sprintf("%d submission(s) still need a decision: %s.", len(unreviewed), joinIDs(unreviewed)),
		}
	}
	if len(r.idsLocked(accept)) == 0 {
		return &pkgErrors.GuardError{Rule: "no_accepted_submissions", Detail: "accept at least one submission to close the task."}
	}
	return nil
}

func (r *Round) transitionLocked(to State) {
	r.transitions = append(r.transitions, Transition{From: r.state, To: to, At: r.now()})
	r.logger.Debug("Review round transition", "from", r.state, "to", to)
	r.state = to
}

// Finalize submits the finalize transaction, then one status update per submission.
// A failure before or during the finalize transaction leaves the round reviewing with
// nothing written. A failure among the status updates leaves it partially failed and
// returns *PartialOrchestrationFailure; the finalize is not undone.
func (r *Round) Finalize(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateReviewing {
		state := r.state
		r.mu.Unlock()
		return &pkgErrors.GuardError{Rule: "finalize_consensus", Detail: fmt.Sprintf("round is %s.", state)}
	}
	r.transitionLocked(StateValidating)
	if err := r.validateLocked(); err != nil {
		r.transitionLocked(StateReviewing)
		r.mu.Unlock()
		r.logger.Info("Finalize refused", "reason", err.Error())
		metrics.ConsensusRoundsTotal.WithLabelValues(outcomeRefused).Inc()
		return err
	}
	accepted := r.subsLocked(accept)
	rejected := r.subsLocked(reject)
	intent, err := r.orch.builder.FinalizeConsensus(r.task, accepted, rejected)
	if err != nil {
		r.transitionLocked(StateReviewing)
		r.mu.Unlock()
		metrics.ConsensusRoundsTotal.WithLabelValues(outcomeRefused).Inc()
		return err
	}
	r.transitionLocked(StateSubmitting)
	r.mu.Unlock()

	effects, err := r.orch.wallet.SignAndExecute(ctx, intent)
	if err != nil {
		r.mu.Lock()
		r.transitionLocked(StateReviewing)
		r.mu.Unlock()
		r.logger.Warn("Finalize transaction failed", "error", err)
		metrics.ConsensusRoundsTotal.WithLabelValues(outcomeAborted).Inc()
		return err
	}

	r.mu.Lock()
	r.finalizeDigest = effects.Digest
	r.transitionLocked(StateDistributingStatuses)
	r.mu.Unlock()
	r.logger.Info("Consensus finalized", "digest", effects.Digest, "accepted", len(accepted), "rejected", len(rejected))

	// The finalize transaction has landed; the status updates must run to completion
	// even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	updates := make([]statusUpdate, 0, len(accepted)+len(rejected))
	for _, s := range accepted {
		updates = append(updates, statusUpdate{submission: s, accepted: true})
	}
	for _, s := range rejected {
		updates = append(updates, statusUpdate{submission: s, accepted: false})
	}
	succeeded, failed := r.distribute(ctx, updates)

	r.orch.cache.Invalidate(ctx, r.touchedKeys()...)
	return r.settle(succeeded, failed)
}

// RetryFailedStatuses re-issues the status updates that failed. Each submission is
// re-read first and only updated if the ledger still shows it pending.
func (r *Round) RetryFailedStatuses(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StatePartiallyFailed {
		state := r.state
		r.mu.Unlock()
		return &pkgErrors.GuardError{Rule: "retry_status_updates", Detail: fmt.Sprintf("round is %s.", state)}
	}
	previous := append([]pkgErrors.StatusUpdateFailure(nil), r.failed...)
	succeeded := append([]uint64(nil), r.succeeded...)
	r.transitionLocked(StateDistributingStatuses)
	r.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	var (
		updates []statusUpdate
		failed  []pkgErrors.StatusUpdateFailure
	)
	for _, f := range previous {
		current, err := r.orch.submissions.Submission(ctx, f.SubmissionID)
		if err != nil {
			failed = append(failed, pkgErrors.StatusUpdateFailure{SubmissionID: f.SubmissionID, Accepted: f.Accepted, Err: err})
			continue
		}
		if current.Status != types.SubmissionStatusPending {
			r.logger.Info("Status already applied, skipping", "submission", f.SubmissionID, "status", current.Status)
			succeeded = append(succeeded, f.SubmissionID)
			continue
		}
		updates = append(updates, statusUpdate{submission: current, accepted: f.Accepted})
	}

	retried, stillFailed := r.distribute(ctx, updates)
	succeeded = append(succeeded, retried...)
	failed = append(failed, stillFailed...)

	r.orch.cache.Invalidate(ctx, r.touchedKeys()...)
	return r.settle(succeeded, failed)
}

type statusUpdate struct {
	submission *types.Submission
	accepted   bool
}

// distribute issues every update and waits for all of them; one failure never stops
// the others. Updates start in slice order.
func (r *Round) distribute(ctx context.Context, updates []statusUpdate) ([]uint64, []pkgErrors.StatusUpdateFailure) {
	results := make([]error, len(updates))

	var g errgroup.Group
	g.SetLimit(r.orch.fanOut)
	for i, u := range updates {
		i, u := i, u
		g.Go(func() error {
			results[i] = r.issue(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	var (
		succeeded []uint64
		failed    []pkgErrors.StatusUpdateFailure
	)
	for i, u := range updates {
		id := u.submission.SubmissionID
		if results[i] != nil {
			r.logger.Warn("Status update failed", "submission", id, "accepted", u.accepted, "error", results[i])
			failed = append(failed, pkgErrors.StatusUpdateFailure{SubmissionID: id, Accepted: u.accepted, Err: results[i]})
			continue
		}
		succeeded = append(succeeded, id)
	}
	return succeeded, failed
}

func (r *Round) issue(ctx context.Context, u statusUpdate) error {
	intent, err := r.orch.builder.UpdateSubmissionStatus(u.submission, u.accepted)
	if err != nil {
		return err
	}
	_, err = r.orch.wallet.SignAndExecute(ctx, intent)
	return err
}

func (r *Round) settle(succeeded []uint64, failed []pkgErrors.StatusUpdateFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.succeeded = succeeded
	r.failed = failed
	if len(failed) == 0 {
		r.transitionLocked(StateDone)
		r.logger.Info("Review round done", "status_updates", len(succeeded))
		metrics.ConsensusRoundsTotal.WithLabelValues(outcomeDone).Inc()
		return nil
	}

	r.transitionLocked(StatePartiallyFailed)
	r.logger.Warn("Review round finalized with failed status updates", "succeeded", len(succeeded), "failed", len(failed))
	metrics.ConsensusRoundsTotal.WithLabelValues(outcomePartiallyFailed).Inc()
	return &pkgErrors.PartialOrchestrationFailure{
		Operation: "consensus finalize",
		Succeeded: append([]uint64(nil), succeeded...),
		Failed:    append([]pkgErrors.StatusUpdateFailure(nil), failed...),
	}
}

// touchedKeys lists every cache key a finalize can change.
func (r *Round) touchedKeys() []string {
	keys := []string{
		cache.KeyTask(r.task.TaskID),
		cache.KeySubmissionsByTask(r.task.TaskID),
		cache.KeyTasksByRequester(r.task.Requester),
		cache.KeyTasksAll,
		cache.KeySubmissionsAll,
	}
	for _, id := range r.order {
		labeler := r.submissions[id].Labeler
		keys = append(keys,
			cache.KeySubmissionsByLabeler(labeler),
			cache.KeyProfile(labeler),
			cache.KeyReputation(labeler),
		)
	}
	return keys
}

func (r *Round) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	accepted := r.idsLocked(accept)
	payout := r.task.PayoutPerLabeler()
	s := Summary{
		RoundID:          r.id,
		TaskID:           r.task.TaskID,
		State:            r.state,
		Accepted:         accepted,
		Rejected:         r.idsLocked(reject),
		Unreviewed:       r.idsLocked(undecided),
		PayoutPerLabeler: payout,
		TotalPayout:      payout * uint64(len(accepted)),
		FinalizeDigest:   r.finalizeDigest,
	}
	for _, f := range r.failed {
		s.FailedUpdates = append(s.FailedUpdates, f.SubmissionID)
	}
	return s
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("#%d", id)
	}
	return strings.Join(parts, ", ")
}
