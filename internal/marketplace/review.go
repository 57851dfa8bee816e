package marketplace

import (
	"context"
	"fmt"

	"github.com/trigg3rX/labelmarket-backend/internal/consensus"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/env"
)

// StartReview opens a consensus round over the task's pending submissions, read fresh
// from the ledger. Only the requester may review.
func (s *Service) StartReview(ctx context.Context, taskID uint64) (*consensus.Round, error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	task, err := s.resolver.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(task.Requester, s.wallet.Address()) {
		return nil, &pkgErrors.GuardError{Rule: "start_review", Detail: "only the requester can review submissions."}
	}
	subs, err := s.resolver.SubmissionsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if subs.Skipped > 0 {
		s.logger.Warn("Refusing to review with unreadable submissions", "task", taskID, "skipped", subs.Skipped)
		return nil, &pkgErrors.GuardError{
			Rule:   "review_incomplete",
			Detail: fmt.Sprintf("%d submission(s) of task %d could not be read; try again shortly.", subs.Skipped, taskID),
		}
	}

	round, err := s.consensus.NewRound(task, subs.Items)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.rounds[round.ID()] = round
	s.mu.Unlock()
	return round, nil
}

// Review returns a round opened by StartReview.
func (s *Service) Review(roundID string) (*consensus.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[roundID]
	if !ok {
		return nil, fmt.Errorf("review %s: %w", roundID, pkgErrors.ErrNotFound)
	}
	return round, nil
}

// CloseReview forgets a round. Rounds that finalized cleanly are closed automatically
// by FinalizeReview.
func (s *Service) CloseReview(roundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rounds, roundID)
}

// FinalizeReview finalizes a round and keeps it around only if follow-up status
// updates still need a retry.
func (s *Service) FinalizeReview(ctx context.Context, roundID string) (*consensus.Round, error) {
	round, err := s.Review(roundID)
	if err != nil {
		return nil, err
	}
	err = round.Finalize(ctx)
	if round.State() == consensus.StateDone {
		s.CloseReview(roundID)
	}
	return round, err
}

// RetryReview re-issues the failed status updates of a partially failed round.
func (s *Service) RetryReview(ctx context.Context, roundID string) (*consensus.Round, error) {
	round, err := s.Review(roundID)
	if err != nil {
		return nil, err
	}
	err = round.RetryFailedStatuses(ctx)
	if round.State() == consensus.StateDone {
		s.CloseReview(roundID)
	}
	return round, err
}

func sameAddress(a, b string) bool {
	return env.NormalizeObjectID(a) == env.NormalizeObjectID(b)
}
