package consensus

import (
	"context"
	"fmt"

	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/internal/wallet"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

// DefaultFanOut bounds how many status-update transactions are in flight at once.
const DefaultFanOut = 4

// Invalidator drops cache keys after a confirmed write.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string)
}

// SubmissionReader re-reads a submission from the ledger.
type SubmissionReader interface {
	Submission(ctx context.Context, submissionID uint64) (*types.Submission, error)
}

type Orchestrator struct {
	builder     *txbuilder.Builder
	wallet      wallet.Wallet
	cache       Invalidator
	submissions SubmissionReader
	fanOut      int
	logger      logging.Logger
}

func NewOrchestrator(builder *txbuilder.Builder, w wallet.Wallet, cache Invalidator, submissions SubmissionReader, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		builder:     builder,
		wallet:      w,
		cache:       cache,
		submissions: submissions,
		fanOut:      DefaultFanOut,
		logger:      logger,
	}
}

// NewRound opens a review of task. Only pending submissions of that task take part.
func (o *Orchestrator) NewRound(task *types.Task, submissions []*types.Submission) (*Round, error) {
	if task == nil {
		return nil, &pkgErrors.ValidationError{Field: "task", Reason: "is required"}
	}
	switch task.Status {
	case types.TaskStatusOpen, types.TaskStatusInProgress:
	default:
		return nil, &pkgErrors.GuardError{Rule: "start_review", Detail: fmt.Sprintf("task %d is %s.", task.TaskID, task.Status)}
	}

	seen := 0
	pending := make([]*types.Submission, 0, len(submissions))
	for _, s := range submissions {
		if s.TaskID != task.TaskID {
			continue
		}
		seen++
		if s.Status == types.SubmissionStatusPending {
			pending = append(pending, s)
		}
	}
	// The completeness gate only means something if the round covers every submission
	// the ledger counts for the task.
	if uint64(seen) < task.CurrentLabelers {
		return nil, &pkgErrors.GuardError{
			Rule:   "review_incomplete",
			Detail: fmt.Sprintf("task %d has %d submissions but only %d could be read; try again shortly.", task.TaskID, task.CurrentLabelers, seen),
		}
	}
	if len(pending) == 0 {
		return nil, &pkgErrors.GuardError{Rule: "start_review", Detail: fmt.Sprintf("task %d has no pending submissions.", task.TaskID)}
	}
	return newRound(o, task, pending), nil
}
