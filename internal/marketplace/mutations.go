package marketplace

import (
	"context"
	"fmt"
	"time"

	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/internal/metrics"
	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/pkg/blobstore"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

// execute signs and runs intent, then invalidates keys. Keys are only dropped after
// the transaction is confirmed; the cache repeats the drop after its grace delay.
func (s *Service) execute(ctx context.Context, intent *txbuilder.Intent, keys ...string) (*ledger.Effects, error) {
	if s.wallet == nil {
		return nil, ErrReadOnly
	}
	effects, err := s.wallet.SignAndExecute(ctx, intent)
	if err != nil {
		s.logger.Warn("Marketplace transaction failed",
			"kind", intent.Kind,
			"category", pkgErrors.Classify(err),
			"error", err)
		return effects, err
	}
	s.cache.Invalidate(ctx, keys...)
	s.logger.Info("Marketplace transaction confirmed", "kind", intent.Kind, "digest", effects.Digest)
	return effects, nil
}

func (s *Service) requireWallet() error {
	if s.wallet == nil {
		return ErrReadOnly
	}
	return nil
}

func (s *Service) upload(ctx context.Context, data []byte, filename, contentType string) (*blobstore.Blob, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: blob store", ErrMissingDependency)
	}
	blob, err := s.blobs.Store(ctx, data, filename, contentType)
	status := "success"
	if err != nil {
		status = string(pkgErrors.Classify(err))
	}
	metrics.BlobUploadsTotal.WithLabelValues(status).Inc()
	if err != nil {
		s.logger.Warn("Blob upload failed", "filename", filename, "size", len(data), "error", err)
		return nil, err
	}
	s.logger.Debug("Blob stored", "id", blob.ID, "size", blob.Size)
	return blob, nil
}

func (s *Service) CreateProfile(ctx context.Context, in txbuilder.ProfileInput) (*ledger.Effects, error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	me := s.wallet.Address()
	if _, err := s.resolver.ProfileFor(ctx, me); err == nil {
		return nil, &pkgErrors.GuardError{Rule: "create_profile", Detail: "this address already has a profile."}
	} else if !pkgErrors.IsNotFound(err) {
		return nil, err
	}

	intent, err := s.builder.CreateProfile(in)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, intent, cache.KeyProfile(me), cache.KeyProfilesAll)
}

func (s *Service) UpdateProfile(ctx context.Context, in txbuilder.ProfileInput) (*ledger.Effects, error) {
	profile, err := s.myProfile(ctx)
	if err != nil {
		return nil, err
	}
	intent, err := s.builder.UpdateProfile(profile, in)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, intent, cache.KeyProfile(profile.Owner), cache.KeyProfilesAll)
}

func (s *Service) UpdateUserType(ctx context.Context, userType types.UserType) (*ledger.Effects, error) {
	profile, err := s.myProfile(ctx)
	if err != nil {
		return nil, err
	}
	intent, err := s.builder.UpdateUserType(profile, userType)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, intent, cache.KeyProfile(profile.Owner), cache.KeyProfilesAll)
}

func (s *Service) myProfile(ctx context.Context) (*types.Profile, error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	lookup, err := s.resolver.ProfileFor(ctx, s.wallet.Address())
	if err != nil {
		return nil, err
	}
	return lookup.Profile, nil
}

// CreateTaskInput carries the dataset bytes; the service stores them before building
// the transaction.
type CreateTaskInput struct {
	Title              string
	Description        string
	Instructions       string
	Dataset            []byte
	DatasetFilename    string
	DatasetContentType string
	Bounty             uint64
	RequiredLabelers   uint64
	Deadline           time.Time
}

func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*ledger.Effects, error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	blob, err := s.upload(ctx, in.Dataset, in.DatasetFilename, in.DatasetContentType)
	if err != nil {
		return nil, err
	}

	intent, err := s.builder.CreateTask(txbuilder.TaskInput{
		Title:              in.Title,
		Description:        in.Description,
		Instructions:       in.Instructions,
		DatasetURL:         blob.URL,
		DatasetFilename:    in.DatasetFilename,
		DatasetContentType: in.DatasetContentType,
		Bounty:             in.Bounty,
		RequiredLabelers:   in.RequiredLabelers,
		Deadline:           in.Deadline,
	}, s.now())
	if err != nil {
		return nil, err
	}

	me := s.wallet.Address()
	return s.execute(ctx, intent,
		cache.KeyTasksAll,
		cache.KeyTasksByRequester(me),
		cache.KeyProfile(me),
	)
}

type SubmitLabelsInput struct {
	Result            []byte
	ResultFilename    string
	ResultContentType string
}

// SubmitLabels checks the one-submission-per-labeler rule and the task's deadline and
// slots against a fresh read before uploading anything.
func (s *Service) SubmitLabels(ctx context.Context, taskID uint64, in SubmitLabelsInput) (*ledger.Effects, error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	me := s.wallet.Address()

	task, err := s.resolver.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := txbuilder.CheckAcceptsSubmissions(task, s.now()); err != nil {
		return nil, err
	}
	submitted, err := s.resolver.HasSubmitted(ctx, taskID, me)
	if err != nil {
		return nil, err
	}
	if submitted {
		return nil, &pkgErrors.GuardError{Rule: "submit_labels", Detail: fmt.Sprintf("you already submitted labels for task %d.", taskID)}
	}

	blob, err := s.upload(ctx, in.Result, in.ResultFilename, in.ResultContentType)
	if err != nil {
		return nil, err
	}
	intent, err := s.builder.SubmitLabels(task, txbuilder.SubmissionInput{
		ResultURL:         blob.URL,
		ResultFilename:    in.ResultFilename,
		ResultContentType: in.ResultContentType,
	}, s.now())
	if err != nil {
		return nil, err
	}

	return s.execute(ctx, intent,
		cache.KeyTask(taskID),
		cache.KeyTasksAll,
		cache.KeyTasksByRequester(task.Requester),
		cache.KeySubmissionsAll,
		cache.KeySubmissionsByTask(taskID),
		cache.KeySubmissionsByLabeler(me),
		cache.KeyProfile(me),
	)
}

// CancelTask refuses before signing unless the caller owns an open task with no
// submissions.
func (s *Service) CancelTask(ctx context.Context, taskID uint64) (*ledger.Effects, error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	me := s.wallet.Address()

	task, err := s.resolver.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !sameAddress(task.Requester, me) {
		return nil, &pkgErrors.GuardError{Rule: "cancel_task", Detail: "only the requester can cancel a task."}
	}
	subs, err := s.resolver.SubmissionsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	intent, err := s.builder.CancelTask(task, len(subs.Items))
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, intent,
		cache.KeyTask(taskID),
		cache.KeyTasksAll,
		cache.KeyTasksByRequester(me),
	)
}

func (s *Service) Stake(ctx context.Context, amount uint64, lockDuration time.Duration) (*ledger.Effects, error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	intent, err := s.builder.Stake(amount, lockDuration)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, intent, cache.KeyStakesByOwner(s.wallet.Address()))
}

func (s *Service) Unstake(ctx context.Context, stakeID string) (*ledger.Effects, error) {
	if err := s.requireWallet(); err != nil {
		return nil, err
	}
	me := s.wallet.Address()

	stakes, err := s.resolver.StakesByOwner(ctx, me)
	if err != nil {
		return nil, err
	}
	var stake *types.Stake
	for _, st := range stakes.Items {
		if sameAddress(st.ObjectID, stakeID) {
			stake = st
			break
		}
	}
	if stake == nil {
		return nil, fmt.Errorf("stake %s: %w", stakeID, pkgErrors.ErrNotFound)
	}

	intent, err := s.builder.Unstake(stake, s.now())
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, intent, cache.KeyStakesByOwner(me))
}
