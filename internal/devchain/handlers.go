package devchain

import (
	"context"
	"strconv"
	"time"

	"github.com/trigg3rX/labelmarket-backend/internal/decoder"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

func (c *Chain) createProfile(ctx context.Context, cl *call) error {
	a := cl.args
	p := &types.Profile{
		Owner:       cl.sender,
		DisplayName: a.text(1),
		Bio:         a.text(2),
		AvatarURL:   a.text(3),
		UserType:    types.UserType(a.u64(4)),
		CreatedAt:   c.nowMillis(),
	}
	if a.err != nil {
		return a.err
	}
	if _, err := c.profileOf(ctx, cl.sender); err == nil {
		return abort(moduleMarketplace, abortProfileExists)
	}
	c.seeder.AddProfile(p)
	cl.created = append(cl.created, p.ObjectID)
	return nil
}

func (c *Chain) ownProfile(ctx context.Context, cl *call, id string) (*types.Profile, error) {
	obj, err := c.store.GetObject(ctx, id)
	if err != nil {
		return nil, abort(moduleMarketplace, abortNoProfile)
	}
	p, err := decoder.DecodeProfile(obj)
	if err != nil {
		return nil, err
	}
	if !sameAddress(p.Owner, cl.sender) {
		return nil, abort(moduleMarketplace, abortNoProfile)
	}
	return p, nil
}

func (c *Chain) updateProfile(ctx context.Context, cl *call) error {
	a := cl.args
	p, err := c.ownProfile(ctx, cl, a.object(1))
	if err != nil {
		return err
	}
	p.DisplayName = a.text(2)
	p.Bio = a.text(3)
	p.AvatarURL = a.text(4)
	if a.err != nil {
		return a.err
	}
	c.putProfile(cl, p)
	return nil
}

func (c *Chain) updateUserType(ctx context.Context, cl *call) error {
	a := cl.args
	p, err := c.ownProfile(ctx, cl, a.object(0))
	if err != nil {
		return err
	}
	p.UserType = types.UserType(a.u64(1))
	if a.err != nil {
		return a.err
	}
	c.putProfile(cl, p)
	return nil
}

func (c *Chain) createTask(ctx context.Context, cl *call) error {
	a := cl.args
	t := &types.Task{
		Requester:          cl.sender,
		Title:              a.text(1),
		Description:        a.text(2),
		Instructions:       a.text(3),
		DatasetURL:         a.text(4),
		DatasetFilename:    a.text(5),
		DatasetContentType: a.text(6),
		RequiredLabelers:   a.u64(7),
		Deadline:           int64(a.u64(8)),
		Bounty:             a.u64(9),
		Status:             types.TaskStatusOpen,
		CreatedAt:          c.nowMillis(),
	}
	if a.err != nil {
		return a.err
	}
	if t.Deadline <= t.CreatedAt {
		return abort(moduleMarketplace, abortDeadlinePassed)
	}
	t.QualityTrackerID = c.seeder.NewObjectID()
	c.seeder.AddTask(t)
	cl.created = append(cl.created, t.ObjectID)
	c.bumpProfile(ctx, cl, cl.sender, func(p *types.Profile) { p.TasksCreated++ })
	return nil
}

func (c *Chain) submitLabels(ctx context.Context, cl *call) error {
	a := cl.args
	task, err := c.task(ctx, a.object(1))
	if err != nil {
		return err
	}
	switch {
	case task.Status != types.TaskStatusOpen && task.Status != types.TaskStatusInProgress:
		return abort(moduleMarketplace, abortTaskNotOpen)
	case task.IsPastDeadline(c.now()):
		return abort(moduleMarketplace, abortDeadlinePassed)
	case task.Slots() == 0:
		return abort(moduleMarketplace, abortTaskFull)
	}
	subs, err := c.submissionsFor(ctx, task.TaskID)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if sameAddress(s.Labeler, cl.sender) {
			return abort(moduleMarketplace, abortAlreadySubmitted)
		}
	}

	sub := &types.Submission{
		TaskID:            task.TaskID,
		Labeler:           cl.sender,
		ResultURL:         a.text(2),
		ResultFilename:    a.text(3),
		ResultContentType: a.text(4),
		Status:            types.SubmissionStatusPending,
		SubmittedAt:       c.nowMillis(),
	}
	if a.err != nil {
		return a.err
	}
	c.seeder.AddSubmission(sub)
	cl.created = append(cl.created, sub.ObjectID)

	task.CurrentLabelers++
	task.Status = types.TaskStatusInProgress
	c.seeder.UpdateTask(task)
	cl.mutated = append(cl.mutated, task.ObjectID)
	c.bumpProfile(ctx, cl, cl.sender, func(p *types.Profile) { p.SubmissionsCount++ })
	return nil
}

func (c *Chain) cancelTask(ctx context.Context, cl *call) error {
	task, err := c.task(ctx, cl.args.object(1))
	if err != nil {
		return err
	}
	switch {
	case !sameAddress(task.Requester, cl.sender):
		return abort(moduleMarketplace, abortNotRequester)
	case task.Status != types.TaskStatusOpen:
		return abort(moduleMarketplace, abortTaskNotOpen)
	case task.CurrentLabelers > 0:
		return abort(moduleMarketplace, abortHasSubmissions)
	}
	task.Status = types.TaskStatusCancelled
	c.seeder.UpdateTask(task)
	cl.mutated = append(cl.mutated, task.ObjectID)
	return nil
}

// finalizeConsensus pays accepted labelers and completes the task. Submission statuses
// are left to the follow-up update_submission_status calls.
func (c *Chain) finalizeConsensus(ctx context.Context, cl *call) error {
	a := cl.args
	task, err := c.task(ctx, a.object(1))
	if err != nil {
		return err
	}
	accepted := a.u64s(2)
	rejected := a.u64s(3)
	if a.err != nil {
		return a.err
	}
	switch {
	case !sameAddress(task.Requester, cl.sender):
		return abort(moduleMarketplace, abortNotRequester)
	case task.Status != types.TaskStatusOpen && task.Status != types.TaskStatusInProgress:
		return abort(moduleMarketplace, abortTaskNotOpen)
	case len(accepted) == 0:
		return abort(moduleMarketplace, abortNoneAccepted)
	}

	subs, err := c.submissionsFor(ctx, task.TaskID)
	if err != nil {
		return err
	}
	pending := make(map[uint64]*types.Submission)
	for _, s := range subs {
		if s.Status == types.SubmissionStatusPending {
			pending[s.SubmissionID] = s
		}
	}
	decided := make(map[uint64]bool)
	for _, id := range append(append([]uint64{}, accepted...), rejected...) {
		if _, ok := pending[id]; !ok {
			return abort(moduleMarketplace, abortForeignSubmission)
		}
		decided[id] = true
	}
	if len(decided) != len(pending) {
		return abort(moduleMarketplace, abortIncompleteReview)
	}

	payout := task.PayoutPerLabeler()
	for _, id := range accepted {
		labeler := pending[id].Labeler
		c.bumpProfile(ctx, cl, labeler, func(p *types.Profile) { p.TotalEarned += payout })
		c.recordReview(ctx, cl, labeler, true)
	}
	for _, id := range rejected {
		c.recordReview(ctx, cl, pending[id].Labeler, false)
	}

	task.Status = types.TaskStatusCompleted
	c.seeder.UpdateTask(task)
	cl.mutated = append(cl.mutated, task.ObjectID)
	return nil
}

func (c *Chain) recordReview(ctx context.Context, cl *call, labeler string, accepted bool) {
	id, rec, err := c.reputationOf(ctx, labeler)
	if err != nil {
		rec = &types.ReputationRecord{User: labeler, Badges: []uint64{}}
	}
	rec.TotalCompleted++
	if accepted {
		rec.TotalAccepted++
	} else {
		rec.TotalRejected++
	}
	rec.ReputationScore = rec.TotalAccepted * types.MaxReputationScore / rec.TotalCompleted

	if id == "" {
		c.seeder.AddReputation(rec)
		return
	}
	c.store.PutObject(decoder.EncodeReputation(c.seeder.PackageID(), id, rec))
	cl.mutated = append(cl.mutated, id)
}

func (c *Chain) updateSubmissionStatus(ctx context.Context, cl *call) error {
	a := cl.args
	obj, err := c.store.GetObject(ctx, a.object(1))
	if err != nil {
		return abort(moduleMarketplace, abortForeignSubmission)
	}
	sub, err := decoder.DecodeSubmission(obj)
	if err != nil {
		return err
	}
	accepted := a.boolean(2)
	if a.err != nil {
		return a.err
	}

	tasks, err := c.store.GetDynamicField(ctx, c.seeder.Registry().Tasks.ID, ledger.DynamicFieldName{Type: "u64", Value: strconv.FormatUint(sub.TaskID, 10)})
	if err != nil {
		return abort(moduleMarketplace, abortForeignSubmission)
	}
	taskID, err := decoder.DecodeTableEntry(tasks)
	if err != nil {
		return err
	}
	task, err := c.task(ctx, taskID)
	if err != nil {
		return err
	}
	switch {
	case !sameAddress(task.Requester, cl.sender):
		return abort(moduleMarketplace, abortNotRequester)
	case sub.Status != types.SubmissionStatusPending:
		return abort(moduleMarketplace, abortStatusUpdated)
	}

	sub.Status = types.SubmissionStatusRejected
	if accepted {
		sub.Status = types.SubmissionStatusAccepted
	}
	c.seeder.UpdateSubmission(sub)
	cl.mutated = append(cl.mutated, sub.ObjectID)
	return nil
}

func (c *Chain) stake(ctx context.Context, cl *call) error {
	a := cl.args
	amount := a.u64(1)
	lock := time.Duration(a.u64(2)) * time.Millisecond
	if a.err != nil {
		return a.err
	}
	if amount == 0 {
		return abort(moduleStaking, abortZeroStake)
	}
	st := c.seeder.AddStake(&types.Stake{
		Labeler:     cl.sender,
		StakeValue:  amount,
		LockedUntil: c.now().Add(lock).UnixMilli(),
	})
	cl.created = append(cl.created, st.ObjectID)
	return nil
}

func (c *Chain) unstake(ctx context.Context, cl *call) error {
	id := cl.args.object(1)
	if cl.args.err != nil {
		return cl.args.err
	}
	obj, err := c.store.GetObject(ctx, id)
	if err != nil {
		return abort(moduleStaking, abortNotStaker)
	}
	st, err := decoder.DecodeStake(obj)
	if err != nil {
		return err
	}
	switch {
	case !sameAddress(st.Labeler, cl.sender):
		return abort(moduleStaking, abortNotStaker)
	case st.IsLocked(c.now()):
		return abort(moduleStaking, abortStakeLocked)
	}
	c.store.DeleteObject(id)
	cl.mutated = append(cl.mutated, id)
	return nil
}
