package txbuilder

import (
	"fmt"
	"strings"
	"time"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/env"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

const (
	DefaultClockID = "0x6"

	moduleProfile     = "profile"
	moduleMarketplace = "marketplace"
	moduleStaking     = "staking"

	maxTextLen = 4096
)

type Config struct {
	PackageID  string
	RegistryID string
	ClockID    string
}

func (c *Config) Validate() error {
	if !env.IsValidObjectID(c.PackageID) {
		return fmt.Errorf("invalid package id %q", c.PackageID)
	}
	if !env.IsValidObjectID(c.RegistryID) {
		return fmt.Errorf("invalid registry id %q", c.RegistryID)
	}
	if c.ClockID != "" && !env.IsValidObjectID(c.ClockID) {
		return fmt.Errorf("invalid clock id %q", c.ClockID)
	}
	return nil
}

// Builder constructs transaction intents. It performs no I/O.
type Builder struct {
	config Config
}

func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClockID == "" {
		cfg.ClockID = DefaultClockID
	}
	return &Builder{config: cfg}, nil
}

func (b *Builder) target(module, function string) string {
	return fmt.Sprintf("%s::%s::%s", b.config.PackageID, module, function)
}

func (b *Builder) intent(kind Kind, module, function string, touches []string, args ...Argument) *Intent {
	return &Intent{
		Kind:      kind,
		Target:    b.target(module, function),
		Arguments: args,
		Touches:   touches,
	}
}

type ProfileInput struct {
	DisplayName string
	Bio         string
	AvatarURL   string
	UserType    types.UserType
}

func (b *Builder) CreateProfile(in ProfileInput) (*Intent, error) {
	v := &validator{}
	v.required("display_name", in.DisplayName)
	v.maxLen("bio", in.Bio)
	v.optionalURL("avatar_url", in.AvatarURL)
	v.userType(in.UserType)
	if err := v.err(); err != nil {
		return nil, err
	}
	return b.intent(KindCreateProfile, moduleProfile, "create_profile",
		[]string{b.config.RegistryID},
		object(b.config.RegistryID),
		text(in.DisplayName),
		text(in.Bio),
		text(in.AvatarURL),
		u8(uint8(in.UserType)),
		object(b.config.ClockID),
	), nil
}

func (b *Builder) UpdateProfile(profile *types.Profile, in ProfileInput) (*Intent, error) {
	v := &validator{}
	v.entity("profile", profile != nil)
	v.required("display_name", in.DisplayName)
	v.maxLen("bio", in.Bio)
	v.optionalURL("avatar_url", in.AvatarURL)
	if err := v.err(); err != nil {
		return nil, err
	}
	v.objectID("profile.object_id", profile.ObjectID)
	if err := v.err(); err != nil {
		return nil, err
	}
	return b.intent(KindUpdateProfile, moduleProfile, "update_profile",
		[]string{b.config.RegistryID, profile.ObjectID},
		object(b.config.RegistryID),
		object(profile.ObjectID),
		text(in.DisplayName),
		text(in.Bio),
		text(in.AvatarURL),
	), nil
}

func (b *Builder) UpdateUserType(profile *types.Profile, userType types.UserType) (*Intent, error) {
	v := &validator{}
	v.entity("profile", profile != nil)
	v.userType(userType)
	if err := v.err(); err != nil {
		return nil, err
	}
	v.objectID("profile.object_id", profile.ObjectID)
	if err := v.err(); err != nil {
		return nil, err
	}
	return b.intent(KindUpdateUserType, moduleProfile, "update_user_type",
		[]string{profile.ObjectID},
		object(profile.ObjectID),
		u8(uint8(userType)),
	), nil
}

type TaskInput struct {
	Title              string
	Description        string
	Instructions       string
	DatasetURL         string
	DatasetFilename    string
	DatasetContentType string
	Bounty             uint64
	RequiredLabelers   uint64
	Deadline           time.Time
}

// CreateTask escrows the bounty by splitting it off the gas coin.
func (b *Builder) CreateTask(in TaskInput, now time.Time) (*Intent, error) {
	v := &validator{}
	v.required("title", in.Title)
	v.maxLen("description", in.Description)
	v.maxLen("instructions", in.Instructions)
	v.storedBlob("dataset_url", in.DatasetURL)
	v.positive("bounty", in.Bounty)
	v.positive("required_labelers", in.RequiredLabelers)
	if in.RequiredLabelers > 0 && in.Bounty > 0 && in.Bounty < in.RequiredLabelers {
		v.fail("bounty", "must cover at least one unit per labeler")
	}
	if !in.Deadline.After(now) {
		v.fail("deadline", "must be in the future")
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return b.intent(KindCreateTask, moduleMarketplace, "create_task",
		[]string{b.config.RegistryID},
		object(b.config.RegistryID),
		text(in.Title),
		text(in.Description),
		text(in.Instructions),
		text(in.DatasetURL),
		text(in.DatasetFilename),
		text(in.DatasetContentType),
		u64(in.RequiredLabelers),
		u64(uint64(in.Deadline.UnixMilli())),
		gasSplit(in.Bounty),
		object(b.config.ClockID),
	), nil
}

type SubmissionInput struct {
	ResultURL         string
	ResultFilename    string
	ResultContentType string
}

// SubmitLabels requires ResultURL to point at a blob that was already stored.
func (b *Builder) SubmitLabels(task *types.Task, in SubmissionInput, now time.Time) (*Intent, error) {
	v := &validator{}
	v.entity("task", task != nil)
	v.storedBlob("result_url", in.ResultURL)
	if err := v.err(); err != nil {
		return nil, err
	}
	v.objectID("task.object_id", task.ObjectID)
	if err := v.err(); err != nil {
		return nil, err
	}

	if err := CheckAcceptsSubmissions(task, now); err != nil {
		return nil, err
	}

	return b.intent(KindSubmitLabels, moduleMarketplace, "submit_labels",
		[]string{b.config.RegistryID, task.ObjectID},
		object(b.config.RegistryID),
		object(task.ObjectID),
		text(in.ResultURL),
		text(in.ResultFilename),
		text(in.ResultContentType),
		object(b.config.ClockID),
	), nil
}

// CheckAcceptsSubmissions explains why task cannot take a submission at now, if it can't.
func CheckAcceptsSubmissions(task *types.Task, now time.Time) error {
	switch {
	case task.Status != types.TaskStatusOpen && task.Status != types.TaskStatusInProgress:
		return &pkgErrors.GuardError{Rule: "submit_labels", Detail: fmt.Sprintf("task %d is %s.", task.TaskID, task.Status)}
	case task.IsPastDeadline(now):
		return &pkgErrors.GuardError{Rule: "submit_labels", Detail: fmt.Sprintf("task %d is past its deadline.", task.TaskID)}
	case task.Slots() == 0:
		return &pkgErrors.GuardError{Rule: "submit_labels", Detail: fmt.Sprintf("task %d has no open labeler slots.", task.TaskID)}
	}
	return nil
}

// CancelTask is only legal for an open task with no submissions. The check runs before
// anything is built, so a refused cancel never reaches the signer.
func (b *Builder) CancelTask(task *types.Task, submissionCount int) (*Intent, error) {
	v := &validator{}
	v.entity("task", task != nil)
	if err := v.err(); err != nil {
		return nil, err
	}
	if task.Status != types.TaskStatusOpen {
		return nil, &pkgErrors.GuardError{Rule: "cancel_task", Detail: fmt.Sprintf("task %d is %s, only open tasks can be cancelled.", task.TaskID, task.Status)}
	}
	if submissionCount > 0 || task.CurrentLabelers > 0 {
		return nil, &pkgErrors.GuardError{Rule: "cancel_task", Detail: fmt.Sprintf("task %d already has submissions.", task.TaskID)}
	}
	v.objectID("task.object_id", task.ObjectID)
	if err := v.err(); err != nil {
		return nil, err
	}
	return b.intent(KindCancelTask, moduleMarketplace, "cancel_task",
		[]string{b.config.RegistryID, task.ObjectID},
		object(b.config.RegistryID),
		object(task.ObjectID),
		object(b.config.ClockID),
	), nil
}

// FinalizeConsensus carries the full accepted and rejected id and address lists in a
// single call; payout to accepted labelers happens inside it.
func (b *Builder) FinalizeConsensus(task *types.Task, accepted, rejected []*types.Submission) (*Intent, error) {
	v := &validator{}
	v.entity("task", task != nil)
	if err := v.err(); err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return nil, &pkgErrors.GuardError{Rule: "finalize_consensus", Detail: "at least one submission must be accepted."}
	}
	v.objectID("task.object_id", task.ObjectID)

	seen := make(map[uint64]bool, len(accepted)+len(rejected))
	collect := func(subs []*types.Submission) ([]uint64, []string) {
		ids := make([]uint64, 0, len(subs))
		addrs := make([]string, 0, len(subs))
		for _, s := range subs {
			if s.TaskID != task.TaskID {
				v.fail("submissions", fmt.Sprintf("submission %d belongs to task %d", s.SubmissionID, s.TaskID))
				continue
			}
			if seen[s.SubmissionID] {
				v.fail("submissions", fmt.Sprintf("submission %d listed twice", s.SubmissionID))
				continue
			}
			seen[s.SubmissionID] = true
			ids = append(ids, s.SubmissionID)
			addrs = append(addrs, s.Labeler)
		}
		return ids, addrs
	}
	acceptedIDs, acceptedAddrs := collect(accepted)
	rejectedIDs, rejectedAddrs := collect(rejected)
	if err := v.err(); err != nil {
		return nil, err
	}

	return b.intent(KindFinalizeConsensus, moduleMarketplace, "finalize_consensus",
		[]string{b.config.RegistryID, task.ObjectID},
		object(b.config.RegistryID),
		object(task.ObjectID),
		u64s(acceptedIDs),
		u64s(rejectedIDs),
		addresses(acceptedAddrs),
		addresses(rejectedAddrs),
		object(b.config.ClockID),
	), nil
}

func (b *Builder) UpdateSubmissionStatus(submission *types.Submission, accepted bool) (*Intent, error) {
	v := &validator{}
	v.entity("submission", submission != nil)
	if err := v.err(); err != nil {
		return nil, err
	}
	v.objectID("submission.object_id", submission.ObjectID)
	if err := v.err(); err != nil {
		return nil, err
	}
	return b.intent(KindUpdateSubmissionStatus, moduleMarketplace, "update_submission_status",
		[]string{b.config.RegistryID, submission.ObjectID},
		object(b.config.RegistryID),
		object(submission.ObjectID),
		boolean(accepted),
	), nil
}

func (b *Builder) Stake(amount uint64, lockDuration time.Duration) (*Intent, error) {
	v := &validator{}
	v.positive("amount", amount)
	if lockDuration <= 0 {
		v.fail("lock_duration", "must be positive")
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return b.intent(KindStake, moduleStaking, "stake",
		[]string{b.config.RegistryID},
		object(b.config.RegistryID),
		gasSplit(amount),
		u64(uint64(lockDuration.Milliseconds())),
		object(b.config.ClockID),
	), nil
}

func (b *Builder) Unstake(stake *types.Stake, now time.Time) (*Intent, error) {
	v := &validator{}
	v.entity("stake", stake != nil)
	if err := v.err(); err != nil {
		return nil, err
	}
	if stake.IsLocked(now) {
		return nil, &pkgErrors.GuardError{Rule: "unstake", Detail: fmt.Sprintf("stake is locked until %s.", time.UnixMilli(stake.LockedUntil).UTC().Format(time.RFC3339))}
	}
	v.objectID("stake.object_id", stake.ObjectID)
	if err := v.err(); err != nil {
		return nil, err
	}
	return b.intent(KindUnstake, moduleStaking, "unstake",
		[]string{b.config.RegistryID, stake.ObjectID},
		object(b.config.RegistryID),
		object(stake.ObjectID),
		object(b.config.ClockID),
	), nil
}

// validator collects the first structural problem with a builder input.
type validator struct {
	first *pkgErrors.ValidationError
}

func (v *validator) fail(field, reason string) {
	if v.first == nil {
		v.first = &pkgErrors.ValidationError{Field: field, Reason: reason}
	}
}

func (v *validator) err() error {
	if v.first == nil {
		return nil
	}
	return v.first
}

func (v *validator) entity(name string, present bool) {
	if !present {
		v.fail(name, "is required")
	}
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field, "cannot be empty")
		return
	}
	v.maxLen(field, value)
}

func (v *validator) maxLen(field, value string) {
	if len(value) > maxTextLen {
		v.fail(field, fmt.Sprintf("exceeds %d bytes", maxTextLen))
	}
}

func (v *validator) positive(field string, n uint64) {
	if n == 0 {
		v.fail(field, "must be positive")
	}
}

func (v *validator) objectID(field, id string) {
	if !env.IsValidObjectID(id) {
		v.fail(field, fmt.Sprintf("%q is not a valid object id", id))
	}
}

func (v *validator) userType(u types.UserType) {
	if !u.Valid() {
		v.fail("user_type", fmt.Sprintf("unknown user type %d", u))
	}
}

func (v *validator) optionalURL(field, value string) {
	if value != "" && !env.IsValidURL(value) {
		v.fail(field, "must be an http(s) URL")
	}
}

// storedBlob accepts the URL forms produced by the blob stores.
func (v *validator) storedBlob(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field, "must reference a stored blob")
		return
	}
	if env.IsValidURL(value) || strings.HasPrefix(value, "ipfs://") || strings.HasPrefix(value, "mem://") {
		return
	}
	v.fail(field, "must reference a stored blob")
}
