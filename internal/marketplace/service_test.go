package marketplace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/internal/consensus"
	"github.com/trigg3rX/labelmarket-backend/internal/devchain"
	"github.com/trigg3rX/labelmarket-backend/internal/registry"
	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/internal/wallet"
	"github.com/trigg3rX/labelmarket-backend/pkg/blobstore"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

const (
	testPackageID  = "0xfeed"
	testRegistryID = "0x1e"
	requester      = "0xca"
	labelerA       = "0xa1"
	labelerB       = "0xa2"
	labelerC       = "0xa3"
)

type harness struct {
	store    *ledger.MemoryStore
	seeder   *registry.Seeder
	resolver *registry.Resolver
	layer    *cache.Layer
	builder  *txbuilder.Builder
	blobs    *blobstore.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := ledger.NewMemoryStore()
	seeder := registry.NewSeeder(store, testPackageID, testRegistryID)
	devchain.Attach(store, seeder, logging.NewNoOpLogger())

	resolver, err := registry.NewResolver(store, registry.Config{PackageID: testPackageID, RegistryID: testRegistryID}, logging.NewNoOpLogger())
	require.NoError(t, err)
	builder, err := txbuilder.NewBuilder(txbuilder.Config{PackageID: testPackageID, RegistryID: testRegistryID})
	require.NoError(t, err)

	layer := cache.NewLayer(cache.NewMemoryBackend(), cache.Config{TTL: time.Minute}, logging.NewNoOpLogger())
	t.Cleanup(layer.Close)

	return &harness{
		store:    store,
		seeder:   seeder,
		resolver: resolver,
		layer:    layer,
		builder:  builder,
		blobs:    blobstore.NewMemoryStore(1024),
	}
}

func (h *harness) serviceWith(t *testing.T, w wallet.Wallet) *Service {
	t.Helper()
	svc, err := NewService(Deps{
		Resolver: h.resolver,
		Cache:    h.layer,
		Builder:  h.builder,
		Wallet:   w,
		Blobs:    h.blobs,
		Logger:   logging.NewNoOpLogger(),
	})
	require.NoError(t, err)
	return svc
}

func (h *harness) service(t *testing.T, addr string) *Service {
	t.Helper()
	w, err := wallet.NewDevWallet(addr, h.store, logging.NewNoOpLogger())
	require.NoError(t, err)
	return h.serviceWith(t, w)
}

func taskInput(bounty, labelers uint64) CreateTaskInput {
	return CreateTaskInput{
		Title:              "Classify birds",
		Description:        "Species labels",
		Dataset:            []byte("img1,img2,img3"),
		DatasetFilename:    "birds.csv",
		DatasetContentType: "text/csv",
		Bounty:             bounty,
		RequiredLabelers:   labelers,
		Deadline:           time.Now().Add(time.Hour),
	}
}

func labels(who string) SubmitLabelsInput {
	return SubmitLabelsInput{Result: []byte("labels from " + who), ResultFilename: "labels.json", ResultContentType: "application/json"}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestCreateTask_InvalidatesTaskListing(t *testing.T) {
	h := newHarness(t)
	svc := h.service(t, requester)
	ctx := context.Background()

	before, err := svc.Tasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, before.Items)

	reads := h.store.TotalReads()
	_, err = svc.Tasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, reads, h.store.TotalReads(), "second read should be served from cache")

	_, err = svc.CreateTask(ctx, taskInput(300, 3))
	require.NoError(t, err)

	reads = h.store.TotalReads()
	after, err := svc.Tasks(ctx)
	require.NoError(t, err)
	assert.Greater(t, h.store.TotalReads(), reads, "listing should be reloaded after create task")
	require.Len(t, after.Items, 1)
	assert.Equal(t, "Classify birds", after.Items[0].Title)
	assert.Equal(t, uint64(300), after.Items[0].Bounty)
	assert.Equal(t, types.TaskStatusOpen, after.Items[0].Status)
	assert.Equal(t, 1, h.blobs.Len())
}

func TestCreateTask_PayloadTooLargeNeverSigns(t *testing.T) {
	h := newHarness(t)
	w := &wallet.MockWallet{}
	w.On("Address").Return(requester)
	svc := h.serviceWith(t, w)

	in := taskInput(300, 3)
	in.Dataset = make([]byte, 2048)
	_, err := svc.CreateTask(context.Background(), in)
	assert.Equal(t, pkgErrors.CategoryPayloadTooLarge, pkgErrors.Classify(err))
	w.AssertNotCalled(t, "SignAndExecute", mock.Anything, mock.Anything)
}

func TestCancelTask_WithSubmissionMakesNoNetworkCall(t *testing.T) {
	h := newHarness(t)
	task := h.seeder.AddTask(&types.Task{
		Requester:        requester,
		Title:            "t",
		Bounty:           300,
		RequiredLabelers: 3,
		CurrentLabelers:  1,
		Deadline:         time.Now().Add(time.Hour).UnixMilli(),
		Status:           types.TaskStatusOpen,
		QualityTrackerID: "0x9a",
	})
	h.seeder.AddSubmission(&types.Submission{TaskID: task.TaskID, Labeler: labelerA, ResultURL: "mem://x"})

	w := &wallet.MockWallet{}
	w.On("Address").Return(requester)
	svc := h.serviceWith(t, w)

	_, err := svc.CancelTask(context.Background(), task.TaskID)
	var guard *pkgErrors.GuardError
	require.True(t, errors.As(err, &guard))
	assert.Equal(t, "cancel_task", guard.Rule)
	w.AssertNotCalled(t, "SignAndExecute", mock.Anything, mock.Anything)
	assert.Equal(t, 0, h.store.Calls("ExecuteTransaction"))
}

func TestCancelTask_OpenTaskWithoutSubmissions(t *testing.T) {
	h := newHarness(t)
	svc := h.service(t, requester)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, taskInput(300, 3))
	require.NoError(t, err)

	_, err = h.service(t, labelerA).CancelTask(ctx, 1)
	assert.Equal(t, pkgErrors.CategoryGuard, pkgErrors.Classify(err))

	_, err = svc.CancelTask(ctx, 1)
	require.NoError(t, err)
	task, err := svc.Task(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCancelled, task.Status)
}

func TestSubmitLabels_OnePerLabeler(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.service(t, requester).CreateTask(ctx, taskInput(300, 3))
	require.NoError(t, err)

	labeler := h.service(t, labelerA)
	_, err = labeler.SubmitLabels(ctx, 1, labels("a"))
	require.NoError(t, err)

	_, err = labeler.SubmitLabels(ctx, 1, labels("a again"))
	var guard *pkgErrors.GuardError
	require.True(t, errors.As(err, &guard))
	assert.Contains(t, guard.Detail, "already submitted")

	subs, err := labeler.SubmissionsByTask(ctx, 1)
	require.NoError(t, err)
	require.Len(t, subs.Items, 1)
	assert.Equal(t, labeler.Address(), subs.Items[0].Labeler)

	task, err := labeler.Task(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusInProgress, task.Status)
	assert.Equal(t, uint64(1), task.CurrentLabelers)

	mine, err := labeler.SubmissionsByLabeler(ctx, labelerA)
	require.NoError(t, err)
	assert.Len(t, mine.Items, 1)
}

func TestSubmitLabels_FullTaskRefused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.service(t, requester).CreateTask(ctx, taskInput(100, 1))
	require.NoError(t, err)
	_, err = h.service(t, labelerA).SubmitLabels(ctx, 1, labels("a"))
	require.NoError(t, err)

	_, err = h.service(t, labelerB).SubmitLabels(ctx, 1, labels("b"))
	assert.Equal(t, pkgErrors.CategoryGuard, pkgErrors.Classify(err))
	assert.Equal(t, 2, h.blobs.Len(), "no result blob stored for the refused submission")
}

func TestReview_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.service(t, requester)

	for _, addr := range []string{labelerA, labelerB, labelerC} {
		_, err := h.service(t, addr).CreateProfile(ctx, txbuilder.ProfileInput{DisplayName: addr, UserType: types.UserTypeLabeler})
		require.NoError(t, err)
	}
	_, err := owner.CreateTask(ctx, taskInput(300, 3))
	require.NoError(t, err)
	for _, addr := range []string{labelerA, labelerB, labelerC} {
		_, err := h.service(t, addr).SubmitLabels(ctx, 1, labels(addr))
		require.NoError(t, err)
	}

	_, err = h.service(t, labelerA).StartReview(ctx, 1)
	assert.Equal(t, pkgErrors.CategoryGuard, pkgErrors.Classify(err))

	round, err := owner.StartReview(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, round.Unreviewed())
	require.NoError(t, round.ToggleAccept(1))
	require.NoError(t, round.ToggleAccept(2))
	require.NoError(t, round.ToggleReject(3))

	round, err = owner.FinalizeReview(ctx, round.ID())
	require.NoError(t, err)
	assert.Equal(t, consensus.StateDone, round.State())
	_, err = owner.Review(round.ID())
	assert.True(t, pkgErrors.IsNotFound(err))

	task, err := owner.Task(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCompleted, task.Status)

	subs, err := owner.SubmissionsByTask(ctx, 1)
	require.NoError(t, err)
	statuses := map[uint64]types.SubmissionStatus{}
	for _, s := range subs.Items {
		statuses[s.SubmissionID] = s.Status
	}
	assert.Equal(t, map[uint64]types.SubmissionStatus{
		1: types.SubmissionStatusAccepted,
		2: types.SubmissionStatusAccepted,
		3: types.SubmissionStatusRejected,
	}, statuses)

	profile, err := owner.Profile(ctx, labelerA)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), profile.Profile.TotalEarned)
	rejectedProfile, err := owner.Profile(ctx, labelerC)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rejectedProfile.Profile.TotalEarned)

	rep, err := owner.Reputation(ctx, labelerC)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.TotalRejected)
	assert.Equal(t, uint64(0), rep.ReputationScore)
}

func TestReview_RefusedWhileASubmissionIsUnreadable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := h.service(t, requester)

	_, err := owner.CreateTask(ctx, taskInput(300, 3))
	require.NoError(t, err)
	for _, addr := range []string{labelerA, labelerB, labelerC} {
		_, err := h.service(t, addr).SubmitLabels(ctx, 1, labels(addr))
		require.NoError(t, err)
	}
	third, err := h.resolver.Submission(ctx, 3)
	require.NoError(t, err)
	h.store.FailObject(third.ObjectID, errors.New("object pruned"))

	executed := h.store.Calls("ExecuteTransaction")
	_, err = owner.StartReview(ctx, 1)
	var guard *pkgErrors.GuardError
	require.True(t, errors.As(err, &guard))
	assert.Equal(t, "review_incomplete", guard.Rule)
	assert.Equal(t, executed, h.store.Calls("ExecuteTransaction"))

	task, err := h.resolver.Task(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, types.TaskStatusCompleted, task.Status)
}

func TestProfile_CreateAndUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.service(t, labelerA)

	_, err := svc.Profile(ctx, labelerA)
	assert.True(t, pkgErrors.IsNotFound(err))

	_, err = svc.CreateProfile(ctx, txbuilder.ProfileInput{DisplayName: "Ada", UserType: types.UserTypeLabeler})
	require.NoError(t, err)
	_, err = svc.CreateProfile(ctx, txbuilder.ProfileInput{DisplayName: "Ada"})
	assert.Equal(t, pkgErrors.CategoryGuard, pkgErrors.Classify(err))

	_, err = svc.UpdateProfile(ctx, txbuilder.ProfileInput{DisplayName: "Ada L.", Bio: "labels birds"})
	require.NoError(t, err)
	_, err = svc.UpdateUserType(ctx, types.UserTypeBoth)
	require.NoError(t, err)

	lookup, err := svc.Profile(ctx, labelerA)
	require.NoError(t, err)
	assert.Equal(t, registry.SourceRegistry, lookup.Source)
	assert.Equal(t, "Ada L.", lookup.Profile.DisplayName)
	assert.Equal(t, "labels birds", lookup.Profile.Bio)
	assert.Equal(t, types.UserTypeBoth, lookup.Profile.UserType)
}

func TestStake_UnstakeWhileLocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.service(t, labelerA)

	_, err := svc.Stake(ctx, 500, time.Hour)
	require.NoError(t, err)
	stakes, err := svc.Stakes(ctx, labelerA)
	require.NoError(t, err)
	require.Len(t, stakes.Items, 1)
	assert.False(t, stakes.Complete)
	assert.Equal(t, uint64(500), stakes.Items[0].StakeValue)

	_, err = svc.Unstake(ctx, stakes.Items[0].ObjectID)
	var guard *pkgErrors.GuardError
	require.True(t, errors.As(err, &guard))
	assert.Equal(t, "unstake", guard.Rule)

	_, err = svc.Unstake(ctx, "0x404")
	assert.True(t, pkgErrors.IsNotFound(err))
}

func TestReadOnlyService(t *testing.T) {
	h := newHarness(t)
	svc := h.serviceWith(t, nil)
	assert.Empty(t, svc.Address())

	_, err := svc.CreateTask(context.Background(), taskInput(300, 3))
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = svc.StartReview(context.Background(), 1)
	assert.ErrorIs(t, err, ErrReadOnly)

	open, err := svc.OpenTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open.Items)
}
