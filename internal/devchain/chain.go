package devchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trigg3rX/labelmarket-backend/internal/decoder"
	"github.com/trigg3rX/labelmarket-backend/internal/registry"
	"github.com/trigg3rX/labelmarket-backend/internal/wallet"
	"github.com/trigg3rX/labelmarket-backend/pkg/env"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

const (
	moduleMarketplace = "marketplace"
	moduleStaking     = "staking"
)

// Abort codes, matching the embedded abort catalog.
const (
	abortNotRequester      = 1
	abortTaskNotOpen       = 2
	abortDeadlinePassed    = 3
	abortTaskFull          = 4
	abortAlreadySubmitted  = 5
	abortHasSubmissions    = 6
	abortIncompleteReview  = 7
	abortNoneAccepted      = 8
	abortProfileExists     = 10
	abortNoProfile         = 11
	abortForeignSubmission = 12
	abortStatusUpdated     = 13

	abortZeroStake   = 1
	abortStakeLocked = 2
	abortNotStaker   = 3
)

// Chain executes dev-wallet transactions against a seeded ledger.MemoryStore, enforcing
// the marketplace rules the way the deployed package does. It backs DEV_MODE.
type Chain struct {
	mu     sync.Mutex
	store  *ledger.MemoryStore
	seeder *registry.Seeder
	logger logging.Logger
	now    func() time.Time
	txs    uint64
}

// Attach installs the chain as store's transaction executor.
func Attach(store *ledger.MemoryStore, seeder *registry.Seeder, logger logging.Logger) *Chain {
	c := &Chain{store: store, seeder: seeder, logger: logger, now: time.Now}
	store.ExecuteHook = c.Execute
	return c
}

// aborted is a move abort raised by a handler.
type aborted struct {
	module string
	code   uint64
}

func (a *aborted) Error() string {
	return fmt.Sprintf("%s abort %d", a.module, a.code)
}

func abort(module string, code uint64) error {
	return &aborted{module: module, code: code}
}

type call struct {
	sender  string
	args    *args
	created []string
	mutated []string
}

func (c *Chain) Execute(tx ledger.SignedTransaction) (*ledger.Effects, error) {
	sender, intent, err := wallet.DecodeDevTransaction(tx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs++
	digest := fmt.Sprintf("dev-%d", c.txs)

	cl := &call{sender: env.NormalizeObjectID(sender), args: &args{values: intent.Arguments}}
	handler, ok := c.handlers()[intent.Function()]
	if !ok {
		return &ledger.Effects{Digest: digest, Status: ledger.StatusFailure, Error: fmt.Sprintf("function %s not found", intent.Target)}, nil
	}

	err = handler(context.Background(), cl)
	if err == nil && cl.args.err != nil {
		err = cl.args.err
	}
	if err != nil {
		c.logger.Debug("Dev transaction aborted", "target", intent.Target, "error", err)
		return failure(digest, c.seeder.PackageID(), err), nil
	}
	return &ledger.Effects{
		Digest:     digest,
		Status:     ledger.StatusSuccess,
		CreatedIDs: cl.created,
		MutatedIDs: cl.mutated,
	}, nil
}

func failure(digest, packageID string, err error) *ledger.Effects {
	var a *aborted
	if !errors.As(err, &a) {
		return &ledger.Effects{Digest: digest, Status: ledger.StatusFailure, Error: err.Error()}
	}
	code := a.code
	return &ledger.Effects{
		Digest:      digest,
		Status:      ledger.StatusFailure,
		AbortCode:   &code,
		AbortModule: a.module,
		Error: fmt.Sprintf(`MoveAbort(MoveLocation { module: ModuleId { address: %s, name: Identifier("%s") }, function: 0, instruction: 0, function_name: None }, %d) in command 0`,
			packageID, a.module, a.code),
	}
}

type handler func(ctx context.Context, cl *call) error

func (c *Chain) handlers() map[string]handler {
	return map[string]handler{
		"create_profile":           c.createProfile,
		"update_profile":           c.updateProfile,
		"update_user_type":         c.updateUserType,
		"create_task":              c.createTask,
		"submit_labels":            c.submitLabels,
		"cancel_task":              c.cancelTask,
		"finalize_consensus":       c.finalizeConsensus,
		"update_submission_status": c.updateSubmissionStatus,
		"stake":                    c.stake,
		"unstake":                  c.unstake,
	}
}

func (c *Chain) nowMillis() int64 {
	return c.now().UnixMilli()
}

// Reads go straight to the store; the chain is the only writer.

func (c *Chain) tableEntry(ctx context.Context, tableID string, key ledger.DynamicFieldName) (*ledger.Object, error) {
	field, err := c.store.GetDynamicField(ctx, tableID, key)
	if err != nil {
		return nil, err
	}
	id, err := decoder.DecodeTableEntry(field)
	if err != nil {
		return nil, err
	}
	return c.store.GetObject(ctx, id)
}

func (c *Chain) profileOf(ctx context.Context, owner string) (*types.Profile, error) {
	obj, err := c.tableEntry(ctx, c.seeder.Registry().Profiles.ID, addressName(owner))
	if err != nil {
		return nil, err
	}
	return decoder.DecodeProfile(obj)
}

func (c *Chain) task(ctx context.Context, id string) (*types.Task, error) {
	obj, err := c.store.GetObject(ctx, id)
	if err != nil {
		return nil, abort(moduleMarketplace, abortTaskNotOpen)
	}
	return decoder.DecodeTask(obj)
}

func (c *Chain) submissionsFor(ctx context.Context, taskID uint64) ([]*types.Submission, error) {
	fields, err := c.store.ListDynamicFields(ctx, c.seeder.Registry().Submissions.ID)
	if err != nil {
		return nil, err
	}
	var subs []*types.Submission
	for _, f := range fields {
		obj, err := c.tableEntry(ctx, c.seeder.Registry().Submissions.ID, f.Name)
		if err != nil {
			continue
		}
		sub, err := decoder.DecodeSubmission(obj)
		if err != nil || sub.TaskID != taskID {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (c *Chain) reputationOf(ctx context.Context, user string) (string, *types.ReputationRecord, error) {
	obj, err := c.tableEntry(ctx, c.seeder.Registry().Reputation.ID, addressName(user))
	if err != nil {
		return "", nil, err
	}
	rec, err := decoder.DecodeReputation(obj)
	return obj.ID, rec, err
}

func (c *Chain) putProfile(cl *call, p *types.Profile) {
	c.store.PutObject(decoder.EncodeProfile(c.seeder.PackageID(), p))
	cl.mutated = append(cl.mutated, p.ObjectID)
}

// bumpProfile applies fn to owner's profile if one exists.
func (c *Chain) bumpProfile(ctx context.Context, cl *call, owner string, fn func(p *types.Profile)) {
	p, err := c.profileOf(ctx, owner)
	if err != nil {
		return
	}
	fn(p)
	c.putProfile(cl, p)
}

func addressName(addr string) ledger.DynamicFieldName {
	return ledger.DynamicFieldName{Type: "address", Value: env.NormalizeObjectID(addr)}
}

func sameAddress(a, b string) bool {
	return env.NormalizeObjectID(a) == env.NormalizeObjectID(b)
}
