package decoder

import (
	"fmt"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

// Entity kinds, also used as log and metric labels.
const (
	KindRegistry   = "registry"
	KindProfile    = "profile"
	KindTask       = "task"
	KindSubmission = "submission"
	KindStake      = "stake"
	KindReputation = "reputation"
	KindTableEntry = "table_entry"
)

func DecodeProfile(obj *ledger.Object) (*types.Profile, error) {
	b := newBag(KindProfile, obj)
	p := &types.Profile{
		ObjectID:         b.ObjectID(),
		Owner:            b.Address("owner"),
		DisplayName:      b.Text("display_name"),
		Bio:              b.Text("bio"),
		AvatarURL:        b.Text("avatar_url"),
		UserType:         types.UserType(b.Uint8("user_type")),
		CreatedAt:        b.Int64("created_at"),
		TasksCreated:     b.Uint64("tasks_created"),
		SubmissionsCount: b.Uint64("submissions_count"),
		ReputationScore:  b.Uint64("reputation_score"),
		TotalEarned:      b.Uint64("total_earned"),
	}
	if b.err == nil && !p.UserType.Valid() {
		b.fail("user_type", fmt.Sprintf("unknown user type %d", p.UserType))
	}
	if b.err != nil {
		return nil, b.err
	}
	return p, nil
}

// DecodeTask requires quality_tracker_id to be present. Tasks created before the
// tracker was introduced lack the field and are reported as legacy records.
func DecodeTask(obj *ledger.Object) (*types.Task, error) {
	b := newBag(KindTask, obj)
	t := &types.Task{
		ObjectID:           b.ObjectID(),
		TaskID:             b.Uint64("task_id"),
		Requester:          b.Address("requester"),
		Title:              b.Text("title"),
		Description:        b.Text("description"),
		Instructions:       b.Text("instructions"),
		DatasetURL:         b.Text("dataset_url"),
		DatasetFilename:    b.Text("dataset_filename"),
		DatasetContentType: b.Text("dataset_content_type"),
		Bounty:             b.Uint64("bounty"),
		RequiredLabelers:   b.Uint64("required_labelers"),
		CurrentLabelers:    b.Uint64("current_labelers"),
		Deadline:           b.Int64("deadline"),
		Status:             types.TaskStatus(b.Uint8("status")),
		CreatedAt:          b.Int64("created_at"),
		QualityTrackerID:   b.OptionalID("quality_tracker_id"),
	}
	if b.err == nil && !t.Status.Valid() {
		b.fail("status", fmt.Sprintf("unknown task status %d", t.Status))
	}
	if b.err != nil {
		return nil, b.err
	}
	return t, nil
}

func DecodeSubmission(obj *ledger.Object) (*types.Submission, error) {
	b := newBag(KindSubmission, obj)
	s := &types.Submission{
		ObjectID:          b.ObjectID(),
		SubmissionID:      b.Uint64("submission_id"),
		TaskID:            b.Uint64("task_id"),
		Labeler:           b.Address("labeler"),
		ResultURL:         b.Text("result_url"),
		ResultFilename:    b.Text("result_filename"),
		ResultContentType: b.Text("result_content_type"),
		Status:            types.SubmissionStatus(b.Uint8("status")),
		SubmittedAt:       b.Int64("submitted_at"),
	}
	if b.err == nil && !s.Status.Valid() {
		b.fail("status", fmt.Sprintf("unknown submission status %d", s.Status))
	}
	if b.err != nil {
		return nil, b.err
	}
	return s, nil
}

func DecodeStake(obj *ledger.Object) (*types.Stake, error) {
	b := newBag(KindStake, obj)
	s := &types.Stake{
		ObjectID:      b.ObjectID(),
		Labeler:       b.Address("labeler"),
		StakeValue:    b.Uint64("amount"),
		LockedUntil:   b.Int64("locked_until"),
		SlashedAmount: b.Uint64("slashed_amount"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return s, nil
}

func DecodeReputation(obj *ledger.Object) (*types.ReputationRecord, error) {
	b := newBag(KindReputation, obj)
	r := &types.ReputationRecord{
		User:            b.Address("user"),
		TotalCompleted:  b.Uint64("total_completed"),
		TotalAccepted:   b.Uint64("total_accepted"),
		TotalRejected:   b.Uint64("total_rejected"),
		ReputationScore: b.Uint64("reputation_score"),
		Badges:          b.Uint64Slice("badges"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return r, nil
}

// DecodeTableEntry returns the entity address stored in a Table<K, ID> dynamic field.
func DecodeTableEntry(obj *ledger.Object) (string, error) {
	b := newBag(KindTableEntry, obj)
	addr := b.Address("value")
	if b.err != nil {
		return "", b.err
	}
	return addr, nil
}

// Table is a reference to a Table<K, ID> stored inside the registry.
type Table struct {
	ID   string
	Size uint64
}

// Registry is the root object holding one table per entity kind.
type Registry struct {
	ID          string
	Profiles    Table
	Tasks       Table
	Submissions Table
	Reputation  Table
	TaskCount   uint64
}

// RegistryTableFields names the registry field holding each kind's table.
var RegistryTableFields = map[string]string{
	KindProfile:    "profiles",
	KindTask:       "tasks",
	KindSubmission: "submissions",
	KindReputation: "reputation",
}

func DecodeRegistry(obj *ledger.Object) (*Registry, error) {
	b := newBag(KindRegistry, obj)
	r := &Registry{
		ID:          b.ObjectID(),
		Profiles:    b.table(RegistryTableFields[KindProfile]),
		Tasks:       b.table(RegistryTableFields[KindTask]),
		Submissions: b.table(RegistryTableFields[KindSubmission]),
		Reputation:  b.table(RegistryTableFields[KindReputation]),
		TaskCount:   b.Uint64("task_counter"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return r, nil
}

// TableFor returns the table holding entities of kind.
func (r *Registry) TableFor(kind string) (Table, error) {
	switch kind {
	case KindProfile:
		return r.Profiles, nil
	case KindTask:
		return r.Tasks, nil
	case KindSubmission:
		return r.Submissions, nil
	case KindReputation:
		return r.Reputation, nil
	}
	return Table{}, &pkgErrors.ValidationError{Field: "kind", Reason: fmt.Sprintf("%q has no registry table", kind)}
}

func (b *bag) table(field string) Table {
	value, ok := b.get(field)
	if !ok {
		return Table{}
	}
	m, isMap := value.(map[string]any)
	if !isMap {
		b.fail(field, fmt.Sprintf("expected table, got %T", value))
		return Table{}
	}
	if inner, hasFields := m["fields"].(map[string]any); hasFields {
		m = inner
	}
	id, ok := uidOf(m["id"])
	if !ok {
		b.fail(field, "table has no id")
		return Table{}
	}
	size, err := decodeUint64(m["size"])
	if err != nil {
		b.fail(field, "table size: "+err.Error())
		return Table{}
	}
	return Table{ID: id, Size: size}
}
