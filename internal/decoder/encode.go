package decoder

import (
	"encoding/json"
	"strconv"

	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

var structNames = map[string]string{
	KindRegistry:   "marketplace::Registry",
	KindProfile:    "profile::Profile",
	KindTask:       "marketplace::Task",
	KindSubmission: "marketplace::Submission",
	KindStake:      "staking::Stake",
	KindReputation: "reputation::ReputationRecord",
}

// StructType returns the fully qualified Move type of kind within packageID.
func StructType(packageID, kind string) string {
	return packageID + "::" + structNames[kind]
}

// The Encode functions render entities in the node's JSON shape: u64 as decimal
// strings, small integers as numbers, text as byte vectors. They back in-memory
// ledgers for development and tests.

func EncodeProfile(packageID string, p *types.Profile) *ledger.Object {
	return &ledger.Object{
		ID:    p.ObjectID,
		Type:  StructType(packageID, KindProfile),
		Owner: p.Owner,
		Fields: map[string]any{
			"id":                uid(p.ObjectID),
			"owner":             p.Owner,
			"display_name":      byteVector(p.DisplayName),
			"bio":               byteVector(p.Bio),
			"avatar_url":        byteVector(p.AvatarURL),
			"user_type":         small(uint64(p.UserType)),
			"created_at":        u64(uint64(p.CreatedAt)),
			"tasks_created":     u64(p.TasksCreated),
			"submissions_count": u64(p.SubmissionsCount),
			"reputation_score":  u64(p.ReputationScore),
			"total_earned":      u64(p.TotalEarned),
		},
	}
}

func EncodeTask(packageID string, t *types.Task) *ledger.Object {
	var tracker any
	if t.QualityTrackerID != "" {
		tracker = t.QualityTrackerID
	}
	return &ledger.Object{
		ID:    t.ObjectID,
		Type:  StructType(packageID, KindTask),
		Owner: "shared",
		Fields: map[string]any{
			"id":                   uid(t.ObjectID),
			"task_id":              u64(t.TaskID),
			"requester":            t.Requester,
			"title":                byteVector(t.Title),
			"description":          byteVector(t.Description),
			"instructions":         byteVector(t.Instructions),
			"dataset_url":          byteVector(t.DatasetURL),
			"dataset_filename":     byteVector(t.DatasetFilename),
			"dataset_content_type": byteVector(t.DatasetContentType),
			"bounty":               u64(t.Bounty),
			"required_labelers":    u64(t.RequiredLabelers),
			"current_labelers":     u64(t.CurrentLabelers),
			"deadline":             u64(uint64(t.Deadline)),
			"status":               small(uint64(t.Status)),
			"created_at":           u64(uint64(t.CreatedAt)),
			"quality_tracker_id":   tracker,
		},
	}
}

func EncodeSubmission(packageID string, s *types.Submission) *ledger.Object {
	return &ledger.Object{
		ID:    s.ObjectID,
		Type:  StructType(packageID, KindSubmission),
		Owner: "shared",
		Fields: map[string]any{
			"id":                  uid(s.ObjectID),
			"submission_id":       u64(s.SubmissionID),
			"task_id":             u64(s.TaskID),
			"labeler":             s.Labeler,
			"result_url":          byteVector(s.ResultURL),
			"result_filename":     byteVector(s.ResultFilename),
			"result_content_type": byteVector(s.ResultContentType),
			"status":              small(uint64(s.Status)),
			"submitted_at":        u64(uint64(s.SubmittedAt)),
		},
	}
}

func EncodeStake(packageID string, s *types.Stake) *ledger.Object {
	return &ledger.Object{
		ID:    s.ObjectID,
		Type:  StructType(packageID, KindStake),
		Owner: s.Labeler,
		Fields: map[string]any{
			"id":             uid(s.ObjectID),
			"labeler":        s.Labeler,
			"amount":         u64(s.StakeValue),
			"locked_until":   u64(uint64(s.LockedUntil)),
			"slashed_amount": u64(s.SlashedAmount),
		},
	}
}

func EncodeReputation(packageID, objectID string, r *types.ReputationRecord) *ledger.Object {
	badges := make([]any, 0, len(r.Badges))
	for _, badge := range r.Badges {
		badges = append(badges, u64(badge))
	}
	return &ledger.Object{
		ID:    objectID,
		Type:  StructType(packageID, KindReputation),
		Owner: "shared",
		Fields: map[string]any{
			"id":               uid(objectID),
			"user":             r.User,
			"total_completed":  u64(r.TotalCompleted),
			"total_accepted":   u64(r.TotalAccepted),
			"total_rejected":   u64(r.TotalRejected),
			"reputation_score": u64(r.ReputationScore),
			"badges":           map[string]any{"contents": badges},
		},
	}
}

// EncodeRegistry renders a registry whose tables live at the given ids.
func EncodeRegistry(packageID string, r *Registry) *ledger.Object {
	return &ledger.Object{
		ID:    r.ID,
		Type:  StructType(packageID, KindRegistry),
		Owner: "shared",
		Fields: map[string]any{
			"id":           uid(r.ID),
			"profiles":     table(r.Profiles),
			"tasks":        table(r.Tasks),
			"submissions":  table(r.Submissions),
			"reputation":   table(r.Reputation),
			"task_counter": u64(r.TaskCount),
		},
	}
}

func uid(id string) map[string]any {
	return map[string]any{"id": id}
}

func u64(n uint64) string {
	return strconv.FormatUint(n, 10)
}

func small(n uint64) json.Number {
	return json.Number(strconv.FormatUint(n, 10))
}

func byteVector(s string) []any {
	out := make([]any, 0, len(s))
	for _, c := range []byte(s) {
		out = append(out, small(uint64(c)))
	}
	return out
}

func table(t Table) map[string]any {
	return map[string]any{
		"type": "0x2::table::Table",
		"fields": map[string]any{
			"id":   uid(t.ID),
			"size": u64(t.Size),
		},
	}
}
