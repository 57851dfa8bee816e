package types

import "time"

// Profile is keyed by owner address in the registry; one per address.
type Profile struct {
	ObjectID         string   `json:"object_id"`
	Owner            string   `json:"owner"`
	DisplayName      string   `json:"display_name"`
	Bio              string   `json:"bio"`
	AvatarURL        string   `json:"avatar_url"`
	UserType         UserType `json:"user_type"`
	CreatedAt        int64    `json:"created_at"`
	TasksCreated     uint64   `json:"tasks_created"`
	SubmissionsCount uint64   `json:"submissions_count"`
	ReputationScore  uint64   `json:"reputation_score"`
	TotalEarned      uint64   `json:"total_earned"`
}

type Task struct {
	ObjectID           string     `json:"object_id"`
	TaskID             uint64     `json:"task_id"`
	Requester          string     `json:"requester"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Instructions       string     `json:"instructions"`
	DatasetURL         string     `json:"dataset_url"`
	DatasetFilename    string     `json:"dataset_filename"`
	DatasetContentType string     `json:"dataset_content_type"`
	Bounty             uint64     `json:"bounty"`
	RequiredLabelers   uint64     `json:"required_labelers"`
	CurrentLabelers    uint64     `json:"current_labelers"`
	Deadline           int64      `json:"deadline"`
	Status             TaskStatus `json:"status"`
	CreatedAt          int64      `json:"created_at"`
	QualityTrackerID   string     `json:"quality_tracker_id,omitempty"`
}

// PayoutPerLabeler divides the bounty by the required labeler count, not by the number
// accepted. Unfilled slots leave their share escrowed.
func (t *Task) PayoutPerLabeler() uint64 {
	if t.RequiredLabelers == 0 {
		return 0
	}
	return t.Bounty / t.RequiredLabelers
}

func (t *Task) IsPastDeadline(now time.Time) bool {
	return now.UnixMilli() >= t.Deadline
}

// Slots returns how many more labelers the task accepts.
func (t *Task) Slots() uint64 {
	if t.CurrentLabelers >= t.RequiredLabelers {
		return 0
	}
	return t.RequiredLabelers - t.CurrentLabelers
}

func (t *Task) AcceptsSubmissions(now time.Time) bool {
	if t.Status != TaskStatusOpen && t.Status != TaskStatusInProgress {
		return false
	}
	return !t.IsPastDeadline(now) && t.Slots() > 0
}

type Submission struct {
	ObjectID          string           `json:"object_id"`
	SubmissionID      uint64           `json:"submission_id"`
	TaskID            uint64           `json:"task_id"`
	Labeler           string           `json:"labeler"`
	ResultURL         string           `json:"result_url"`
	ResultFilename    string           `json:"result_filename"`
	ResultContentType string           `json:"result_content_type"`
	Status            SubmissionStatus `json:"status"`
	SubmittedAt       int64            `json:"submitted_at"`
}

type Stake struct {
	ObjectID      string `json:"object_id"`
	Labeler       string `json:"labeler"`
	StakeValue    uint64 `json:"stake_value"`
	LockedUntil   int64  `json:"locked_until"`
	SlashedAmount uint64 `json:"slashed_amount"`
}

// IsLocked is derived, never stored.
func (s *Stake) IsLocked(now time.Time) bool {
	return now.UnixMilli() < s.LockedUntil
}

const MaxReputationScore = 1000

type ReputationRecord struct {
	User            string   `json:"user"`
	TotalCompleted  uint64   `json:"total_completed"`
	TotalAccepted   uint64   `json:"total_accepted"`
	TotalRejected   uint64   `json:"total_rejected"`
	ReputationScore uint64   `json:"reputation_score"`
	Badges          []uint64 `json:"badges"`
}

// UIScore scales the raw 0-1000 score to 0-100.
func (r *ReputationRecord) UIScore() uint64 {
	score := r.ReputationScore
	if score > MaxReputationScore {
		score = MaxReputationScore
	}
	return score / 10
}
