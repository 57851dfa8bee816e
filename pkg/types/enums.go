package types

import (
	"encoding/json"
	"fmt"
)

type UserType uint8

const (
	UserTypeRequester UserType = iota
	UserTypeLabeler
	UserTypeBoth
	UserTypeAdmin
)

var userTypeNames = map[UserType]string{
	UserTypeRequester: "requester",
	UserTypeLabeler:   "labeler",
	UserTypeBoth:      "both",
	UserTypeAdmin:     "admin",
}

func (u UserType) String() string {
	if name, ok := userTypeNames[u]; ok {
		return name
	}
	return fmt.Sprintf("user_type(%d)", uint8(u))
}

func (u UserType) Valid() bool {
	_, ok := userTypeNames[u]
	return ok
}

func (u UserType) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *UserType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, userTypeNames, u)
}

func ParseUserType(s string) (UserType, error) {
	return parseEnum(s, userTypeNames)
}

// TaskStatus follows the on-chain encoding: 0 open, 1 in progress, 2 completed, 3 cancelled.
type TaskStatus uint8

const (
	TaskStatusOpen TaskStatus = iota
	TaskStatusInProgress
	TaskStatusCompleted
	TaskStatusCancelled
)

var taskStatusNames = map[TaskStatus]string{
	TaskStatusOpen:       "open",
	TaskStatusInProgress: "in_progress",
	TaskStatusCompleted:  "completed",
	TaskStatusCancelled:  "cancelled",
}

func (s TaskStatus) String() string {
	if name, ok := taskStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("task_status(%d)", uint8(s))
}

func (s TaskStatus) Valid() bool {
	_, ok := taskStatusNames[s]
	return ok
}

func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, taskStatusNames, s)
}

type SubmissionStatus uint8

const (
	SubmissionStatusPending SubmissionStatus = iota
	SubmissionStatusAccepted
	SubmissionStatusRejected
)

var submissionStatusNames = map[SubmissionStatus]string{
	SubmissionStatusPending:  "pending",
	SubmissionStatusAccepted: "accepted",
	SubmissionStatusRejected: "rejected",
}

func (s SubmissionStatus) String() string {
	if name, ok := submissionStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("submission_status(%d)", uint8(s))
}

func (s SubmissionStatus) Valid() bool {
	_, ok := submissionStatusNames[s]
	return ok
}

func (s SubmissionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *SubmissionStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, submissionStatusNames, s)
}

func parseEnum[T comparable](s string, names map[T]string) (T, error) {
	for value, name := range names {
		if name == s {
			return value, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown enum value %q", s)
}

func unmarshalEnum[T comparable](data []byte, names map[T]string, out *T) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	value, err := parseEnum(name, names)
	if err != nil {
		return err
	}
	*out = value
	return nil
}
