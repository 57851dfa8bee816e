package decoder

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

const testPackage = "0xfeed"

func sampleTask() *types.Task {
	return &types.Task{
		ObjectID:           "0x7a5c",
		TaskID:             7,
		Requester:          "0xa1",
		Title:              "Label street signs 🚦",
		Description:        "Bounding boxes",
		Instructions:       "One box per sign",
		DatasetURL:         "https://aggregator/v1/blobs/abc",
		DatasetFilename:    "signs.zip",
		DatasetContentType: "application/zip",
		Bounty:             18_446_744_073_709_551_000,
		RequiredLabelers:   3,
		CurrentLabelers:    1,
		Deadline:           1_900_000_000_000,
		Status:             types.TaskStatusInProgress,
		CreatedAt:          1_700_000_000_000,
		QualityTrackerID:   "0x9a",
	}
}

func TestDecodeTask_RoundTrip(t *testing.T) {
	original := sampleTask()

	decoded, err := DecodeTask(EncodeTask(testPackage, original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeTask_RoundTripThroughJSON(t *testing.T) {
	original := sampleTask()
	obj := EncodeTask(testPackage, original)

	raw, err := json.Marshal(obj.Fields)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	obj.Fields = fields

	// Plain float64 decoding of small numbers is tolerated; u64 stays a string.
	decoded, err := DecodeTask(obj)
	require.NoError(t, err)
	assert.Equal(t, original.Bounty, decoded.Bounty)
	assert.Equal(t, original.Title, decoded.Title)
}

func TestDecodeTask_MissingQualityTrackerIsLegacy(t *testing.T) {
	obj := EncodeTask(testPackage, sampleTask())
	delete(obj.Fields, "quality_tracker_id")

	_, err := DecodeTask(obj)

	var decodeErr *pkgErrors.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "quality_tracker_id", decodeErr.Field)
	assert.Equal(t, KindTask, decodeErr.Kind)
	assert.Equal(t, pkgErrors.CategoryLegacyRecord, pkgErrors.Classify(err))
}

func TestDecodeTask_NullQualityTrackerIsAllowed(t *testing.T) {
	task := sampleTask()
	task.QualityTrackerID = ""

	decoded, err := DecodeTask(EncodeTask(testPackage, task))
	require.NoError(t, err)
	assert.Empty(t, decoded.QualityTrackerID)
}

func TestDecodeTask_MalformedFields(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
	}{
		{name: "bounty not a number", field: "bounty", value: "lots"},
		{name: "bounty overflows u64", field: "bounty", value: "18446744073709551616"},
		{name: "fractional float", field: "required_labelers", value: 2.5},
		{name: "invalid utf8", field: "title", value: []any{json.Number("255"), json.Number("254")}},
		{name: "unknown status", field: "status", value: json.Number("9")},
		{name: "bad requester", field: "requester", value: "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := EncodeTask(testPackage, sampleTask())
			obj.Fields[tt.field] = tt.value

			_, err := DecodeTask(obj)

			var decodeErr *pkgErrors.DecodeError
			require.True(t, errors.As(err, &decodeErr), "got %v", err)
			assert.Equal(t, tt.field, decodeErr.Field)
		})
	}
}

func TestDecodeProfile_RoundTrip(t *testing.T) {
	original := &types.Profile{
		ObjectID:         "0x11",
		Owner:            "0xa1",
		DisplayName:      "Zoë",
		Bio:              "labeler",
		AvatarURL:        "https://img/a.png",
		UserType:         types.UserTypeBoth,
		CreatedAt:        1_700_000_000_000,
		TasksCreated:     2,
		SubmissionsCount: 5,
		ReputationScore:  640,
		TotalEarned:      1200,
	}

	decoded, err := DecodeProfile(EncodeProfile(testPackage, original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeSubmission_RoundTrip(t *testing.T) {
	original := &types.Submission{
		ObjectID:          "0x51",
		SubmissionID:      3,
		TaskID:            7,
		Labeler:           "0xb0b",
		ResultURL:         "https://aggregator/v1/blobs/r3",
		ResultFilename:    "labels.json",
		ResultContentType: "application/json",
		Status:            types.SubmissionStatusRejected,
		SubmittedAt:       1_700_000_500_000,
	}

	decoded, err := DecodeSubmission(EncodeSubmission(testPackage, original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeStakeAndReputation_RoundTrip(t *testing.T) {
	stake := &types.Stake{ObjectID: "0x5a", Labeler: "0xb0b", StakeValue: 500, LockedUntil: 1_800_000_000_000, SlashedAmount: 10}
	decodedStake, err := DecodeStake(EncodeStake(testPackage, stake))
	require.NoError(t, err)
	assert.Equal(t, stake, decodedStake)

	record := &types.ReputationRecord{User: "0xb0b", TotalCompleted: 4, TotalAccepted: 3, TotalRejected: 1, ReputationScore: 750, Badges: []uint64{1, 4}}
	decodedRecord, err := DecodeReputation(EncodeReputation(testPackage, "0x3e", record))
	require.NoError(t, err)
	assert.Equal(t, record, decodedRecord)
}

func TestDecodeRegistry(t *testing.T) {
	original := &Registry{
		ID:          "0x1e",
		Profiles:    Table{ID: "0x21", Size: 2},
		Tasks:       Table{ID: "0x22", Size: 3},
		Submissions: Table{ID: "0x23"},
		Reputation:  Table{ID: "0x24"},
		TaskCount:   3,
	}

	decoded, err := DecodeRegistry(EncodeRegistry(testPackage, original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	table, err := decoded.TableFor(KindSubmission)
	require.NoError(t, err)
	assert.Equal(t, "0x23", table.ID)

	_, err = decoded.TableFor(KindStake)
	assert.Error(t, err)
}

func TestDecodeTableEntry(t *testing.T) {
	addr, err := DecodeTableEntry(&ledger.Object{ID: "0xdf", Fields: map[string]any{"name": "7", "value": "0x7a5c"}})
	require.NoError(t, err)
	assert.Equal(t, "0x7a5c", addr)

	_, err = DecodeTableEntry(&ledger.Object{ID: "0xdf", Fields: map[string]any{"name": "7"}})
	assert.Error(t, err)
}

func TestDecodeText_ByteVectorAndString(t *testing.T) {
	text, err := decodeText([]any{json.Number("104"), float64(105)})
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	text, err = decodeText("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", text)
}
