package ledger

import (
	"context"
	"fmt"
)

// Client is the object-store capability the rest of the backend reads and writes through.
// Implementations return pkgErrors.ErrNotFound for absent objects and keys.
type Client interface {
	GetObject(ctx context.Context, id string) (*Object, error)
	GetDynamicField(ctx context.Context, parentID string, name DynamicFieldName) (*Object, error)
	ListDynamicFields(ctx context.Context, parentID string) ([]DynamicFieldInfo, error)
	ListOwnedObjects(ctx context.Context, owner, structType string) ([]*Object, error)
	ExecuteTransaction(ctx context.Context, tx SignedTransaction) (*Effects, error)
}

// Object is a ledger object with its Move fields left as a raw bag for the decoder.
type Object struct {
	ID      string         `json:"object_id"`
	Type    string         `json:"type"`
	Owner   string         `json:"owner"`
	Version uint64         `json:"version"`
	Fields  map[string]any `json:"fields"`
}

// DynamicFieldName is the key of a dynamic field, e.g. {u64, "3"} or {address, "0x.."}.
type DynamicFieldName struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func (n DynamicFieldName) String() string {
	return fmt.Sprintf("%s:%v", n.Type, n.Value)
}

type DynamicFieldInfo struct {
	Name       DynamicFieldName `json:"name"`
	ObjectID   string           `json:"objectId"`
	ObjectType string           `json:"objectType"`
}

// SignedTransaction is a serialized transaction plus the signatures authorizing it.
type SignedTransaction struct {
	TxBytes    string   `json:"tx_bytes"`
	Signatures []string `json:"signatures"`
}

type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusFailure ExecutionStatus = "failure"
)

// Effects is the confirmed outcome of an executed transaction.
type Effects struct {
	Digest      string          `json:"digest"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	AbortCode   *uint64         `json:"abort_code,omitempty"`
	AbortModule string          `json:"abort_module,omitempty"`
	CreatedIDs  []string        `json:"created_ids,omitempty"`
	MutatedIDs  []string        `json:"mutated_ids,omitempty"`
}

func (e *Effects) Succeeded() bool {
	return e != nil && e.Status == StatusSuccess
}
