package txbuilder

import (
	"fmt"
	"strings"
)

// Kind names a mutating operation. Used in logs and metrics.
type Kind string

const (
	KindCreateProfile          Kind = "create_profile"
	KindUpdateProfile          Kind = "update_profile"
	KindUpdateUserType         Kind = "update_user_type"
	KindCreateTask             Kind = "create_task"
	KindSubmitLabels           Kind = "submit_labels"
	KindCancelTask             Kind = "cancel_task"
	KindFinalizeConsensus      Kind = "finalize_consensus"
	KindUpdateSubmissionStatus Kind = "update_submission_status"
	KindStake                  Kind = "stake"
	KindUnstake                Kind = "unstake"
)

type ArgKind string

const (
	// ArgObject references a ledger object by id
	ArgObject ArgKind = "object"
	// ArgPure is a BCS-encodable value of the given Move type
	ArgPure ArgKind = "pure"
	// ArgGasSplit is a coin split off the gas coin for the given amount
	ArgGasSplit ArgKind = "gas_split"
)

type Argument struct {
	Kind  ArgKind `json:"kind"`
	Type  string  `json:"type,omitempty"`
	Value any     `json:"value"`
}

// Intent is an unsigned move call. It carries everything a signer needs to build and
// sign the transaction.
type Intent struct {
	Kind      Kind       `json:"kind"`
	Target    string     `json:"target"`
	Arguments []Argument `json:"arguments"`
	// Touches lists the object ids the call reads or mutates
	Touches []string `json:"touches"`
}

func (i *Intent) Module() string {
	parts := strings.Split(i.Target, "::")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

func (i *Intent) Function() string {
	parts := strings.Split(i.Target, "::")
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}

func (i *Intent) String() string {
	return fmt.Sprintf("%s(%d args)", i.Target, len(i.Arguments))
}

func object(id string) Argument {
	return Argument{Kind: ArgObject, Value: id}
}

func text(s string) Argument {
	return Argument{Kind: ArgPure, Type: "vector<u8>", Value: []byte(s)}
}

func u64(n uint64) Argument {
	return Argument{Kind: ArgPure, Type: "u64", Value: n}
}

func u8(n uint8) Argument {
	return Argument{Kind: ArgPure, Type: "u8", Value: n}
}

func boolean(b bool) Argument {
	return Argument{Kind: ArgPure, Type: "bool", Value: b}
}

func u64s(ns []uint64) Argument {
	return Argument{Kind: ArgPure, Type: "vector<u64>", Value: ns}
}

func addresses(addrs []string) Argument {
	return Argument{Kind: ArgPure, Type: "vector<address>", Value: addrs}
}

func gasSplit(amount uint64) Argument {
	return Argument{Kind: ArgGasSplit, Type: "u64", Value: amount}
}
