package decoder

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common/hexutil"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/env"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
)

// bag reads typed values out of an object's field map and reports the first failure
// as a DecodeError naming the offending field.
type bag struct {
	kind     string
	objectID string
	fields   map[string]any
	err      error
}

func newBag(kind string, obj *ledger.Object) *bag {
	b := &bag{kind: kind}
	if obj == nil {
		b.fail("", "object is nil")
		return b
	}
	b.objectID = obj.ID
	b.fields = obj.Fields
	if b.fields == nil {
		b.fail("", "object has no fields")
	}
	return b
}

func (b *bag) fail(field, reason string) {
	if b.err == nil {
		b.err = &pkgErrors.DecodeError{Kind: b.kind, ObjectID: b.objectID, Field: field, Reason: reason}
	}
}

func (b *bag) get(field string) (any, bool) {
	if b.err != nil {
		return nil, false
	}
	value, ok := b.fields[field]
	if !ok {
		b.fail(field, "missing")
		return nil, false
	}
	return unwrapValue(value), true
}

// unwrapValue flattens the {"type": .., "fields": {"value": ..}} wrapper used for
// balances and single-field structs.
func unwrapValue(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if inner, ok := m["fields"].(map[string]any); ok {
		m = inner
	}
	if v, ok := m["value"]; ok && len(m) <= 2 {
		return v
	}
	return m
}

func (b *bag) Text(field string) string {
	value, ok := b.get(field)
	if !ok {
		return ""
	}
	text, err := decodeText(value)
	if err != nil {
		b.fail(field, err.Error())
	}
	return text
}

func (b *bag) Uint64(field string) uint64 {
	value, ok := b.get(field)
	if !ok {
		return 0
	}
	n, err := decodeUint64(value)
	if err != nil {
		b.fail(field, err.Error())
	}
	return n
}

func (b *bag) Int64(field string) int64 {
	n := b.Uint64(field)
	if n > math.MaxInt64 {
		b.fail(field, "timestamp out of range")
		return 0
	}
	return int64(n)
}

func (b *bag) Uint8(field string) uint8 {
	n := b.Uint64(field)
	if n > math.MaxUint8 {
		b.fail(field, fmt.Sprintf("value %d out of range for u8", n))
		return 0
	}
	return uint8(n)
}

func (b *bag) Address(field string) string {
	value, ok := b.get(field)
	if !ok {
		return ""
	}
	addr, err := decodeAddress(value)
	if err != nil {
		b.fail(field, err.Error())
	}
	return addr
}

// OptionalID reads an Option<ID>: the field must be present, but may be null.
func (b *bag) OptionalID(field string) string {
	value, ok := b.get(field)
	if !ok || value == nil {
		return ""
	}
	if m, isMap := value.(map[string]any); isMap {
		if vec, hasVec := m["vec"].([]any); hasVec {
			if len(vec) == 0 {
				return ""
			}
			value = vec[0]
		}
	}
	addr, err := decodeAddress(value)
	if err != nil {
		b.fail(field, err.Error())
	}
	return addr
}

func (b *bag) Uint64Slice(field string) []uint64 {
	value, ok := b.get(field)
	if !ok {
		return nil
	}
	if m, isMap := value.(map[string]any); isMap {
		// VecSet<u64> renders as {"contents": [...]}
		value = m["contents"]
	}
	items, isSlice := value.([]any)
	if !isSlice {
		if value == nil {
			return []uint64{}
		}
		b.fail(field, fmt.Sprintf("expected list, got %T", value))
		return nil
	}
	out := make([]uint64, 0, len(items))
	for _, item := range items {
		n, err := decodeUint64(item)
		if err != nil {
			b.fail(field, err.Error())
			return nil
		}
		out = append(out, n)
	}
	return out
}

// ObjectID prefers the envelope id and falls back to the UID field.
func (b *bag) ObjectID() string {
	if b.objectID != "" {
		return b.objectID
	}
	if id, ok := uidOf(b.fields["id"]); ok {
		b.objectID = id
		return id
	}
	b.fail("id", "missing object id")
	return ""
}

func uidOf(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, env.IsValidObjectID(v)
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			return id, env.IsValidObjectID(id)
		}
	}
	return "", false
}

func decodeUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case string:
		return strconv.ParseUint(v, 10, 64)
	case json.Number:
		return strconv.ParseUint(v.String(), 10, 64)
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d", v)
		}
		return uint64(v), nil
	case float64:
		// Only small integral values can arrive as plain JSON numbers without loss.
		if v < 0 || v != math.Trunc(v) || v > 1<<53 {
			return 0, fmt.Errorf("non-integral or unsafe number %v", v)
		}
		return uint64(v), nil
	case nil:
		return 0, fmt.Errorf("null value")
	}
	return 0, fmt.Errorf("expected integer, got %T", value)
}

func decodeBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case []any:
		raw := make([]byte, 0, len(v))
		for _, item := range v {
			n, err := decodeUint64(item)
			if err != nil || n > math.MaxUint8 {
				return nil, fmt.Errorf("invalid byte in vector")
			}
			raw = append(raw, byte(n))
		}
		return raw, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("expected bytes, got %T", value)
}

// decodeText accepts a UTF-8 string or a vector<u8> rendered as a list of byte values.
func decodeText(value any) (string, error) {
	raw, err := decodeBytes(value)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("invalid UTF-8")
	}
	return string(raw), nil
}

func decodeAddress(value any) (string, error) {
	switch v := value.(type) {
	case string:
		if !env.IsValidObjectID(v) {
			return "", fmt.Errorf("invalid address %q", v)
		}
		return v, nil
	case []any:
		raw, err := decodeBytes(v)
		if err != nil {
			return "", err
		}
		if len(raw) != 32 {
			return "", fmt.Errorf("address must be 32 bytes, got %d", len(raw))
		}
		return hexutil.Encode(raw), nil
	case map[string]any:
		if id, ok := uidOf(v); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("expected address, got %T", value)
}
