package devchain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
)

// args reads move-call arguments after a JSON round trip through the dev wallet.
type args struct {
	values []txbuilder.Argument
	err    error
}

func (a *args) fail(i int, want string) {
	if a.err == nil {
		a.err = fmt.Errorf("argument %d: expected %s", i, want)
	}
}

func (a *args) raw(i int) any {
	if i >= len(a.values) {
		a.fail(i, "a value")
		return nil
	}
	return a.values[i].Value
}

func (a *args) object(i int) string {
	s, ok := a.raw(i).(string)
	if !ok {
		a.fail(i, "an object id")
	}
	return s
}

func (a *args) text(i int) string {
	s, ok := a.raw(i).(string)
	if !ok {
		a.fail(i, "a byte vector")
		return ""
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		a.fail(i, "a base64 byte vector")
	}
	return string(b)
}

func (a *args) u64(i int) uint64 {
	return a.number(i, a.raw(i))
}

func (a *args) number(i int, v any) uint64 {
	switch n := v.(type) {
	case json.Number:
		out, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			a.fail(i, "an unsigned integer")
		}
		return out
	case string:
		out, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			a.fail(i, "an unsigned integer")
		}
		return out
	}
	a.fail(i, "an unsigned integer")
	return 0
}

func (a *args) boolean(i int) bool {
	b, ok := a.raw(i).(bool)
	if !ok {
		a.fail(i, "a bool")
	}
	return b
}

func (a *args) u64s(i int) []uint64 {
	items, ok := a.raw(i).([]any)
	if !ok {
		a.fail(i, "a vector<u64>")
		return nil
	}
	out := make([]uint64, len(items))
	for j, item := range items {
		out[j] = a.number(i, item)
	}
	return out
}
