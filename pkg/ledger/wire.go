package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire shapes of the full node's JSON-RPC responses.

type objectDataOptions struct {
	ShowType    bool `json:"showType"`
	ShowOwner   bool `json:"showOwner"`
	ShowContent bool `json:"showContent"`
}

var fullObjectOptions = objectDataOptions{ShowType: true, ShowOwner: true, ShowContent: true}

type objectResponse struct {
	Data  *objectData  `json:"data"`
	Error *objectError `json:"error"`
}

type objectError struct {
	Code     string `json:"code"`
	ObjectID string `json:"object_id"`
}

type objectData struct {
	ObjectID string          `json:"objectId"`
	Version  string          `json:"version"`
	Type     string          `json:"type"`
	Owner    json.RawMessage `json:"owner"`
	Content  *struct {
		DataType string         `json:"dataType"`
		Type     string         `json:"type"`
		Fields   map[string]any `json:"fields"`
	} `json:"content"`
}

type dynamicFieldPage struct {
	Data        []DynamicFieldInfo `json:"data"`
	NextCursor  *string            `json:"nextCursor"`
	HasNextPage bool               `json:"hasNextPage"`
}

type ownedObjectQuery struct {
	Filter  map[string]string `json:"filter,omitempty"`
	Options objectDataOptions `json:"options"`
}

type ownedObjectPage struct {
	Data        []objectResponse `json:"data"`
	NextCursor  *string          `json:"nextCursor"`
	HasNextPage bool             `json:"hasNextPage"`
}

type executeOptions struct {
	ShowEffects bool `json:"showEffects"`
}

type executeResponse struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
		Created []ownedReference `json:"created"`
		Mutated []ownedReference `json:"mutated"`
	} `json:"effects"`
}

type ownedReference struct {
	Reference struct {
		ObjectID string `json:"objectId"`
	} `json:"reference"`
}

// decodeJSON keeps numbers as json.Number so u64 values never pass through float64.
func decodeJSON(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

func (r *objectResponse) isNotFound() bool {
	if r.Error != nil {
		switch r.Error.Code {
		case "notExists", "deleted", "dynamicFieldNotFound":
			return true
		}
	}
	return r.Data == nil
}

func (d *objectData) toObject() (*Object, error) {
	obj := &Object{
		ID:   d.ObjectID,
		Type: d.Type,
	}
	if d.Version != "" {
		version, err := strconv.ParseUint(d.Version, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid object version %q: %w", d.Version, err)
		}
		obj.Version = version
	}
	owner, err := parseOwner(d.Owner)
	if err != nil {
		return nil, err
	}
	obj.Owner = owner
	if d.Content != nil {
		if obj.Type == "" {
			obj.Type = d.Content.Type
		}
		obj.Fields = d.Content.Fields
	}
	if obj.Fields == nil {
		obj.Fields = map[string]any{}
	}
	return obj, nil
}

// parseOwner flattens the owner enum: AddressOwner and ObjectOwner yield the address,
// Shared yields "shared", Immutable yields "immutable".
func parseOwner(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var simple string
	if err := json.Unmarshal(raw, &simple); err == nil {
		if simple == "Immutable" {
			return "immutable", nil
		}
		return simple, nil
	}
	var owner map[string]json.RawMessage
	if err := json.Unmarshal(raw, &owner); err != nil {
		return "", fmt.Errorf("invalid owner: %w", err)
	}
	for _, key := range []string{"AddressOwner", "ObjectOwner"} {
		if value, ok := owner[key]; ok {
			var addr string
			if err := json.Unmarshal(value, &addr); err != nil {
				return "", fmt.Errorf("invalid %s: %w", key, err)
			}
			return addr, nil
		}
	}
	if _, ok := owner["Shared"]; ok {
		return "shared", nil
	}
	return "", nil
}

func (r *executeResponse) toEffects() *Effects {
	effects := &Effects{Digest: r.Digest, Status: StatusFailure}
	if r.Effects == nil {
		effects.Error = "missing effects"
		return effects
	}
	effects.Status = ExecutionStatus(r.Effects.Status.Status)
	effects.Error = r.Effects.Status.Error
	for _, ref := range r.Effects.Created {
		effects.CreatedIDs = append(effects.CreatedIDs, ref.Reference.ObjectID)
	}
	for _, ref := range r.Effects.Mutated {
		effects.MutatedIDs = append(effects.MutatedIDs, ref.Reference.ObjectID)
	}
	if module, code, ok := ParseAbort(effects.Error); ok {
		effects.AbortModule = module
		effects.AbortCode = &code
	}
	return effects
}
