package abi

import (
	"bytes"
	"encoding/json"
	"fmt"

	eos "github.com/eoscanada/eos-go"
)

// EncodeActionData serializes payload as the data of action using a. The
// payload is anything that marshals to a JSON object whose fields match the
// action's struct; nil is an empty object.
func EncodeActionData(a *eos.ABI, action string, payload any) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("encode %s: no abi", action)
	}
	if _, ok := ActionType(a, action); !ok {
		return nil, fmt.Errorf("encode %s: action is not declared", action)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}
	data, err := a.EncodeAction(eos.ActionName(action), raw)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}
	return data, nil
}

// DecodeActionData parses the data of action into a JSON object. Numbers are
// kept as json.Number.
func DecodeActionData(a *eos.ABI, action string, data []byte) (map[string]any, error) {
	if a == nil {
		return nil, fmt.Errorf("decode %s: no abi", action)
	}
	raw, err := a.DecodeAction(data, eos.ActionName(action))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", action, err)
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", action, err)
	}
	return out, nil
}

// NewAction builds an action around already serialized data.
func NewAction(account, name string, auth []eos.PermissionLevel, data []byte) *eos.Action {
	if auth == nil {
		auth = []eos.PermissionLevel{}
	}
	return &eos.Action{
		Account:       eos.AccountName(account),
		Name:          eos.ActionName(name),
		Authorization: auth,
		ActionData:    eos.ActionData{HexData: data},
	}
}

// ActionBytes returns the serialized data of act.
func ActionBytes(act *eos.Action) []byte {
	if len(act.HexData) > 0 {
		return act.HexData
	}
	switch d := act.Data.(type) {
	case eos.HexBytes:
		return d
	case []byte:
		return d
	}
	return nil
}
