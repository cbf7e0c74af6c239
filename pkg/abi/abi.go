// Package abi adapts eos-go's ABI and transaction types to what the harness
// needs: parsing contract ABIs, listing their actions and tables, and
// moving action payloads and transactions to and from the binary format.
package abi

import (
	"encoding/json"
	"fmt"
	"sort"

	eos "github.com/eoscanada/eos-go"
)

// DefaultVersion is written into ABIs that do not name one.
const DefaultVersion = "eosio::abi/1.1"

// ParseABI decodes the JSON form of an ABI and fills in its defaults.
func ParseABI(data []byte) (*eos.ABI, error) {
	var a eos.ABI
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return WithDefaults(&a), nil
}

// WithDefaults gives every list of a an empty value when it has none and
// sets DefaultVersion when the version is missing. A nil ABI stays nil.
func WithDefaults(a *eos.ABI) *eos.ABI {
	if a == nil {
		return nil
	}
	if a.Version == "" {
		a.Version = DefaultVersion
	}
	if a.Types == nil {
		a.Types = []eos.ABIType{}
	}
	if a.Structs == nil {
		a.Structs = []eos.StructDef{}
	}
	if a.Actions == nil {
		a.Actions = []eos.ActionDef{}
	}
	if a.Tables == nil {
		a.Tables = []eos.TableDef{}
	}
	if a.RicardianClauses == nil {
		a.RicardianClauses = []eos.ClausePair{}
	}
	if a.ErrorMessages == nil {
		a.ErrorMessages = []eos.ABIErrorMessage{}
	}
	if a.Extensions == nil {
		a.Extensions = []*eos.Extension{}
	}
	return a
}

// EncodeABIDef binary-encodes the JSON text of an ABI, the payload setabi
// carries. Lists the JSON leaves out are written as empty.
func EncodeABIDef(raw []byte) ([]byte, error) {
	a, err := ParseABI(raw)
	if err != nil {
		return nil, err
	}
	return EncodeABI(a)
}

// EncodeABI binary-encodes a.
func EncodeABI(a *eos.ABI) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("encode abi: nil abi")
	}
	b, err := eos.MarshalBinary(WithDefaults(a))
	if err != nil {
		return nil, fmt.Errorf("encode abi: %w", err)
	}
	return b, nil
}

// DecodeABI parses the binary form written by setabi.
func DecodeABI(data []byte) (*eos.ABI, error) {
	var a eos.ABI
	if err := eos.UnmarshalBinary(data, &a); err != nil {
		return nil, fmt.Errorf("decode abi: %w", err)
	}
	return WithDefaults(&a), nil
}

// ActionNames returns the actions a declares, sorted. A nil ABI declares none.
func ActionNames(a *eos.ABI) []string {
	if a == nil {
		return []string{}
	}
	names := make([]string, 0, len(a.Actions))
	for _, act := range a.Actions {
		names = append(names, string(act.Name))
	}
	sort.Strings(names)
	return names
}

// TableNames returns the tables a declares, sorted.
func TableNames(a *eos.ABI) []string {
	if a == nil {
		return []string{}
	}
	names := make([]string, 0, len(a.Tables))
	for _, t := range a.Tables {
		names = append(names, string(t.Name))
	}
	sort.Strings(names)
	return names
}

// ActionType returns the payload type of an action.
func ActionType(a *eos.ABI, name string) (string, bool) {
	if a == nil {
		return "", false
	}
	for _, act := range a.Actions {
		if string(act.Name) == name {
			return act.Type, true
		}
	}
	return "", false
}

// TableType returns the row type of a table.
func TableType(a *eos.ABI, name string) (string, bool) {
	if a == nil {
		return "", false
	}
	for _, t := range a.Tables {
		if string(t.Name) == name {
			return t.Type, true
		}
	}
	return "", false
}
