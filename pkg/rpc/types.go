package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	eos "github.com/eoscanada/eos-go"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
)

// Chain API paths.
const (
	PathGetInfo         = "/v1/chain/get_info"
	PathGetAccount      = "/v1/chain/get_account"
	PathGetABI          = "/v1/chain/get_abi"
	PathGetBlock        = "/v1/chain/get_block"
	PathGetTableRows    = "/v1/chain/get_table_rows"
	PathGetRequiredKeys = "/v1/chain/get_required_keys"
	PathPushTransaction = "/v1/chain/push_transaction"
)

const timePointSecLayout = "2006-01-02T15:04:05"

// InfoResponse is the reply of get_info.
type InfoResponse struct {
	ServerVersion            string `json:"server_version"`
	ChainID                  string `json:"chain_id"`
	HeadBlockNum             uint32 `json:"head_block_num"`
	LastIrreversibleBlockNum uint32 `json:"last_irreversible_block_num"`
	LastIrreversibleBlockID  string `json:"last_irreversible_block_id"`
	HeadBlockID              string `json:"head_block_id"`
	HeadBlockTime            string `json:"head_block_time"`
	HeadBlockProducer        string `json:"head_block_producer"`
}

type KeyWeight struct {
	Key    string `json:"key"`
	Weight uint16 `json:"weight"`
}

type PermissionLevelWeight struct {
	Permission eos.PermissionLevel `json:"permission"`
	Weight     uint16              `json:"weight"`
}

type WaitWeight struct {
	WaitSec uint32 `json:"wait_sec"`
	Weight  uint16 `json:"weight"`
}

// Authority is the requirement attached to an account permission.
type Authority struct {
	Threshold uint32                  `json:"threshold"`
	Keys      []KeyWeight             `json:"keys"`
	Accounts  []PermissionLevelWeight `json:"accounts"`
	Waits     []WaitWeight            `json:"waits"`
}

// SingleKeyAuthority returns a threshold 1 authority satisfied by key alone.
func SingleKeyAuthority(key string) Authority {
	return Authority{
		Threshold: 1,
		Keys:      []KeyWeight{{Key: key, Weight: 1}},
		Accounts:  []PermissionLevelWeight{},
		Waits:     []WaitWeight{},
	}
}

type Permission struct {
	PermName     string    `json:"perm_name"`
	Parent       string    `json:"parent"`
	RequiredAuth Authority `json:"required_auth"`
}

// AccountResponse is the reply of get_account, reduced to what the harness reads.
type AccountResponse struct {
	AccountName string       `json:"account_name"`
	Privileged  bool         `json:"privileged"`
	Created     string       `json:"created"`
	Permissions []Permission `json:"permissions"`
}

// ABIResponse is the reply of get_abi. ABI is nil for accounts without a contract.
type ABIResponse struct {
	AccountName string   `json:"account_name"`
	ABI         *eos.ABI `json:"abi,omitempty"`
}

// BlockResponse is the reply of get_block, reduced to the reference fields.
type BlockResponse struct {
	ID             string `json:"id"`
	BlockNum       uint32 `json:"block_num"`
	Timestamp      string `json:"timestamp"`
	Producer       string `json:"producer"`
	Previous       string `json:"previous"`
	RefBlockPrefix uint32 `json:"ref_block_prefix"`
}

// Time parses the block timestamp, which carries no zone and is UTC.
func (b *BlockResponse) Time() (time.Time, error) {
	s := strings.TrimSuffix(b.Timestamp, "Z")
	t, err := time.Parse(timePointSecLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid block timestamp %q: %w", b.Timestamp, err)
	}
	return t, nil
}

// Key types accepted by get_table_rows.
const (
	KeyTypeI64       = "i64"
	KeyTypeI128      = "i128"
	KeyTypeI256      = "i256"
	KeyTypeFloat64   = "float64"
	KeyTypeFloat128  = "float128"
	KeyTypeName      = "name"
	KeyTypeSHA256    = "sha256"
	KeyTypeRipemd160 = "ripemd160"
)

// ValidKeyType reports whether k may be sent as key_type. Empty means default.
func ValidKeyType(k string) bool {
	switch k {
	case "", KeyTypeI64, KeyTypeI128, KeyTypeI256, KeyTypeFloat64, KeyTypeFloat128,
		KeyTypeName, KeyTypeSHA256, KeyTypeRipemd160:
		return true
	}
	return false
}

// TableRowsRequest is the wire shape of get_table_rows.
type TableRowsRequest struct {
	JSON          bool   `json:"json"`
	Code          string `json:"code"`
	Table         string `json:"table"`
	Scope         string `json:"scope"`
	LowerBound    string `json:"lower_bound,omitempty"`
	UpperBound    string `json:"upper_bound,omitempty"`
	IndexPosition int    `json:"index_position"`
	Limit         int    `json:"limit"`
	Reverse       bool   `json:"reverse"`
	ShowPayer     bool   `json:"show_payer"`
	KeyType       string `json:"key_type,omitempty"`
}

// TableRowsResponse is the reply of get_table_rows. Rows are left undecoded.
type TableRowsResponse struct {
	Rows    []json.RawMessage `json:"rows"`
	More    bool              `json:"more"`
	NextKey string            `json:"next_key"`
}

// Transaction is the JSON form of a transaction the chain API accepts, with
// action data as hex.
type Transaction struct {
	Expiration         string   `json:"expiration"`
	RefBlockNum        uint16   `json:"ref_block_num"`
	RefBlockPrefix     uint32   `json:"ref_block_prefix"`
	MaxNetUsageWords   uint32   `json:"max_net_usage_words"`
	MaxCPUUsageMS      uint8    `json:"max_cpu_usage_ms"`
	DelaySec           uint32   `json:"delay_sec"`
	ContextFreeActions []Action `json:"context_free_actions"`
	Actions            []Action `json:"actions"`
	Extensions         []any    `json:"transaction_extensions"`
}

type Action struct {
	Account       string                `json:"account"`
	Name          string                `json:"name"`
	Authorization []eos.PermissionLevel `json:"authorization"`
	Data          string                `json:"data"`
}

// NewTransaction converts tx to its JSON form.
func NewTransaction(tx *eos.Transaction) *Transaction {
	out := &Transaction{
		Expiration:         tx.Expiration.Time.UTC().Format(timePointSecLayout),
		RefBlockNum:        tx.RefBlockNum,
		RefBlockPrefix:     tx.RefBlockPrefix,
		MaxNetUsageWords:   uint32(tx.MaxNetUsageWords),
		MaxCPUUsageMS:      tx.MaxCPUUsageMS,
		DelaySec:           uint32(tx.DelaySec),
		ContextFreeActions: convertActions(tx.ContextFreeActions),
		Actions:            convertActions(tx.Actions),
		Extensions:         []any{},
	}
	return out
}

func convertActions(in []*eos.Action) []Action {
	out := make([]Action, 0, len(in))
	for _, a := range in {
		auth := a.Authorization
		if auth == nil {
			auth = []eos.PermissionLevel{}
		}
		out = append(out, Action{
			Account:       string(a.Account),
			Name:          string(a.Name),
			Authorization: auth,
			Data:          hex.EncodeToString(abi.ActionBytes(a)),
		})
	}
	return out
}

// Authorizations lists every permission level the actions declare, in order.
func (t *Transaction) Authorizations() []eos.PermissionLevel {
	var out []eos.PermissionLevel
	for _, a := range t.Actions {
		out = append(out, a.Authorization...)
	}
	return out
}

// RequiredKeysRequest asks which of AvailableKeys must sign Transaction.
type RequiredKeysRequest struct {
	Transaction   *Transaction `json:"transaction"`
	AvailableKeys []string     `json:"available_keys"`
}

// RequiredKeysResponse is the reply of get_required_keys.
type RequiredKeysResponse struct {
	RequiredKeys []string `json:"required_keys"`
}

// PushTransactionRequest is the body of push_transaction.
type PushTransactionRequest struct {
	Signatures            []string `json:"signatures"`
	Compression           int      `json:"compression"`
	PackedContextFreeData string   `json:"packed_context_free_data"`
	PackedTrx             string   `json:"packed_trx"`
}

// PushTransactionResponse is the reply of push_transaction. Processed is the
// remote execution trace, passed through untouched.
type PushTransactionResponse struct {
	TransactionID string          `json:"transaction_id"`
	Processed     json.RawMessage `json:"processed"`
}

// errorResponse is the body the chain API returns on failure.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		What    string `json:"what"`
		Details []struct {
			Message    string `json:"message"`
			File       string `json:"file"`
			LineNumber int    `json:"line_number"`
			Method     string `json:"method"`
		} `json:"details"`
	} `json:"error"`
	Processed *processedTrace `json:"processed"`
}

type processedTrace struct {
	Except *struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"except"`
}

// reason picks the most specific message the chain gave.
func (e *errorResponse) reason() string {
	for _, d := range e.Error.Details {
		if d.Message != "" {
			return d.Message
		}
	}
	if e.Processed != nil && e.Processed.Except != nil && e.Processed.Except.Message != "" {
		return e.Processed.Except.Message
	}
	if e.Error.What != "" {
		return e.Error.What
	}
	return e.Message
}
