package harness

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	eos "github.com/eoscanada/eos-go"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
	"github.com/DeBrosOfficial/ledgerharness/pkg/rpc"
)

// Table query defaults.
const (
	DefaultIndexPosition = 1
	DefaultLimit         = 10
)

// ActionFunc submits one action of an account as its own transaction.
type ActionFunc func(ctx context.Context, data any, auths ...eos.PermissionLevel) (*rpc.PushTransactionResponse, error)

// TableFunc reads rows of one table of an account.
type TableFunc func(ctx context.Context, params *TableParams) ([]json.RawMessage, error)

// TableParams overrides the defaults of a table query. Zero values keep the
// default: code and scope are the account, no bounds, index 1, limit 10,
// ascending, no payer, default key type.
type TableParams struct {
	Code          string
	Scope         string
	LowerBound    string
	UpperBound    string
	IndexPosition int
	Limit         int
	Reverse       bool
	ShowPayer     bool
	KeyType       string
}

// Account is the binding of one ledger account: a function per action and
// per table of its current ABI.
type Account struct {
	name  string
	chain *Blockchain

	mu      sync.RWMutex
	schema  *eos.ABI
	actions map[string]ActionFunc
	tables  map[string]TableFunc
}

func newAccount(chain *Blockchain, name string, schema *eos.ABI) *Account {
	a := &Account{name: name, chain: chain}
	a.UpdateSchema(schema)
	return a
}

// Name returns the account name.
func (a *Account) Name() string {
	return a.name
}

// Schema returns the ABI the bindings were built from. It is nil when the
// account has no contract.
func (a *Account) Schema() *eos.ABI {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.schema
}

// UpdateSchema rebuilds both function maps from schema and replaces the old
// ones in a single step. A nil schema leaves the account with none.
func (a *Account) UpdateSchema(schema *eos.ABI) {
	actions := make(map[string]ActionFunc)
	tables := make(map[string]TableFunc)
	for _, name := range abi.ActionNames(schema) {
		actions[name] = a.actionFunc(name)
	}
	for _, name := range abi.TableNames(schema) {
		tables[name] = a.tableFunc(name)
	}

	a.mu.Lock()
	a.schema = schema
	a.actions = actions
	a.tables = tables
	a.mu.Unlock()

	a.chain.rememberSchema(a.name, schema)
}

func (a *Account) actionFunc(op string) ActionFunc {
	return func(ctx context.Context, data any, auths ...eos.PermissionLevel) (*rpc.PushTransactionResponse, error) {
		if data == nil {
			data = map[string]any{}
		}
		if auths == nil {
			auths = []eos.PermissionLevel{}
		}
		return a.chain.Submit(ctx, []Action{{
			Account:       a.name,
			Name:          op,
			Authorization: auths,
			Data:          data,
		}})
	}
}

func (a *Account) tableFunc(table string) TableFunc {
	return func(ctx context.Context, params *TableParams) ([]json.RawMessage, error) {
		return a.chain.Query(ctx, a.tableRequest(table, params))
	}
}

// tableRequest merges params onto the defaults. The table is always the
// bound one and JSON rows are always requested.
func (a *Account) tableRequest(table string, params *TableParams) rpc.TableRowsRequest {
	req := rpc.TableRowsRequest{
		JSON:          true,
		Code:          a.name,
		Table:         table,
		Scope:         a.name,
		IndexPosition: DefaultIndexPosition,
		Limit:         DefaultLimit,
	}
	if params == nil {
		return req
	}
	if params.Code != "" {
		req.Code = params.Code
	}
	if params.Scope != "" {
		req.Scope = params.Scope
	}
	if params.IndexPosition > 0 {
		req.IndexPosition = params.IndexPosition
	}
	if params.Limit > 0 {
		req.Limit = params.Limit
	}
	req.LowerBound = params.LowerBound
	req.UpperBound = params.UpperBound
	req.Reverse = params.Reverse
	req.ShowPayer = params.ShowPayer
	req.KeyType = params.KeyType
	return req
}

// Action returns the function for op.
func (a *Account) Action(op string) (ActionFunc, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn, ok := a.actions[op]
	return fn, ok
}

// Table returns the function for table.
func (a *Account) Table(table string) (TableFunc, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn, ok := a.tables[table]
	return fn, ok
}

// Invoke submits op with data. An op the schema does not declare returns an
// UnknownCapabilityError and nothing is sent.
func (a *Account) Invoke(ctx context.Context, op string, data any, auths ...eos.PermissionLevel) (*rpc.PushTransactionResponse, error) {
	fn, ok := a.Action(op)
	if !ok {
		return nil, errors.NewUnknownCapabilityError(a.name, errors.CapabilityAction, op)
	}
	return fn(ctx, data, auths...)
}

// Query reads table. A table the schema does not declare returns an
// UnknownCapabilityError and nothing is sent.
func (a *Account) Query(ctx context.Context, table string, params *TableParams) ([]json.RawMessage, error) {
	fn, ok := a.Table(table)
	if !ok {
		return nil, errors.NewUnknownCapabilityError(a.name, errors.CapabilityTable, table)
	}
	return fn(ctx, params)
}

// Actions returns the declared action names, sorted.
func (a *Account) Actions() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedKeys(a.actions)
}

// Tables returns the declared table names, sorted.
func (a *Account) Tables() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sortedKeys(a.tables)
}

// HasAction reports whether op is declared.
func (a *Account) HasAction(op string) bool {
	_, ok := a.Action(op)
	return ok
}

// HasTable reports whether table is declared.
func (a *Account) HasTable(table string) bool {
	_, ok := a.Table(table)
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
