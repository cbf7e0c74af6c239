package ledgertest

import (
	"encoding/json"
	"fmt"

	eos "github.com/eoscanada/eos-go"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
)

// Failure is an exception as the ledger reports it. Handlers return one to
// control the error body; any other error is reported with its text as the
// detail message.
type Failure struct {
	Code    int
	Name    string
	What    string
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

// Assert returns the failure a contract's check(false, msg) produces.
func Assert(msg string) *Failure {
	return &Failure{
		Code:    3050003,
		Name:    "eosio_assert_message_exception",
		What:    "eosio_assert_message assertion failure",
		Message: "assertion failure with message: " + msg,
	}
}

// ActionHandler executes one contract action. It runs with the node locked
// and must only touch state through its ActionContext.
type ActionHandler func(c *ActionContext) error

// ActionContext is what a handler sees of the transaction and the ledger.
type ActionContext struct {
	Receiver      string
	Action        string
	Authorization []eos.PermissionLevel
	// Data is the action payload decoded with the receiver's ABI.
	Data map[string]any

	raw  []byte
	node *Node
}

// Decode copies Data into out through JSON.
func (c *ActionContext) Decode(out any) error {
	if err := decodeInto(c.Data, out); err != nil {
		return &Failure{Code: 3015014, Name: "unpack_exception", What: "Unpack data exception",
			Message: fmt.Sprintf("cannot decode %s::%s data: %v", c.Receiver, c.Action, err)}
	}
	return nil
}

// Unpack decodes the binary payload into out with eos-go's decoder.
func (c *ActionContext) Unpack(out any) error {
	if err := eos.UnmarshalBinary(c.raw, out); err != nil {
		return &Failure{Code: 3015014, Name: "unpack_exception", What: "Unpack data exception",
			Message: fmt.Sprintf("cannot unpack %s::%s data: %v", c.Receiver, c.Action, err)}
	}
	return nil
}

// RequireAuth fails unless actor is one of the declared authorizers.
func (c *ActionContext) RequireAuth(actor string) error {
	for _, p := range c.Authorization {
		if string(p.Actor) == actor {
			return nil
		}
	}
	return &Failure{Code: 3090004, Name: "missing_auth_exception", What: "Missing required authority",
		Message: "missing authority of " + actor}
}

// HasAccount reports whether name exists.
func (c *ActionContext) HasAccount(name string) bool {
	_, ok := c.node.accounts[name]
	return ok
}

// Rows returns the rows of the receiver's table under scope.
func (c *ActionContext) Rows(scope, table string) []json.RawMessage {
	return c.node.rows(tableKey{c.Receiver, scope, table})
}

// SetRows replaces the rows of the receiver's table under scope.
func (c *ActionContext) SetRows(scope, table string, rows ...any) error {
	if err := c.checkTable(table); err != nil {
		return err
	}
	return c.node.setRows(tableKey{c.Receiver, scope, table}, c.Receiver, rows)
}

// Emplace appends a row to the receiver's table under scope.
func (c *ActionContext) Emplace(scope, table string, v any, payer string) error {
	if err := c.checkTable(table); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	key := tableKey{c.Receiver, scope, table}
	c.node.tables[key] = append(c.node.tables[key], row{data: data, payer: payer})
	return nil
}

func (c *ActionContext) checkTable(table string) error {
	acct := c.node.accounts[c.Receiver]
	if acct == nil || acct.abi == nil {
		return fmt.Errorf("%s has no ABI", c.Receiver)
	}
	if _, ok := abi.TableType(acct.abi, table); !ok {
		return fmt.Errorf("table %s is not declared by %s", table, c.Receiver)
	}
	return nil
}
