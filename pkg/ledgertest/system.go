package ledgertest

import (
	"bytes"
	"encoding/json"
	"fmt"

	eos "github.com/eoscanada/eos-go"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/constants"
	"github.com/DeBrosOfficial/ledgerharness/pkg/keys"
	"github.com/DeBrosOfficial/ledgerharness/pkg/rpc"
)

// maxAccountNameLen is the longest name newaccount accepts. The thirteenth
// character the name codec allows is reserved.
const maxAccountNameLen = 12

// SystemABI returns the ABI of the system account: newaccount, setcode and
// setabi with the authority structs they reference.
func SystemABI() *eos.ABI {
	return abi.WithDefaults(&eos.ABI{
		Version: abi.DefaultVersion,
		Structs: []eos.StructDef{
			{Name: "permission_level", Fields: []eos.FieldDef{
				{Name: "actor", Type: "name"},
				{Name: "permission", Type: "name"},
			}},
			{Name: "key_weight", Fields: []eos.FieldDef{
				{Name: "key", Type: "public_key"},
				{Name: "weight", Type: "uint16"},
			}},
			{Name: "permission_level_weight", Fields: []eos.FieldDef{
				{Name: "permission", Type: "permission_level"},
				{Name: "weight", Type: "uint16"},
			}},
			{Name: "wait_weight", Fields: []eos.FieldDef{
				{Name: "wait_sec", Type: "uint32"},
				{Name: "weight", Type: "uint16"},
			}},
			{Name: "authority", Fields: []eos.FieldDef{
				{Name: "threshold", Type: "uint32"},
				{Name: "keys", Type: "key_weight[]"},
				{Name: "accounts", Type: "permission_level_weight[]"},
				{Name: "waits", Type: "wait_weight[]"},
			}},
			{Name: "newaccount", Fields: []eos.FieldDef{
				{Name: "creator", Type: "name"},
				{Name: "name", Type: "name"},
				{Name: "owner", Type: "authority"},
				{Name: "active", Type: "authority"},
			}},
			{Name: "setcode", Fields: []eos.FieldDef{
				{Name: "account", Type: "name"},
				{Name: "vmtype", Type: "uint8"},
				{Name: "vmversion", Type: "uint8"},
				{Name: "code", Type: "bytes"},
			}},
			{Name: "setabi", Fields: []eos.FieldDef{
				{Name: "account", Type: "name"},
				{Name: "abi", Type: "bytes"},
			}},
		},
		Actions: []eos.ActionDef{
			{Name: "newaccount", Type: "newaccount"},
			{Name: "setcode", Type: "setcode"},
			{Name: "setabi", Type: "setabi"},
		},
	})
}

type newAccountData struct {
	Creator string        `json:"creator"`
	Name    string        `json:"name"`
	Owner   rpc.Authority `json:"owner"`
	Active  rpc.Authority `json:"active"`
}

// setCodeData and setABIData are unpacked from the binary payload; field
// order follows the system ABI.
type setCodeData struct {
	Account   eos.AccountName
	VMType    uint8
	VMVersion uint8
	Code      eos.HexBytes
}

type setABIData struct {
	Account eos.AccountName
	ABI     eos.HexBytes
}

func systemHandler(action string) (ActionHandler, bool) {
	switch action {
	case "newaccount":
		return applyNewAccount, true
	case "setcode":
		return applySetCode, true
	case "setabi":
		return applySetABI, true
	}
	return nil, false
}

func applyNewAccount(c *ActionContext) error {
	var d newAccountData
	if err := c.Decode(&d); err != nil {
		return err
	}
	if err := c.RequireAuth(d.Creator); err != nil {
		return err
	}
	n := c.node
	if _, ok := n.accounts[d.Creator]; !ok {
		return &Failure{Code: 3050001, Name: "account_name_exists_exception", What: "Account name already exists",
			Message: fmt.Sprintf("creator account %s does not exist", d.Creator)}
	}
	if len(d.Name) > maxAccountNameLen {
		return &Failure{Code: 3010001, Name: "name_type_exception", What: "Invalid name",
			Message: "account names can only be 12 chars long"}
	}
	if _, ok := n.accounts[d.Name]; ok {
		return &Failure{Code: 3050001, Name: "account_name_exists_exception", What: "Account name already exists",
			Message: fmt.Sprintf("Cannot create account named %s, as that name is already taken", d.Name)}
	}
	owner, err := normalizeAuthority(d.Owner)
	if err != nil {
		return err
	}
	active, err := normalizeAuthority(d.Active)
	if err != nil {
		return err
	}
	n.accounts[d.Name] = &accountState{
		name:    d.Name,
		created: n.headTime(),
		owner:   owner,
		active:  active,
	}
	return nil
}

// normalizeAuthority validates a and rewrites its keys in legacy form.
func normalizeAuthority(a rpc.Authority) (rpc.Authority, error) {
	if err := validateAuthority(a); err != nil {
		return rpc.Authority{}, err
	}
	out := rpc.Authority{
		Threshold: a.Threshold,
		Keys:      make([]rpc.KeyWeight, 0, len(a.Keys)),
		Accounts:  append([]rpc.PermissionLevelWeight{}, a.Accounts...),
		Waits:     append([]rpc.WaitWeight{}, a.Waits...),
	}
	for _, kw := range a.Keys {
		pub, err := keys.ParsePublicKey(kw.Key)
		if err != nil {
			return rpc.Authority{}, &Failure{Code: 3050002, Name: "action_validate_exception", What: "Invalid Action Arguments",
				Message: fmt.Sprintf("invalid public key %s", kw.Key)}
		}
		out.Keys = append(out.Keys, rpc.KeyWeight{Key: pub.String(), Weight: kw.Weight})
	}
	return out, nil
}

func validateAuthority(a rpc.Authority) error {
	var total uint32
	for _, k := range a.Keys {
		total += uint32(k.Weight)
	}
	for _, p := range a.Accounts {
		total += uint32(p.Weight)
	}
	if a.Threshold == 0 || total < a.Threshold {
		return &Failure{Code: 3050002, Name: "action_validate_exception", What: "Invalid Action Arguments",
			Message: "Invalid owner authority"}
	}
	return nil
}

func applySetCode(c *ActionContext) error {
	var d setCodeData
	if err := c.Unpack(&d); err != nil {
		return err
	}
	account := string(d.Account)
	if err := c.RequireAuth(account); err != nil {
		return err
	}
	if d.VMType != 0 || d.VMVersion != 0 {
		return Assert("code should be 0")
	}
	acct, ok := c.node.accounts[account]
	if !ok {
		return unknownAccount(account)
	}
	if len(acct.code) > 0 && bytes.Equal(acct.code, d.Code) {
		return &Failure{Code: 3160008, Name: "set_exact_code", What: "Contract is already running this version of code",
			Message: "contract is already running this version of code"}
	}
	next := *acct
	next.code = append([]byte(nil), d.Code...)
	c.node.accounts[account] = &next
	return nil
}

func applySetABI(c *ActionContext) error {
	var d setABIData
	if err := c.Unpack(&d); err != nil {
		return err
	}
	account := string(d.Account)
	if err := c.RequireAuth(account); err != nil {
		return err
	}
	acct, ok := c.node.accounts[account]
	if !ok {
		return unknownAccount(account)
	}
	parsed, err := abi.DecodeABI(d.ABI)
	if err != nil {
		return &Failure{Code: 3015014, Name: "unpack_exception", What: "Unpack data exception",
			Message: fmt.Sprintf("abi is not valid: %v", err)}
	}
	next := *acct
	next.abi = parsed
	c.node.accounts[account] = &next
	return nil
}

func unknownAccount(name string) *Failure {
	return &Failure{Code: 0, Name: "exception", What: "unspecified",
		Message: fmt.Sprintf("unknown key (boost::tuples::tuple<bool, eosio::chain::name, boost::tuples::null_type, boost::tuples::null_type, boost::tuples::null_type, boost::tuples::null_type, boost::tuples::null_type, boost::tuples::null_type, boost::tuples::null_type, boost::tuples::null_type>): (0 %s)", name)}
}

func isSystemAccount(name string) bool {
	return name == constants.SystemAccount
}

func decodeInto(v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
