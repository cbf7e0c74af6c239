package ledgertest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"

	eos "github.com/eoscanada/eos-go"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/keys"
	"github.com/DeBrosOfficial/ledgerharness/pkg/logging"
	"github.com/DeBrosOfficial/ledgerharness/pkg/rpc"
)

type processedTrace struct {
	ID           string          `json:"id"`
	BlockNum     uint32          `json:"block_num"`
	BlockTime    string          `json:"block_time"`
	Receipt      traceReceipt    `json:"receipt"`
	Elapsed      int             `json:"elapsed"`
	NetUsage     int             `json:"net_usage"`
	Scheduled    bool            `json:"scheduled"`
	ActionTraces []actionTrace   `json:"action_traces"`
	Except       json.RawMessage `json:"except"`
}

type traceReceipt struct {
	Status        string `json:"status"`
	CPUUsageUS    int    `json:"cpu_usage_us"`
	NetUsageWords int    `json:"net_usage_words"`
}

func invalidPacked(err error) *Failure {
	return &Failure{Code: 3010010, Name: "packed_transaction_type_exception", What: "Invalid packed transaction",
		Message: fmt.Sprintf("Invalid packed transaction: %v", err)}
}

// push verifies and applies a transaction. The caller holds n.mu.
func (n *Node) push(req rpc.PushTransactionRequest) (*processedTrace, error) {
	if req.Compression != 0 {
		return nil, invalidPacked(fmt.Errorf("compression %d is not supported", req.Compression))
	}
	packed, err := hex.DecodeString(req.PackedTrx)
	if err != nil {
		return nil, invalidPacked(err)
	}
	tx, err := abi.UnpackTransaction(packed)
	if err != nil {
		return nil, invalidPacked(err)
	}
	id := abi.TransactionID(packed)

	if len(tx.Actions) == 0 {
		return nil, &Failure{Code: 3040004, Name: "tx_no_action", What: "transaction should have at least one normal action",
			Message: "transaction must have at least one action"}
	}
	if err := n.checkWindow(id, tx); err != nil {
		return nil, err
	}
	if _, dup := n.seen[id]; dup {
		return nil, &Failure{Code: 3040008, Name: "tx_duplicate", What: "Duplicate transaction",
			Message: "duplicate transaction " + id}
	}

	cfd, err := hex.DecodeString(req.PackedContextFreeData)
	if err != nil {
		return nil, invalidPacked(err)
	}
	signers, err := n.recoverSigners(req.Signatures, packed, cfd)
	if err != nil {
		return nil, err
	}
	used, err := n.requiredKeys(authorizations(tx), signers)
	if err != nil {
		return nil, err
	}
	var irrelevant []string
	for k := range signers {
		if _, ok := used[k]; !ok {
			irrelevant = append(irrelevant, k)
		}
	}
	if len(irrelevant) > 0 {
		sort.Strings(irrelevant)
		list, _ := json.Marshal(irrelevant)
		return nil, &Failure{Code: 3090005, Name: "irrelevant_sig_exception", What: "Irrelevant signature included",
			Message: fmt.Sprintf("transaction bears irrelevant signatures from these keys: %s", list)}
	}

	saved := n.snapshot()
	traces, err := n.apply(tx)
	if err != nil {
		n.restore(saved)
		return nil, err
	}

	blockNum := n.head + 1
	n.head = blockNum
	n.seen[id] = struct{}{}

	signerList := make([]string, 0, len(signers))
	for k := range signers {
		signerList = append(signerList, k)
	}
	sort.Strings(signerList)
	n.receipts = append(n.receipts, Receipt{
		ID:       id,
		BlockNum: blockNum,
		Signers:  signerList,
		Actions:  tx.Actions,
	})
	n.logger.ComponentDebug(logging.ComponentLedger, "Transaction applied",
		zap.String("id", id),
		zap.Uint32("block", blockNum),
		zap.Int("actions", len(tx.Actions)),
	)

	return &processedTrace{
		ID:        id,
		BlockNum:  blockNum,
		BlockTime: formatBlockTime(n.blockTime(blockNum)),
		Receipt: traceReceipt{
			Status:        "executed",
			CPUUsageUS:    100 * len(tx.Actions),
			NetUsageWords: (len(packed) + 7) / 8,
		},
		NetUsage:     len(packed),
		ActionTraces: traces,
	}, nil
}

// checkWindow enforces TaPoS: the reference block must be one of ours and
// the expiration must lie within the window after head.
func (n *Node) checkWindow(id string, tx *eos.Transaction) error {
	now := n.headTime()
	exp := tx.Expiration.Time
	if !exp.After(now) {
		return &Failure{Code: 3040005, Name: "expired_tx_exception", What: "Expired Transaction",
			Message: fmt.Sprintf("expired transaction %s, expiration %s, block time %s",
				id, exp.UTC().Format("2006-01-02T15:04:05"), formatBlockTime(now))}
	}
	if exp.Sub(now) > maxExpirationWindow {
		return &Failure{Code: 3040006, Name: "tx_exp_too_far_exception", What: "Transaction Expiration Too Far",
			Message: fmt.Sprintf("Transaction expiration is too far in the future relative to the reference time of %s, expiration %s",
				formatBlockTime(now), exp.UTC().Format("2006-01-02T15:04:05"))}
	}

	behind := uint16(n.head) - tx.RefBlockNum
	refNum := n.head - uint32(behind)
	if refNum == 0 || refNum > n.head || refBlockPrefix(n.blockID(refNum)) != tx.RefBlockPrefix {
		return &Failure{Code: 3040007, Name: "invalid_ref_block_exception", What: "Invalid Reference Block",
			Message: "Transaction's reference block did not match. Is this transaction from a different fork?"}
	}
	return nil
}

// recoverSigners returns the public keys, in legacy form, that signed
// sha256(chain_id || packed || sha256(cfd) or 32 zero bytes).
func (n *Node) recoverSigners(signatures []string, packed, cfd []byte) (map[string]struct{}, error) {
	h := sha256.New()
	h.Write(n.chainID)
	h.Write(packed)
	if len(cfd) > 0 {
		sum := sha256.Sum256(cfd)
		h.Write(sum[:])
	} else {
		h.Write(make([]byte, sha256.Size))
	}
	digest := h.Sum(nil)

	signers := make(map[string]struct{}, len(signatures))
	for _, s := range signatures {
		sig, err := keys.ParseSignature(s)
		if err != nil {
			return nil, &Failure{Code: 10, Name: "assert_exception", What: "Assert Exception", Message: err.Error()}
		}
		if !sig.IsCanonical() {
			return nil, &Failure{Code: 10, Name: "assert_exception", What: "Assert Exception",
				Message: "signature is not canonical"}
		}
		pub, err := keys.RecoverPublicKey(sig, digest)
		if err != nil {
			return nil, &Failure{Code: 10, Name: "assert_exception", What: "Assert Exception", Message: err.Error()}
		}
		signers[pub.String()] = struct{}{}
	}
	return signers, nil
}

func authorizations(tx *eos.Transaction) []eos.PermissionLevel {
	var out []eos.PermissionLevel
	for _, act := range tx.Actions {
		out = append(out, act.Authorization...)
	}
	return out
}

// requiredKeys returns the keys from available that satisfy every level in
// auths.
func (n *Node) requiredKeys(auths []eos.PermissionLevel, available map[string]struct{}) (map[string]struct{}, error) {
	used := make(map[string]struct{})
	for _, level := range auths {
		found, err := n.authorize(level, available)
		if err != nil {
			return nil, err
		}
		for _, k := range found {
			used[k] = struct{}{}
		}
	}
	return used, nil
}

// authorize returns the keys of level's authority found in available when
// their weight reaches the threshold. The owner authority also satisfies
// active.
func (n *Node) authorize(level eos.PermissionLevel, available map[string]struct{}) ([]string, error) {
	acct, ok := n.accounts[string(level.Actor)]
	if !ok {
		return nil, &Failure{Code: 3090003, Name: "unsatisfied_authorization", What: "Provided keys, permissions, and delays do not satisfy declared authorizations",
			Message: fmt.Sprintf("authorization actor '%s' does not exist", level.Actor)}
	}

	var candidates []rpc.Authority
	switch string(level.Permission) {
	case "active":
		candidates = []rpc.Authority{acct.active, acct.owner}
	case "owner":
		candidates = []rpc.Authority{acct.owner}
	default:
		return nil, &Failure{Code: 3090003, Name: "unsatisfied_authorization", What: "Provided keys, permissions, and delays do not satisfy declared authorizations",
			Message: fmt.Sprintf("permission '%s' of '%s' does not exist", level.Permission, level.Actor)}
	}
	for _, auth := range candidates {
		if found, ok := satisfy(auth, available); ok {
			return found, nil
		}
	}

	declared, _ := json.Marshal(level)
	return nil, &Failure{Code: 3090003, Name: "unsatisfied_authorization", What: "Provided keys, permissions, and delays do not satisfy declared authorizations",
		Message: fmt.Sprintf("transaction declares authority '%s', but does not have signatures for it.", declared)}
}

func satisfy(auth rpc.Authority, available map[string]struct{}) ([]string, bool) {
	var weight uint32
	var found []string
	for _, kw := range auth.Keys {
		pub, err := keys.ParsePublicKey(kw.Key)
		if err != nil {
			continue
		}
		if _, ok := available[pub.String()]; ok {
			weight += uint32(kw.Weight)
			found = append(found, pub.String())
		}
	}
	return found, auth.Threshold > 0 && weight >= auth.Threshold
}

func (n *Node) apply(tx *eos.Transaction) ([]actionTrace, error) {
	traces := make([]actionTrace, 0, len(tx.Actions))
	for _, act := range tx.Actions {
		account, name := string(act.Account), string(act.Name)
		raw := abi.ActionBytes(act)
		acct, ok := n.accounts[account]
		if !ok {
			return nil, &Failure{Code: 3040000, Name: "transaction_exception", What: "Transaction exception",
				Message: fmt.Sprintf("action's receiving contract account '%s' does not exist", account)}
		}

		trace := actionTrace{
			Receiver: account,
			Act: tracedAction{
				Account:       account,
				Name:          name,
				Authorization: act.Authorization,
				Data:          hex.EncodeToString(raw),
				HexData:       hex.EncodeToString(raw),
			},
		}
		if acct.abi == nil {
			// No contract: the action is accepted and does nothing.
			traces = append(traces, trace)
			continue
		}
		if _, ok := abi.ActionType(acct.abi, name); !ok {
			return nil, Assert(fmt.Sprintf("unknown action %s", name))
		}
		data, err := abi.DecodeActionData(acct.abi, name, raw)
		if err != nil {
			return nil, &Failure{Code: 3015014, Name: "unpack_exception", What: "Unpack data exception",
				Message: fmt.Sprintf("Unable to unpack %s::%s data: %v", account, name, err)}
		}
		trace.Act.Data = data

		handler, ok := n.handlers[actionKey{account, name}]
		if !ok && isSystemAccount(account) {
			handler, ok = systemHandler(name)
		}
		if ok {
			c := &ActionContext{
				Receiver:      account,
				Action:        name,
				Authorization: act.Authorization,
				Data:          data,
				raw:           raw,
				node:          n,
			}
			if err := handler(c); err != nil {
				return nil, err
			}
		}
		traces = append(traces, trace)
	}
	return traces, nil
}

type snapshot struct {
	accounts map[string]*accountState
	tables   map[tableKey][]row
}

// snapshot copies the mutable state. Account states are replaced rather
// than modified, so copying the map suffices for them.
func (n *Node) snapshot() snapshot {
	tables := make(map[tableKey][]row, len(n.tables))
	for k, v := range n.tables {
		tables[k] = slices.Clone(v)
	}
	return snapshot{accounts: maps.Clone(n.accounts), tables: tables}
}

func (n *Node) restore(s snapshot) {
	n.accounts = s.accounts
	n.tables = s.tables
}
