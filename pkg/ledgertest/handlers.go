package ledgertest

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	eos "github.com/eoscanada/eos-go"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/constants"
	"github.com/DeBrosOfficial/ledgerharness/pkg/httputil"
	"github.com/DeBrosOfficial/ledgerharness/pkg/keys"
	"github.com/DeBrosOfficial/ledgerharness/pkg/logging"
	"github.com/DeBrosOfficial/ledgerharness/pkg/rpc"
)

const defaultTableLimit = 10

func writeFailure(w http.ResponseWriter, status int, f *Failure) {
	httputil.WriteChainError(w, status, httputil.ChainException{
		Code:    f.Code,
		Name:    f.Name,
		What:    f.What,
		Message: f.Message,
	})
}

func badRequest(w http.ResponseWriter, err error) {
	httputil.WriteError(w, http.StatusBadRequest, err.Error())
}

func (n *Node) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	lib := n.head - 1
	httputil.WriteJSON(w, http.StatusOK, rpc.InfoResponse{
		ServerVersion:            "ledgertest",
		ChainID:                  hex.EncodeToString(n.chainID),
		HeadBlockNum:             n.head,
		LastIrreversibleBlockNum: lib,
		LastIrreversibleBlockID:  hex.EncodeToString(n.blockID(lib)),
		HeadBlockID:              hex.EncodeToString(n.blockID(n.head)),
		HeadBlockTime:            formatBlockTime(n.headTime()),
		HeadBlockProducer:        constants.SystemAccount,
	})
}

type accountRequest struct {
	AccountName string `json:"account_name"`
}

func (n *Node) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.accounts[req.AccountName]
	if !ok {
		writeFailure(w, http.StatusInternalServerError, unknownAccount(req.AccountName))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rpc.AccountResponse{
		AccountName: acct.name,
		Privileged:  isSystemAccount(acct.name),
		Created:     formatBlockTime(acct.created),
		Permissions: []rpc.Permission{
			{PermName: "active", Parent: "owner", RequiredAuth: acct.active},
			{PermName: "owner", Parent: "", RequiredAuth: acct.owner},
		},
	})
}

func (n *Node) handleGetABI(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.accounts[req.AccountName]
	if !ok {
		writeFailure(w, http.StatusInternalServerError, unknownAccount(req.AccountName))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rpc.ABIResponse{AccountName: acct.name, ABI: acct.abi})
}

type blockRequest struct {
	BlockNumOrID json.RawMessage `json:"block_num_or_id"`
}

type blockResponse struct {
	rpc.BlockResponse
	Transactions []any `json:"transactions"`
}

func (n *Node) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	num, ok := n.parseBlockRef(req.BlockNumOrID)
	if !ok || num == 0 || num > n.head {
		writeFailure(w, http.StatusBadRequest, &Failure{Code: 3100002, Name: "unknown_block_exception", What: "Unknown block",
			Message: "Could not find block: " + strings.Trim(string(req.BlockNumOrID), `"`)})
		return
	}
	id := n.blockID(num)
	httputil.WriteJSON(w, http.StatusOK, blockResponse{
		BlockResponse: rpc.BlockResponse{
			ID:             hex.EncodeToString(id),
			BlockNum:       num,
			Timestamp:      formatBlockTime(n.blockTime(num)),
			Producer:       constants.SystemAccount,
			Previous:       hex.EncodeToString(n.blockID(num - 1)),
			RefBlockPrefix: refBlockPrefix(id),
		},
		Transactions: []any{},
	})
}

// parseBlockRef accepts a number, a decimal string or a 64 character id.
func (n *Node) parseBlockRef(raw json.RawMessage) (uint32, bool) {
	var num uint32
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	if len(s) == 64 {
		id, err := hex.DecodeString(s)
		if err != nil {
			return 0, false
		}
		num := uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
		if num > n.head || hex.EncodeToString(n.blockID(num)) != strings.ToLower(s) {
			return 0, false
		}
		return num, true
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

type payerRow struct {
	Data  json.RawMessage `json:"data"`
	Payer string          `json:"payer"`
}

// handleGetTableRows serves rows in insertion order. Bounds and secondary
// indexes are accepted but not applied.
func (n *Node) handleGetTableRows(w http.ResponseWriter, r *http.Request) {
	var req rpc.TableRowsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	acct, ok := n.accounts[req.Code]
	if !ok {
		writeFailure(w, http.StatusInternalServerError, unknownAccount(req.Code))
		return
	}
	if acct.abi == nil {
		writeFailure(w, http.StatusInternalServerError, &Failure{Code: 3060002, Name: "account_query_exception",
			What: "Account Query Exception", Message: fmt.Sprintf("No ABI found for %s", req.Code)})
		return
	}
	if _, ok := abi.TableType(acct.abi, req.Table); !ok {
		writeFailure(w, http.StatusInternalServerError, &Failure{Code: 3060003, Name: "contract_table_query_exception",
			What: "Contract Table Query Exception", Message: fmt.Sprintf("Table %s is not specified in the ABI", req.Table)})
		return
	}

	stored := n.tables[tableKey{req.Code, req.Scope, req.Table}]
	ordered := make([]row, len(stored))
	copy(ordered, stored)
	if req.Reverse {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTableLimit
	}
	more := len(ordered) > limit
	if more {
		ordered = ordered[:limit]
	}

	rows := make([]any, 0, len(ordered))
	for _, rw := range ordered {
		if req.ShowPayer {
			rows = append(rows, payerRow{Data: rw.data, Payer: rw.payer})
		} else {
			rows = append(rows, rw.data)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"rows":     rows,
		"more":     more,
		"next_key": "",
	})
}

func (n *Node) handleGetRequiredKeys(w http.ResponseWriter, r *http.Request) {
	var req rpc.RequiredKeysRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if req.Transaction == nil {
		badRequest(w, errors.New("transaction is required"))
		return
	}

	available := make(map[string]struct{}, len(req.AvailableKeys))
	for _, k := range req.AvailableKeys {
		pub, err := keys.ParsePublicKey(k)
		if err != nil {
			badRequest(w, err)
			return
		}
		available[pub.String()] = struct{}{}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	used, err := n.requiredKeys(req.Transaction.Authorizations(), available)
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Code: 0, Name: "exception", What: "unspecified", Message: err.Error()}
		}
		writeFailure(w, http.StatusBadRequest, f)
		return
	}
	required := make([]string, 0, len(used))
	for k := range used {
		required = append(required, k)
	}
	sort.Strings(required)
	httputil.WriteJSON(w, http.StatusOK, rpc.RequiredKeysResponse{RequiredKeys: required})
}

func (n *Node) handlePushTransaction(w http.ResponseWriter, r *http.Request) {
	var req rpc.PushTransactionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	processed, err := n.push(req)
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Code: 0, Name: "exception", What: "unspecified", Message: err.Error()}
		}
		n.logger.ComponentDebug(logging.ComponentLedger, "Transaction rejected", zap.String("reason", f.Message))
		writeFailure(w, http.StatusInternalServerError, f)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
		"transaction_id": processed.ID,
		"processed":      processed,
	})
}

// actionTrace is the part of a real trace the harness and tests read.
type actionTrace struct {
	Receiver string          `json:"receiver"`
	Act      tracedAction    `json:"act"`
	Console  string          `json:"console"`
	Except   json.RawMessage `json:"except"`
}

type tracedAction struct {
	Account       string                `json:"account"`
	Name          string                `json:"name"`
	Authorization []eos.PermissionLevel `json:"authorization"`
	Data          any                   `json:"data"`
	HexData       string                `json:"hex_data"`
}
