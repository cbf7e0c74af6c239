// Package ledgertest runs an in-memory ledger node that speaks the /v1/chain
// HTTP API well enough to exercise the harness end to end. It verifies
// reference blocks, expirations, signatures and authorizations, applies the
// system actions itself and hands contract actions to registered Go handlers.
package ledgertest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	eos "github.com/eoscanada/eos-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/constants"
	"github.com/DeBrosOfficial/ledgerharness/pkg/httputil"
	"github.com/DeBrosOfficial/ledgerharness/pkg/logging"
	"github.com/DeBrosOfficial/ledgerharness/pkg/rpc"
)

// blockInterval is the ledger's block time.
const blockInterval = 500 * time.Millisecond

// maxExpirationWindow bounds how far past head a transaction may expire.
const maxExpirationWindow = time.Hour

type accountState struct {
	name    string
	created time.Time
	owner   rpc.Authority
	active  rpc.Authority
	abi     *eos.ABI
	code    []byte
}

type tableKey struct {
	code, scope, table string
}

type row struct {
	data  json.RawMessage
	payer string
}

type actionKey struct {
	account, action string
}

// Receipt records an accepted transaction.
type Receipt struct {
	ID       string
	BlockNum uint32
	Signers  []string
	Actions  []*eos.Action
}

// Node is a fake ledger node. All methods are safe for concurrent use.
type Node struct {
	mu       sync.Mutex
	chainID  []byte
	genesis  time.Time
	head     uint32
	accounts map[string]*accountState
	tables   map[tableKey][]row
	handlers map[actionKey]ActionHandler
	seen     map[string]struct{}
	receipts []Receipt
	calls    map[string]int
	delays   map[string]time.Duration

	logger *logging.ColoredLogger
	server *httptest.Server
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node's logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) { n.logger = logging.FromZap(l) }
}

// WithHeadBlock sets the starting head block number.
func WithHeadBlock(num uint32) Option {
	return func(n *Node) { n.head = num }
}

// WithChainID sets the chain id. id must be 32 bytes of hex.
func WithChainID(id string) Option {
	return func(n *Node) {
		if b, err := hex.DecodeString(id); err == nil && len(b) == sha256.Size {
			n.chainID = b
		}
	}
}

// NewNode starts a node listening on a local port. The system account is
// created with the genesis key and an ABI declaring newaccount, setcode and
// setabi. Close the node when done.
func NewNode(opts ...Option) *Node {
	sum := sha256.Sum256([]byte("ledgertest"))
	n := &Node{
		chainID:  sum[:],
		head:     100,
		accounts: make(map[string]*accountState),
		tables:   make(map[tableKey][]row),
		handlers: make(map[actionKey]ActionHandler),
		seen:     make(map[string]struct{}),
		calls:    make(map[string]int),
		delays:   make(map[string]time.Duration),
		logger:   logging.FromZap(nil),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.genesis = time.Now().UTC().Truncate(time.Second).Add(-time.Duration(n.head) * blockInterval)

	genesisAuth := rpc.SingleKeyAuthority(constants.GenesisPublicKey)
	n.accounts[constants.SystemAccount] = &accountState{
		name:    constants.SystemAccount,
		created: n.genesis,
		owner:   genesisAuth,
		active:  genesisAuth,
		abi:     SystemABI(),
		code:    []byte{0x00, 0x61, 0x73, 0x6d},
	}

	n.server = httptest.NewServer(n.router())
	n.logger.ComponentInfo(logging.ComponentLedger, "Fake ledger node started",
		zap.String("url", n.server.URL),
		zap.String("chain_id", hex.EncodeToString(n.chainID)),
		zap.Uint32("head", n.head),
	)
	return n
}

func (n *Node) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(n.countCalls)

	r.Post(rpc.PathGetInfo, n.handleGetInfo)
	r.Post(rpc.PathGetAccount, n.handleGetAccount)
	r.Post(rpc.PathGetABI, n.handleGetABI)
	r.Post(rpc.PathGetBlock, n.handleGetBlock)
	r.Post(rpc.PathGetTableRows, n.handleGetTableRows)
	r.Post(rpc.PathGetRequiredKeys, n.handleGetRequiredKeys)
	r.Post(rpc.PathPushTransaction, n.handlePushTransaction)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "Unknown Endpoint")
	})
	return r
}

func (n *Node) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		n.calls[r.URL.Path]++
		delay := n.delays[r.URL.Path]
		n.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// URL returns the base URL of the node.
func (n *Node) URL() string {
	return n.server.URL
}

// Close stops the HTTP server.
func (n *Node) Close() {
	n.server.Close()
}

// ChainID returns the chain id as hex.
func (n *Node) ChainID() string {
	return hex.EncodeToString(n.chainID)
}

// HeadBlock returns the current head block number.
func (n *Node) HeadBlock() uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.head
}

// Delay holds every later request to path for d before it is served.
func (n *Node) Delay(path string, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delays[path] = d
}

// Calls returns how many requests were made to path.
func (n *Node) Calls(path string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[path]
}

// TotalCalls returns the number of requests made to any path.
func (n *Node) TotalCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.calls {
		total += c
	}
	return total
}

// Receipts returns the accepted transactions in order.
func (n *Node) Receipts() []Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Receipt(nil), n.receipts...)
}

// Handle registers h for account::action. The account's ABI must declare
// the action for a transaction to reach h.
func (n *Node) Handle(account, action string, h ActionHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[actionKey{account, action}] = h
}

// AddAccount creates an account directly, bypassing newaccount. Both
// permissions are satisfied by key.
func (n *Node) AddAccount(name, key string) error {
	if !abi.IsValidName(name) {
		return fmt.Errorf("invalid account name %q", name)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.accounts[name]; ok {
		return fmt.Errorf("account %s already exists", name)
	}
	auth := rpc.SingleKeyAuthority(key)
	n.accounts[name] = &accountState{name: name, created: n.headTime(), owner: auth, active: auth}
	return nil
}

// SetABI replaces an account's ABI directly, bypassing setabi.
func (n *Node) SetABI(account string, a *eos.ABI) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	acct, ok := n.accounts[account]
	if !ok {
		return fmt.Errorf("account %s does not exist", account)
	}
	next := *acct
	next.abi = abi.WithDefaults(a)
	n.accounts[account] = &next
	return nil
}

// AccountInfo is a read-only view of an account.
type AccountInfo struct {
	Name   string
	ABI    *eos.ABI
	Code   []byte
	Owner  rpc.Authority
	Active rpc.Authority
}

// Account returns a view of the named account.
func (n *Node) Account(name string) (AccountInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acct, ok := n.accounts[name]
	if !ok {
		return AccountInfo{}, false
	}
	return AccountInfo{
		Name:   acct.name,
		ABI:    acct.abi,
		Code:   append([]byte(nil), acct.code...),
		Owner:  acct.owner,
		Active: acct.active,
	}, true
}

// Accounts returns every account name, sorted.
func (n *Node) Accounts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.accounts))
	for name := range n.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetRows replaces the rows of code's table under scope. Rows are marshaled
// to JSON and charged to code.
func (n *Node) SetRows(code, scope, table string, rows ...any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setRows(tableKey{code, scope, table}, code, rows)
}

// Rows returns the rows of code's table under scope.
func (n *Node) Rows(code, scope, table string) []json.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rows(tableKey{code, scope, table})
}

func (n *Node) setRows(key tableKey, payer string, rows []any) error {
	out := make([]row, 0, len(rows))
	for _, v := range rows {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal row: %w", err)
		}
		out = append(out, row{data: data, payer: payer})
	}
	n.tables[key] = out
	return nil
}

func (n *Node) rows(key tableKey) []json.RawMessage {
	stored := n.tables[key]
	out := make([]json.RawMessage, len(stored))
	for i, r := range stored {
		out[i] = append(json.RawMessage(nil), r.data...)
	}
	return out
}

// blockID derives a block id whose first four bytes are the big-endian
// block number, as on the real ledger.
func (n *Node) blockID(num uint32) []byte {
	var numBytes [4]byte
	binary.BigEndian.PutUint32(numBytes[:], num)
	h := sha256.New()
	h.Write(n.chainID)
	h.Write(numBytes[:])
	id := h.Sum(nil)
	copy(id[:4], numBytes[:])
	return id
}

func (n *Node) blockTime(num uint32) time.Time {
	return n.genesis.Add(time.Duration(num) * blockInterval)
}

func (n *Node) headTime() time.Time {
	return n.blockTime(n.head)
}

// refBlockPrefix is the little-endian uint32 at bytes 8..12 of a block id.
func refBlockPrefix(id []byte) uint32 {
	return binary.LittleEndian.Uint32(id[8:12])
}

func formatBlockTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000")
}
