// Package harness drives a ledger from tests. A Blockchain owns the RPC
// endpoint, the signing keys and a cache of account bindings; an Account
// exposes one function per action and table its contract declares.
package harness

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	eos "github.com/eoscanada/eos-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/config"
	"github.com/DeBrosOfficial/ledgerharness/pkg/constants"
	"github.com/DeBrosOfficial/ledgerharness/pkg/contract"
	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
	"github.com/DeBrosOfficial/ledgerharness/pkg/keys"
	"github.com/DeBrosOfficial/ledgerharness/pkg/logging"
	"github.com/DeBrosOfficial/ledgerharness/pkg/rpc"
)

// signerState pairs a keyring with the signer derived from it. It is
// replaced as a whole, never modified.
type signerState struct {
	keyring *keys.Keyring
	signer  *keys.Signer
}

// Blockchain is the single point of contact with the ledger.
type Blockchain struct {
	cfg       config.Config
	client    *rpc.Client
	logger    *logging.ColoredLogger
	metrics   *metrics
	now       func() time.Time
	validator *contract.Validator

	keyMu sync.RWMutex
	keys  *signerState

	mu       sync.RWMutex
	accounts map[string]*Account
	schemas  map[string]*eos.ABI
	resolves singleflight.Group
}

// New validates cfg and builds the keyring and the RPC client. The ledger is
// not contacted until the first call. A nil cfg means config.DefaultConfig().
func New(cfg *config.Config, opts ...Option) (*Blockchain, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.NewConfigurationError("config", fmt.Sprintf("%d invalid settings", len(errs)), stderrors.Join(errs...))
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var logger *logging.ColoredLogger
	if o.logger != nil {
		logger = logging.FromZap(o.logger)
	} else {
		var err error
		logger, err = logging.New(logging.Options{
			Level:        cfg.Logging.Level,
			Format:       cfg.Logging.Format,
			OutputFile:   cfg.Logging.OutputFile,
			EnableColors: cfg.Logging.Colors,
		})
		if err != nil {
			return nil, errors.NewConfigurationError("logging", "failed to build logger", err)
		}
	}

	reg := o.registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, errors.NewConfigurationError("metrics", "failed to register metrics", err)
	}

	state, err := buildSignerState(cfg.Keys)
	if err != nil {
		return nil, err
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Endpoint.Timeout}
	}
	client := rpc.NewClient(cfg.Endpoint.URL(),
		rpc.WithHTTPClient(httpClient),
		rpc.WithLogger(logger.Base()),
		rpc.WithObserver(m.observeRPC),
	)

	b := &Blockchain{
		cfg:       *cfg,
		client:    client,
		logger:    logger,
		metrics:   m,
		now:       o.now,
		validator: contract.NewValidator(context.Background(), logger.Base()),
		keys:      state,
		accounts:  make(map[string]*Account),
		schemas:   make(map[string]*eos.ABI),
	}

	b.logger.ComponentInfo(logging.ComponentHarness, "Harness ready",
		zap.String("endpoint", client.BaseURL()),
		zap.Int("signing_keys", state.keyring.Len()),
	)
	return b, nil
}

func buildSignerState(kc config.KeysConfig) (*signerState, error) {
	var secrets []string
	if !kc.SkipDefaults {
		secrets = append(secrets, constants.DefaultPrivateKeys()...)
	}
	secrets = append(secrets, kc.PrivateKeys...)

	kr, err := keys.NewKeyring(secrets...)
	if err != nil {
		return nil, errors.NewConfigurationError("keys.private_keys", "invalid signing key", err)
	}
	signer, err := kr.Signer()
	if err != nil {
		return nil, errors.NewConfigurationError("keys.private_keys", "cannot build signer", err)
	}
	return &signerState{keyring: kr, signer: signer}, nil
}

// Ping reports whether the ledger answers get_info.
func (b *Blockchain) Ping(ctx context.Context) bool {
	_, err := b.client.GetInfo(ctx)
	if err != nil {
		b.logger.ComponentDebug(logging.ComponentHarness, "Ping failed", zap.Error(err))
		return false
	}
	return true
}

// AddSigningKey adds a private key to the keyring and rebuilds the signer.
// On failure the previous keyring and signer stay in effect.
func (b *Blockchain) AddSigningKey(secret string) error {
	b.keyMu.Lock()
	defer b.keyMu.Unlock()

	current := b.keys
	next, err := current.keyring.With(secret)
	if err != nil {
		return errors.NewConfigurationError("signing_key", "invalid signing key", err)
	}
	if next == current.keyring {
		return nil
	}
	signer, err := next.Signer()
	if err != nil {
		return errors.NewConfigurationError("signing_key", "cannot build signer", err)
	}
	b.keys = &signerState{keyring: next, signer: signer}

	added := next.PublicKeys()[next.Len()-1]
	b.logger.ComponentInfo(logging.ComponentKeyring, "Signing key added",
		zap.String("public_key", added.String()),
		zap.Int("signing_keys", next.Len()),
	)
	return nil
}

func (b *Blockchain) signerSnapshot() *signerState {
	b.keyMu.RLock()
	defer b.keyMu.RUnlock()
	return b.keys
}

// PublicKeys returns the public keys of the keyring in legacy format.
func (b *Blockchain) PublicKeys() []string {
	pubs := b.signerSnapshot().keyring.PublicKeys()
	out := make([]string, len(pubs))
	for i, p := range pubs {
		out[i] = p.String()
	}
	return out
}

// ResolveAccount returns the binding for name, fetching the account and its
// ABI on first use. An account the ledger does not know yields a
// NotFoundError. Concurrent resolutions of one name share a single lookup;
// the lookup is not cancelled with any one caller's ctx, and each caller
// stops waiting when its own ctx is done.
func (b *Blockchain) ResolveAccount(ctx context.Context, name string) (*Account, error) {
	if acct := b.cached(name); acct != nil {
		return acct, nil
	}
	if !abi.IsValidName(name) {
		return nil, errors.NewValidationError("name", "invalid account name", name)
	}

	lookupCtx := context.WithoutCancel(ctx)
	ch := b.resolves.DoChan(name, func() (any, error) {
		return b.lookup(lookupCtx, name)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Account), nil
	case <-ctx.Done():
		return nil, errors.NewTransportError(rpc.PathGetAccount, 0, ctx.Err())
	}
}

// lookup fetches name and its ABI and caches the binding. A binding cached
// in the meantime wins.
func (b *Blockchain) lookup(ctx context.Context, name string) (*Account, error) {
	if acct := b.cached(name); acct != nil {
		return acct, nil
	}
	if _, err := b.client.GetAccount(ctx, name); err != nil {
		return nil, err
	}
	resp, err := b.client.GetABI(ctx, name)
	if err != nil {
		return nil, err
	}

	acct := newAccount(b, name, resp.ABI)
	b.mu.Lock()
	if existing, ok := b.accounts[name]; ok {
		acct = existing
	} else {
		b.accounts[name] = acct
	}
	b.mu.Unlock()

	b.logger.ComponentDebug(logging.ComponentHarness, "Account resolved",
		zap.String("account", name),
		zap.Int("actions", len(acct.Actions())),
		zap.Int("tables", len(acct.Tables())),
	)
	return acct, nil
}

func (b *Blockchain) cached(name string) *Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.accounts[name]
}

// rememberSchema keeps the ABI Submit encodes actions of name with in step
// with the binding's schema.
func (b *Blockchain) rememberSchema(name string, schema *eos.ABI) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if schema == nil {
		delete(b.schemas, name)
		return
	}
	b.schemas[name] = schema
}

// schema returns the ABI for actions of account, fetching it when no
// binding has supplied one.
func (b *Blockchain) schema(ctx context.Context, account string) (*eos.ABI, error) {
	b.mu.RLock()
	s, ok := b.schemas[account]
	b.mu.RUnlock()
	if ok {
		return s, nil
	}

	resp, err := b.client.GetABI(ctx, account)
	if err != nil {
		return nil, err
	}
	if resp.ABI == nil {
		return nil, errors.NewNotFoundError("schema", account)
	}
	s = abi.WithDefaults(resp.ABI)
	b.mu.Lock()
	b.schemas[account] = s
	b.mu.Unlock()
	return s, nil
}

// newAccountData is the payload of newaccount.
type newAccountData struct {
	Creator string        `json:"creator"`
	Name    string        `json:"name"`
	Owner   rpc.Authority `json:"owner"`
	Active  rpc.Authority `json:"active"`
}

// CreateAccount creates name through the system account's newaccount
// action, authorized by creator@active (the configured default creator when
// omitted). Owner and active both get the default single-key authority.
// The ledger's rejection, such as a name already taken, is returned as is.
func (b *Blockchain) CreateAccount(ctx context.Context, name string, creator ...string) (*Account, error) {
	creatorName := b.cfg.Chain.DefaultCreator
	if len(creator) > 0 && creator[0] != "" {
		creatorName = creator[0]
	}
	if !abi.IsValidName(name) {
		return nil, errors.NewValidationError("name", "invalid account name", name)
	}

	system, err := b.ResolveAccount(ctx, b.cfg.Chain.SystemAccount)
	if err != nil {
		return nil, err
	}
	authority := rpc.SingleKeyAuthority(constants.CommonPublicKey)
	_, err = system.Invoke(ctx, "newaccount", newAccountData{
		Creator: creatorName,
		Name:    name,
		Owner:   authority,
		Active:  authority,
	}, abi.Auth(creatorName, constants.DefaultPermission))
	if err != nil {
		return nil, err
	}

	b.logger.ComponentInfo(logging.ComponentHarness, "Account created",
		zap.String("account", name),
		zap.String("creator", creatorName),
	)
	return b.ResolveAccount(ctx, name)
}

// Query runs get_table_rows and returns the rows undecoded.
func (b *Blockchain) Query(ctx context.Context, req rpc.TableRowsRequest) ([]json.RawMessage, error) {
	resp, err := b.client.GetTableRows(ctx, req)
	b.metrics.queries.WithLabelValues(resultOf(err)).Inc()
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// QueryInto runs a table query and decodes every row into T.
func QueryInto[T any](ctx context.Context, b *Blockchain, req rpc.TableRowsRequest) ([]T, error) {
	rows, err := b.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for i, raw := range rows {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("rows[%d]", i), fmt.Sprintf("cannot decode row: %v", err), string(raw))
		}
		out = append(out, v)
	}
	return out, nil
}

// Accounts returns the names of the cached bindings, sorted.
func (b *Blockchain) Accounts() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.accounts))
	for name := range b.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RPC returns the underlying chain client.
func (b *Blockchain) RPC() *rpc.Client {
	return b.client
}

// Close releases the contract validator and flushes the log file.
func (b *Blockchain) Close() error {
	return stderrors.Join(
		b.validator.Close(context.Background()),
		b.logger.Close(),
	)
}
