package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/ledgerharness/pkg/config"
	"github.com/DeBrosOfficial/ledgerharness/pkg/contract"
	"github.com/DeBrosOfficial/ledgerharness/pkg/ledgertest"
)

// applyModule exports apply(i64, i64, i64) with an empty body.
var applyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x03, 0x7e, 0x7e, 0x7e, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x09, 0x01, 0x05, 'a', 'p', 'p', 'l', 'y', 0x00, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

const widgetABI = `{
	"version": "eosio::abi/1.1",
	"structs": [
		{"name": "create", "base": "", "fields": [
			{"name": "issuer", "type": "name"},
			{"name": "maximum_supply", "type": "asset"}
		]},
		{"name": "issue", "base": "", "fields": [
			{"name": "to", "type": "name"},
			{"name": "quantity", "type": "asset"},
			{"name": "memo", "type": "string"}
		]},
		{"name": "currency_stats", "base": "", "fields": [
			{"name": "supply", "type": "asset"},
			{"name": "max_supply", "type": "asset"},
			{"name": "issuer", "type": "name"}
		]}
	],
	"actions": [
		{"name": "create", "type": "create", "ricardian_contract": ""},
		{"name": "issue", "type": "issue", "ricardian_contract": ""}
	],
	"tables": [
		{"name": "stat", "index_type": "i64", "key_names": [], "key_types": [], "type": "currency_stats"}
	]
}`

type currencyStats struct {
	Supply    string `json:"supply"`
	MaxSupply string `json:"max_supply"`
	Issuer    string `json:"issuer"`
}

type fixture struct {
	node  *ledgertest.Node
	chain *Blockchain
	root  string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	node := ledgertest.NewNode()
	t.Cleanup(node.Close)

	root := t.TempDir()
	chain, err := New(testConfig(t, node, root), append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = chain.Close() })

	return &fixture{node: node, chain: chain, root: root}
}

func testConfig(t *testing.T, node *ledgertest.Node, root string) *config.Config {
	t.Helper()
	endpoint, err := config.ParseEndpoint(node.URL())
	require.NoError(t, err)
	endpoint.Timeout = 5 * time.Second

	cfg := config.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.Contracts.Root = root
	return cfg
}

// writeWidget lays out the widget package the way the contract compiler does.
func (f *fixture) writeWidget(t *testing.T, wasm []byte) {
	t.Helper()
	wasmPath, abiPath := contract.Paths(f.root, "widget")
	require.NoError(t, os.MkdirAll(filepath.Dir(wasmPath), 0755))
	require.NoError(t, os.WriteFile(wasmPath, wasm, 0644))
	require.NoError(t, os.WriteFile(abiPath, []byte(widgetABI), 0644))
}

// handleWidget gives the node the behavior of the widget contract deployed
// on account.
func (f *fixture) handleWidget(account string) {
	f.node.Handle(account, "create", func(c *ledgertest.ActionContext) error {
		var args struct {
			Issuer        string `json:"issuer"`
			MaximumSupply string `json:"maximum_supply"`
		}
		if err := c.Decode(&args); err != nil {
			return err
		}
		if err := c.RequireAuth(c.Receiver); err != nil {
			return err
		}
		if !c.HasAccount(args.Issuer) {
			return ledgertest.Assert("issuer account does not exist")
		}
		scope := symbolCode(args.MaximumSupply)
		if len(c.Rows(scope, "stat")) > 0 {
			return ledgertest.Assert("token with symbol already exists")
		}
		return c.Emplace(scope, "stat", currencyStats{
			Supply:    zeroOf(args.MaximumSupply),
			MaxSupply: args.MaximumSupply,
			Issuer:    args.Issuer,
		}, c.Receiver)
	})
}

func symbolCode(asset string) string {
	fields := strings.Fields(asset)
	return fields[len(fields)-1]
}

// zeroOf returns a zero amount with the precision and symbol of asset.
func zeroOf(asset string) string {
	amount, sym, _ := strings.Cut(asset, " ")
	zero := "0"
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		zero += "." + strings.Repeat("0", len(amount)-i-1)
	}
	return zero + " " + sym
}

// counterValue reads one labeled counter from reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
