package harness

import (
	"context"
	"sync"
	"testing"
	"time"

	eos "github.com/eoscanada/eos-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/constants"
	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
	"github.com/DeBrosOfficial/ledgerharness/pkg/ledgertest"
	"github.com/DeBrosOfficial/ledgerharness/pkg/rpc"
)

const (
	extraPrivateKey = "5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3"
	extraPublicKey  = "EOS6MRyAjQq8ud7hVNYcfnVPJqcVpscN5So8BhtHuGYqET5GDW5CV"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	node := ledgertest.NewNode()
	defer node.Close()

	cfg := testConfig(t, node, t.TempDir())
	cfg.Chain.ExpireSeconds = 0
	_, err := New(cfg, WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))

	cfg = testConfig(t, node, t.TempDir())
	cfg.Keys.PrivateKeys = []string{"not-a-key"}
	_, err = New(cfg, WithLogger(zap.NewNop()))
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, f.chain.Ping(ctx))
	f.node.Close()
	assert.False(t, f.chain.Ping(ctx))
}

func TestAddSigningKey(t *testing.T) {
	f := newFixture(t)

	before := f.chain.signerSnapshot()
	require.ElementsMatch(t, []string{constants.GenesisPublicKey, constants.CommonPublicKey}, f.chain.PublicKeys())

	t.Run("invalid key leaves the keyring untouched", func(t *testing.T) {
		err := f.chain.AddSigningKey("5Kinvalid")
		require.Error(t, err)
		assert.True(t, errors.IsConfiguration(err))
		assert.Same(t, before, f.chain.signerSnapshot())
		assert.Len(t, f.chain.PublicKeys(), 2)
	})

	t.Run("duplicate key is a no-op", func(t *testing.T) {
		require.NoError(t, f.chain.AddSigningKey(constants.CommonPrivateKey))
		assert.Same(t, before, f.chain.signerSnapshot())
	})

	t.Run("valid key replaces the signer", func(t *testing.T) {
		require.NoError(t, f.chain.AddSigningKey(extraPrivateKey))
		after := f.chain.signerSnapshot()
		assert.NotSame(t, before, after)
		assert.Contains(t, f.chain.PublicKeys(), extraPublicKey)
		assert.Equal(t, 2, before.keyring.Len(), "the previous keyring must not change")
	})
}

func TestResolveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("bindings are cached", func(t *testing.T) {
		first, err := f.chain.ResolveAccount(ctx, constants.SystemAccount)
		require.NoError(t, err)
		second, err := f.chain.ResolveAccount(ctx, constants.SystemAccount)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, f.node.Calls(rpc.PathGetAccount))
		assert.Equal(t, []string{"newaccount", "setabi", "setcode"}, first.Actions())
		assert.Empty(t, first.Tables())
	})

	t.Run("concurrent lookups share one request", func(t *testing.T) {
		require.NoError(t, f.node.AddAccount("carol", constants.CommonPublicKey))
		before := f.node.Calls(rpc.PathGetAccount)

		var wg sync.WaitGroup
		results := make([]*Account, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				acct, err := f.chain.ResolveAccount(ctx, "carol")
				assert.NoError(t, err)
				results[i] = acct
			}(i)
		}
		wg.Wait()

		for _, acct := range results {
			assert.Same(t, results[0], acct)
		}
		assert.Equal(t, before+1, f.node.Calls(rpc.PathGetAccount))
	})

	t.Run("each caller keeps its own deadline", func(t *testing.T) {
		require.NoError(t, f.node.AddAccount("dana", constants.CommonPublicKey))
		f.node.Delay(rpc.PathGetAccount, 200*time.Millisecond)
		defer f.node.Delay(rpc.PathGetAccount, 0)

		shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()

		var (
			wg              sync.WaitGroup
			shortErr, errBg error
			acct            *Account
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, shortErr = f.chain.ResolveAccount(shortCtx, "dana")
		}()
		go func() {
			defer wg.Done()
			acct, errBg = f.chain.ResolveAccount(ctx, "dana")
		}()
		wg.Wait()

		require.Error(t, shortErr)
		assert.True(t, errors.IsTransport(shortErr))
		require.NoError(t, errBg, "a short deadline must not fail the other caller")
		assert.Equal(t, "dana", acct.Name())
		assert.Contains(t, f.chain.Accounts(), "dana")
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.chain.ResolveAccount(ctx, "nobody")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
		assert.NotContains(t, f.chain.Accounts(), "nobody")
	})

	t.Run("invalid name is not sent", func(t *testing.T) {
		before := f.node.TotalCalls()
		_, err := f.chain.ResolveAccount(ctx, "Not_A_Name")
		assert.True(t, errors.IsValidation(err))
		assert.Equal(t, before, f.node.TotalCalls())
	})
}

func TestCreateAccount(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithMetrics(reg))
	ctx := context.Background()

	alice, err := f.chain.CreateAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Name())
	assert.Empty(t, alice.Actions())
	assert.Empty(t, alice.Tables())
	assert.Nil(t, alice.Schema())

	info, ok := f.node.Account("alice")
	require.True(t, ok)
	want := rpc.SingleKeyAuthority(constants.CommonPublicKey)
	assert.Equal(t, want.Keys, info.Owner.Keys)
	assert.Equal(t, want.Keys, info.Active.Keys)

	receipts := f.node.Receipts()
	require.Len(t, receipts, 1)
	assert.Equal(t, []string{constants.GenesisPublicKey}, receipts[0].Signers,
		"only the creator's key may sign")

	_, err = f.chain.CreateAccount(ctx, "alice")
	require.Error(t, err)
	reason, ok := errors.RejectionReason(err)
	require.True(t, ok)
	assert.Equal(t, "Cannot create account named alice, as that name is already taken", reason)
	assert.True(t, errors.IsAlreadyExists(err))

	assert.Equal(t, float64(1), counterValue(t, reg, "ledgerharness_submissions_total", resultOK))
	assert.Equal(t, float64(1), counterValue(t, reg, "ledgerharness_submissions_total", resultRejected))
}

func TestCreateAccountWithCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.chain.CreateAccount(ctx, "alice")
	require.NoError(t, err)

	bob, err := f.chain.CreateAccount(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.Name())

	receipts := f.node.Receipts()
	require.Len(t, receipts, 2)
	assert.Equal(t, []string{constants.CommonPublicKey}, receipts[1].Signers)
}

func TestSubmitIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.chain.CreateAccount(ctx, "alice")
	require.NoError(t, err)

	auth := rpc.SingleKeyAuthority(constants.CommonPublicKey)
	newAccount := func(name string) Action {
		return Action{
			Account:       constants.SystemAccount,
			Name:          "newaccount",
			Authorization: []eos.PermissionLevel{abi.Auth(constants.SystemAccount, constants.DefaultPermission)},
			Data:          newAccountData{Creator: constants.SystemAccount, Name: name, Owner: auth, Active: auth},
		}
	}

	_, err = f.chain.Submit(ctx, []Action{newAccount("dave"), newAccount("alice")})
	require.Error(t, err)
	assert.True(t, errors.IsSubmissionRejected(err))
	_, exists := f.node.Account("dave")
	assert.False(t, exists, "the first action must be rolled back")

	resp, err := f.chain.Submit(ctx, []Action{newAccount("dave"), newAccount("erin")})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TransactionID)
	for _, name := range []string{"dave", "erin"} {
		_, exists := f.node.Account(name)
		assert.True(t, exists, name)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.chain.Submit(ctx, nil)
	assert.True(t, errors.IsValidation(err))

	_, err = f.chain.Submit(ctx, []Action{{
		Account:       constants.SystemAccount,
		Name:          "newaccount",
		Authorization: []eos.PermissionLevel{abi.Auth(constants.SystemAccount, constants.DefaultPermission)},
		Data:          map[string]any{"creator": constants.SystemAccount},
	}})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 0, f.node.Calls(rpc.PathPushTransaction))
}

func TestSubmitUnknownKey(t *testing.T) {
	node := ledgertest.NewNode()
	defer node.Close()

	cfg := testConfig(t, node, t.TempDir())
	cfg.Keys.SkipDefaults = true
	cfg.Keys.PrivateKeys = []string{extraPrivateKey}
	chain, err := New(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer chain.Close()

	_, err = chain.CreateAccount(context.Background(), "alice")
	require.Error(t, err)
	reason, ok := errors.RejectionReason(err)
	require.True(t, ok)
	assert.Contains(t, reason, "but does not have signatures for it")
	assert.Equal(t, 0, node.Calls(rpc.PathPushTransaction))
}

func TestSubmitAdvancesHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	head := f.node.HeadBlock()
	_, err := f.chain.CreateAccount(ctx, "alice")
	require.NoError(t, err)

	tx := f.node.Receipts()[0]
	assert.Equal(t, head+1, tx.BlockNum)
	assert.Equal(t, 1, f.node.Calls(rpc.PathGetBlock))
}

func TestAddSigningKeyDuringSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth := rpc.SingleKeyAuthority(constants.CommonPublicKey)
	names := []string{"alice", "bob", "carol"}

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := f.chain.CreateAccount(ctx, name)
			assert.NoError(t, err)
		}(name)
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.chain.Submit(ctx, []Action{{
			Account:       constants.SystemAccount,
			Name:          "newaccount",
			Authorization: []eos.PermissionLevel{abi.Auth(constants.SystemAccount, constants.DefaultPermission)},
			Data:          newAccountData{Creator: constants.SystemAccount, Name: "dave", Owner: auth, Active: auth},
		}})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, f.chain.AddSigningKey(extraPrivateKey))
		assert.NoError(t, f.chain.AddSigningKey(constants.CommonPrivateKey))
	}()
	wg.Wait()

	assert.ElementsMatch(t,
		[]string{constants.GenesisPublicKey, constants.CommonPublicKey, extraPublicKey},
		f.chain.PublicKeys())
	for _, name := range append(names, "dave") {
		_, exists := f.node.Account(name)
		assert.True(t, exists, name)
	}
	for _, r := range f.node.Receipts() {
		assert.Equal(t, []string{constants.GenesisPublicKey}, r.Signers)
	}
}

func TestResolveAndCreateDistinctAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing := []string{"carol", "dave", "erin"}
	for _, name := range existing {
		require.NoError(t, f.node.AddAccount(name, constants.CommonPublicKey))
	}
	created := []string{"alice", "bob"}

	var wg sync.WaitGroup
	for _, name := range existing {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			acct, err := f.chain.ResolveAccount(ctx, name)
			if assert.NoError(t, err) {
				assert.Equal(t, name, acct.Name())
			}
		}(name)
	}
	for _, name := range created {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			acct, err := f.chain.CreateAccount(ctx, name)
			if assert.NoError(t, err) {
				assert.Equal(t, name, acct.Name())
			}
		}(name)
	}
	wg.Wait()

	want := append(append([]string{constants.SystemAccount}, existing...), created...)
	assert.ElementsMatch(t, want, f.chain.Accounts())
	for _, name := range want {
		first, err := f.chain.ResolveAccount(ctx, name)
		require.NoError(t, err)
		second, err := f.chain.ResolveAccount(ctx, name)
		require.NoError(t, err)
		assert.Same(t, first, second, name)
	}
}
