package harness

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	eos "github.com/eoscanada/eos-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/ledgerharness/pkg/abi"
	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
	"github.com/DeBrosOfficial/ledgerharness/pkg/keys"
	"github.com/DeBrosOfficial/ledgerharness/pkg/logging"
	"github.com/DeBrosOfficial/ledgerharness/pkg/rpc"
)

// maxSignAttempts bounds how often the expiration is moved to obtain
// canonical signatures.
const maxSignAttempts = 64

// Action is one operation of a transaction. Data is encoded with the target
// account's ABI unless it is already eos.HexBytes or []byte. Nil Data is
// sent as an empty object.
type Action struct {
	Account       string
	Name          string
	Authorization []eos.PermissionLevel
	Data          any
}

// Submit signs actions as one transaction and pushes it. The reference block
// is BlocksBehind blocks below head and the transaction expires
// ExpireSeconds after it. The ledger applies all actions or none; its
// rejection reason is returned unaltered in a SubmissionRejectedError.
func (b *Blockchain) Submit(ctx context.Context, actions []Action) (*rpc.PushTransactionResponse, error) {
	submission := uuid.NewString()
	start := b.now()

	resp, err := b.submit(ctx, submission, actions)
	b.metrics.submissions.WithLabelValues(resultOf(err)).Inc()

	fields := []zap.Field{
		zap.String("submission", submission),
		zap.Int("actions", len(actions)),
		zap.Duration("elapsed", b.now().Sub(start)),
	}
	if err != nil {
		b.logger.ComponentDebug(logging.ComponentHarness, "Submission failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	b.logger.ComponentDebug(logging.ComponentHarness, "Submission accepted",
		append(fields, zap.String("transaction_id", resp.TransactionID))...)
	return resp, nil
}

func (b *Blockchain) submit(ctx context.Context, submission string, actions []Action) (*rpc.PushTransactionResponse, error) {
	if len(actions) == 0 {
		return nil, errors.NewValidationError("actions", "at least one action is required", nil)
	}
	// The signer in effect now is used for the whole submission.
	state := b.signerSnapshot()

	info, err := b.client.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	chainID, err := hex.DecodeString(info.ChainID)
	if err != nil {
		return nil, errors.NewTransportError(rpc.PathGetInfo, 0, fmt.Errorf("invalid chain id %q: %w", info.ChainID, err))
	}

	refNum := info.HeadBlockNum
	if behind := uint32(b.cfg.Chain.BlocksBehind); refNum > behind {
		refNum -= behind
	}
	ref, err := b.client.GetBlock(ctx, refNum)
	if err != nil {
		return nil, err
	}
	refTime, err := ref.Time()
	if err != nil {
		return nil, errors.NewTransportError(rpc.PathGetBlock, 0, err)
	}

	encoded, err := b.encodeActions(ctx, actions)
	if err != nil {
		return nil, err
	}

	tx := abi.NewTransaction(encoded, ref.BlockNum, refBlockPrefix(ref), refTime.Add(b.cfg.Chain.Expiration()))

	required, err := b.requiredKeys(ctx, tx, state.signer)
	if err != nil {
		return nil, err
	}
	packed, sigs, err := signTransaction(tx, chainID, state.signer, required)
	if err != nil {
		return nil, err
	}

	signatures := make([]string, len(sigs))
	for i, s := range sigs {
		signatures[i] = s.String()
	}
	b.logger.ComponentDebug(logging.ComponentHarness, "Pushing transaction",
		zap.String("submission", submission),
		zap.Uint32("ref_block", ref.BlockNum),
		zap.Time("expiration", tx.Expiration.Time),
		zap.Int("signatures", len(signatures)),
	)
	return b.client.PushTransaction(ctx, rpc.PushTransactionRequest{
		Signatures:            signatures,
		Compression:           0,
		PackedContextFreeData: "",
		PackedTrx:             hex.EncodeToString(packed),
	})
}

func (b *Blockchain) encodeActions(ctx context.Context, actions []Action) ([]*eos.Action, error) {
	out := make([]*eos.Action, len(actions))
	for i, a := range actions {
		if a.Account == "" || a.Name == "" {
			return nil, errors.NewValidationError(fmt.Sprintf("actions[%d]", i), "account and name are required", nil)
		}

		var data []byte
		switch d := a.Data.(type) {
		case eos.HexBytes:
			data = d
		case []byte:
			data = d
		default:
			schema, err := b.schema(ctx, a.Account)
			if err != nil {
				return nil, err
			}
			data, err = abi.EncodeActionData(schema, a.Name, a.Data)
			if err != nil {
				return nil, errors.NewValidationError(fmt.Sprintf("actions[%d].data", i),
					fmt.Sprintf("cannot encode %s::%s: %v", a.Account, a.Name, err), nil)
			}
		}
		out[i] = abi.NewAction(a.Account, a.Name, a.Authorization, data)
	}
	return out, nil
}

// requiredKeys asks the ledger which of the signer's keys tx needs. Signing
// with more than those makes the ledger reject the transaction.
func (b *Blockchain) requiredKeys(ctx context.Context, tx *eos.Transaction, signer *keys.Signer) ([]keys.PublicKey, error) {
	available := signer.PublicKeys()
	names := make([]string, len(available))
	for i, p := range available {
		names[i] = p.String()
	}

	required, err := b.client.GetRequiredKeys(ctx, tx, names)
	if err != nil {
		return nil, err
	}
	out := make([]keys.PublicKey, 0, len(required))
	for _, r := range required {
		pub, err := keys.ParsePublicKey(r)
		if err != nil {
			return nil, errors.NewTransportError(rpc.PathGetRequiredKeys, 0, fmt.Errorf("invalid required key %q: %w", r, err))
		}
		out = append(out, pub)
	}
	return out, nil
}

// signTransaction packs and signs tx with the required keys. When a
// signature is not canonical the expiration moves one second later and the
// transaction is packed again.
func signTransaction(tx *eos.Transaction, chainID []byte, signer *keys.Signer, required []keys.PublicKey) ([]byte, []keys.Signature, error) {
	for attempt := 0; attempt < maxSignAttempts; attempt++ {
		packed, err := abi.PackTransaction(tx)
		if err != nil {
			return nil, nil, errors.NewValidationError("transaction", fmt.Sprintf("cannot serialize: %v", err), nil)
		}
		if len(required) == 0 {
			return packed, nil, nil
		}

		sigs, err := signer.Sign(signingDigest(chainID, packed), required...)
		if err != nil {
			return nil, nil, errors.NewConfigurationError("signing_key", "cannot sign transaction", err)
		}
		if allCanonical(sigs) {
			return packed, sigs, nil
		}
		tx.Expiration = eos.JSONTime{Time: tx.Expiration.Time.Add(time.Second)}
	}
	return nil, nil, errors.NewConfigurationError("signing_key",
		fmt.Sprintf("no canonical signature after %d attempts", maxSignAttempts), nil)
}

// signingDigest is sha256(chain_id || packed_trx || 32 zero bytes), the
// zeros standing in for the hash of empty context-free data.
func signingDigest(chainID, packed []byte) []byte {
	h := sha256.New()
	h.Write(chainID)
	h.Write(packed)
	h.Write(make([]byte, sha256.Size))
	return h.Sum(nil)
}

func allCanonical(sigs []keys.Signature) bool {
	for _, s := range sigs {
		if !s.IsCanonical() {
			return false
		}
	}
	return true
}

// refBlockPrefix reads bytes 8..12 of the block id as little-endian. The
// value reported by the node is used when the id cannot be decoded.
func refBlockPrefix(block *rpc.BlockResponse) uint32 {
	id, err := hex.DecodeString(block.ID)
	if err != nil || len(id) < 12 {
		return block.RefBlockPrefix
	}
	return binary.LittleEndian.Uint32(id[8:12])
}
