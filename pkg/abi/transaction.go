package abi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	eos "github.com/eoscanada/eos-go"
)

// NewTransaction returns a transaction over actions referencing block
// refNum with the given prefix, expiring at expiration.
func NewTransaction(actions []*eos.Action, refNum uint32, refPrefix uint32, expiration time.Time) *eos.Transaction {
	return &eos.Transaction{
		TransactionHeader: eos.TransactionHeader{
			Expiration:     eos.JSONTime{Time: expiration.UTC().Truncate(time.Second)},
			RefBlockNum:    uint16(refNum),
			RefBlockPrefix: refPrefix,
		},
		ContextFreeActions: []*eos.Action{},
		Actions:            actions,
		Extensions:         []*eos.Extension{},
	}
}

// PackTransaction serializes tx.
func PackTransaction(tx *eos.Transaction) ([]byte, error) {
	b, err := eos.MarshalBinary(tx)
	if err != nil {
		return nil, fmt.Errorf("pack transaction: %w", err)
	}
	return b, nil
}

// UnpackTransaction parses a serialized transaction.
func UnpackTransaction(data []byte) (tx *eos.Transaction, err error) {
	defer func() {
		if r := recover(); r != nil {
			tx, err = nil, fmt.Errorf("unpack transaction: %v", r)
		}
	}()
	var out eos.Transaction
	if err := eos.UnmarshalBinary(data, &out); err != nil {
		return nil, fmt.Errorf("unpack transaction: %w", err)
	}
	return &out, nil
}

// TransactionID is the hex sha256 of a packed transaction.
func TransactionID(packed []byte) string {
	sum := sha256.Sum256(packed)
	return hex.EncodeToString(sum[:])
}
