package constants

import "time"

// Chain defaults for the local development ledger.
const (
	// SystemAccount is the genesis account that owns newaccount, setcode and setabi.
	SystemAccount = "led"

	// DefaultCreator is the account that pays for and authorizes new accounts.
	DefaultCreator = "led"

	// DefaultPermission is the permission level used for authorizations.
	DefaultPermission = "active"

	DefaultHost   = "127.0.0.1"
	DefaultPort   = 8888
	DefaultScheme = "http"
)

// Submission window defaults.
const (
	// DefaultBlocksBehind is how far behind head the reference block is taken.
	DefaultBlocksBehind = 5

	// DefaultExpireSeconds is the validity window after the reference block.
	DefaultExpireSeconds = 30

	DefaultRequestTimeout = 30 * time.Second
)

// Development keys. These must match the keys the local ledger was started with.
const (
	// GenesisPrivateKey signs for the genesis account.
	GenesisPrivateKey = "5JKnx6ndz11Di6twsvEdnupX8wknpRokxKWNuQuZKd2uMS7rh6Q"
	GenesisPublicKey  = "EOS7KQEvCvWxkhzh4seTsgmSVruJwF5MPnMrK353aG69RQoKDD3dZ"

	// CommonPrivateKey is shared by every account the harness creates.
	CommonPrivateKey = "5JsstuhDEgbhMqcUokQ98Mx2JEbu9sUpwWLHyXAA4URGXYnUfEf"
	CommonPublicKey  = "EOS8EReqzz88PbvNa8afvTkAhAdfbwgfRwfy4AMwS3K2thvFaMD9S"
)

// DefaultPrivateKeys returns the keys every keyring is seeded with.
func DefaultPrivateKeys() []string {
	return []string{GenesisPrivateKey, CommonPrivateKey}
}

// EnvRPCURL overrides the configured endpoint, e.g. http://127.0.0.1:8888.
const EnvRPCURL = "LEDGER_RPC_URL"
