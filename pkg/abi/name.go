package abi

import (
	eos "github.com/eoscanada/eos-go"
)

// MaxNameLen is the longest encodable account or action name.
const MaxNameLen = 13

// NameToUint64 encodes a ledger name.
func NameToUint64(s string) (uint64, error) {
	return eos.StringToName(s)
}

// Uint64ToName decodes a ledger name. Trailing dots are dropped.
func Uint64ToName(v uint64) string {
	return eos.NameToString(v)
}

// IsValidName reports whether s is a name the ledger stores unchanged:
// at most 13 characters from ".12345a-z", the 13th limited to ".12345a-j",
// and no trailing dot.
func IsValidName(s string) bool {
	if len(s) > MaxNameLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '.' && (c < '1' || c > '5') && (c < 'a' || c > 'z') {
			return false
		}
	}
	v, err := eos.StringToName(s)
	if err != nil {
		return false
	}
	return eos.NameToString(v) == s
}

// Auth is the permission level actor@permission.
func Auth(actor, permission string) eos.PermissionLevel {
	return eos.PermissionLevel{
		Actor:      eos.AccountName(actor),
		Permission: eos.PermissionName(permission),
	}
}
