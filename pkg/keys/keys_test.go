package keys

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"

	"github.com/DeBrosOfficial/ledgerharness/pkg/constants"
)

func TestParsePrivateKeyDerivesKnownPublicKey(t *testing.T) {
	tests := []struct {
		name   string
		wif    string
		public string
	}{
		{"genesis", constants.GenesisPrivateKey, constants.GenesisPublicKey},
		{"common", constants.CommonPrivateKey, constants.CommonPublicKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParsePrivateKey(tt.wif)
			if err != nil {
				t.Fatalf("ParsePrivateKey: %v", err)
			}
			if got := key.PublicKey().String(); got != tt.public {
				t.Errorf("expected public key %s, got %s", tt.public, got)
			}
			if got := key.WIF(); got != tt.wif {
				t.Errorf("WIF round trip: expected %s, got %s", tt.wif, got)
			}
		})
	}
}

func TestParsePrivateKeyRejectsGarbage(t *testing.T) {
	// Flip the last character so the checksum breaks.
	bad := constants.GenesisPrivateKey[:len(constants.GenesisPrivateKey)-1] + "7"
	if bad == constants.GenesisPrivateKey {
		bad = constants.GenesisPrivateKey[:len(constants.GenesisPrivateKey)-1] + "8"
	}

	wif := func(scalar []byte) string {
		payload := append([]byte{wifVersion}, scalar...)
		sum := doubleSHA256(payload)
		return base58.Encode(append(payload, sum[:4]...))
	}
	order := btcec.S256().N.FillBytes(make([]byte, 32))

	tests := map[string]string{
		"checksum":    bad,
		"above order": wif(bytes.Repeat([]byte{0xff}, 32)),
		"curve order": wif(order),
		"zero":        wif(make([]byte, 32)),
		"not base58":  "0OIl-not-a-key",
		"empty":       "",
		"r1 key":      "PVT_R1_2sXhBwN8hCEPHdL3ADp3ib1iVbKqKUkmQ4sqE2FBPSKqsGmPfA",
		"public key":  constants.GenesisPublicKey,
		"short":       "5J",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePrivateKey(in); err == nil {
				t.Fatalf("expected error for %q", in)
			}
		})
	}

	_, err := ParsePrivateKey("PVT_R1_abc")
	if !errors.Is(err, ErrUnsupportedKeyType) {
		t.Errorf("expected ErrUnsupportedKeyType, got %v", err)
	}
}

func TestK1Formats(t *testing.T) {
	key, err := ParsePrivateKey(constants.CommonPrivateKey)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}

	pvt := privateK1Prefix + encodeCheck(key.key.Serialize(), "K1")
	fromK1, err := ParsePrivateKey(pvt)
	if err != nil {
		t.Fatalf("ParsePrivateKey(PVT_K1): %v", err)
	}
	if !fromK1.PublicKey().Equal(key.PublicKey()) {
		t.Error("PVT_K1 and WIF forms should derive the same key")
	}

	pub := key.PublicKey()
	for _, s := range []string{pub.String(), pub.K1String()} {
		parsed, err := ParsePublicKey(s)
		if err != nil {
			t.Fatalf("ParsePublicKey(%s): %v", s, err)
		}
		if !parsed.Equal(pub) {
			t.Errorf("ParsePublicKey(%s) returned a different key", s)
		}
	}
	if _, err := ParsePublicKey("EOS" + pub.K1String()[7:]); !errors.Is(err, ErrChecksum) {
		t.Errorf("legacy prefix with K1 checksum should fail the checksum, got %v", err)
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := ParsePrivateKey(constants.GenesisPrivateKey)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	digest := sha256.Sum256([]byte("transfer 1.0000 SYS"))

	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig.Data) != CompactSignatureLen {
		t.Fatalf("expected %d-byte signature, got %d", CompactSignatureLen, len(sig.Data))
	}

	parsed, err := ParseSignature(sig.String())
	if err != nil {
		t.Fatalf("ParseSignature: %v", err)
	}
	recovered, err := RecoverPublicKey(parsed, digest[:])
	if err != nil {
		t.Fatalf("RecoverPublicKey: %v", err)
	}
	if !recovered.Equal(key.PublicKey()) {
		t.Errorf("recovered %s, expected %s", recovered, key.PublicKey())
	}

	if _, err := key.Sign([]byte("short")); err == nil {
		t.Error("expected error for a non-32-byte digest")
	}
}

func TestIsCanonical(t *testing.T) {
	sig := Signature{Data: make([]byte, CompactSignatureLen)}
	sig.Data[1], sig.Data[2] = 0x01, 0x00
	sig.Data[33], sig.Data[34] = 0x01, 0x00
	if !sig.IsCanonical() {
		t.Error("expected canonical")
	}

	sig.Data[1] = 0x80
	if sig.IsCanonical() {
		t.Error("high bit in r must not be canonical")
	}

	sig.Data[1], sig.Data[2] = 0x00, 0x10
	if sig.IsCanonical() {
		t.Error("leading zero in r must not be canonical")
	}
}

func TestPrivateKeyStringHidesSecret(t *testing.T) {
	key, err := ParsePrivateKey(constants.GenesisPrivateKey)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if got := key.String(); got != "PrivateKey("+constants.GenesisPublicKey+")" {
		t.Errorf("unexpected String() %q", got)
	}
}

func TestKeyringWith(t *testing.T) {
	kr, err := NewKeyring(constants.GenesisPrivateKey)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}

	if _, err := kr.With("not-a-key"); err == nil {
		t.Fatal("expected error for invalid secret")
	}
	if kr.Len() != 1 {
		t.Errorf("failed With changed the keyring: %d keys", kr.Len())
	}

	same, err := kr.With(constants.GenesisPrivateKey)
	if err != nil || same != kr {
		t.Errorf("duplicate key should return the receiver, got %v", err)
	}

	next, err := kr.With(constants.CommonPrivateKey)
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	if kr.Len() != 1 || next.Len() != 2 {
		t.Errorf("expected 1 and 2 keys, got %d and %d", kr.Len(), next.Len())
	}

	empty, _ := NewKeyring()
	if _, err := empty.Signer(); err == nil {
		t.Error("expected error building a signer from an empty keyring")
	}
}

func TestSignerSubset(t *testing.T) {
	kr, err := NewKeyring(constants.GenesisPrivateKey, constants.CommonPrivateKey)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	signer, err := kr.Signer()
	if err != nil {
		t.Fatalf("Signer: %v", err)
	}
	digest := sha256.Sum256([]byte("subset"))

	all, err := signer.Sign(digest[:])
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 signatures, got %d (%v)", len(all), err)
	}

	common, _ := ParsePublicKey(constants.CommonPublicKey)
	if !signer.Has(common) {
		t.Fatal("signer should hold the common key")
	}
	only, err := signer.Sign(digest[:], common)
	if err != nil || len(only) != 1 {
		t.Fatalf("expected 1 signature, got %d (%v)", len(only), err)
	}
	recovered, err := RecoverPublicKey(only[0], digest[:])
	if err != nil || !recovered.Equal(common) {
		t.Errorf("signature was not made by the common key: %v", err)
	}

	other, _ := ParsePrivateKey("5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3")
	if _, err := signer.Sign(digest[:], other.PublicKey()); err == nil {
		t.Error("expected error for a key the signer does not hold")
	}
}
