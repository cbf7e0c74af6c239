// Package keys parses ledger key and signature strings and signs transaction
// digests with secp256k1 (K1) keys.
//
// Supported encodings:
//
//	private: WIF (5...), PVT_K1_...
//	public:  EOS..., PUB_K1_...
//	signature: SIG_K1_...
package keys

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // the ledger's key checksums are ripemd160
)

const (
	legacyPublicPrefix = "EOS"
	publicK1Prefix     = "PUB_K1_"
	privateK1Prefix    = "PVT_K1_"
	signatureK1Prefix  = "SIG_K1_"

	wifVersion = 0x80

	// CompressedPublicKeyLen is the length of a compressed secp256k1 point.
	CompressedPublicKeyLen = 33
	// CompactSignatureLen is recovery header + r + s.
	CompactSignatureLen = 65
)

// KeyType is the curve tag used in the binary encoding of keys and signatures.
type KeyType byte

const (
	// KeyTypeK1 is secp256k1.
	KeyTypeK1 KeyType = 0
)

var (
	// ErrInvalidKey is returned for strings that do not decode to a usable key.
	ErrInvalidKey = errors.New("invalid key")
	// ErrChecksum is returned when a key or signature checksum does not match.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrUnsupportedKeyType is returned for R1/WA keys and signatures.
	ErrUnsupportedKeyType = errors.New("unsupported key type")
)

// PublicKey is a compressed K1 public key.
type PublicKey struct {
	Type KeyType
	Data []byte
}

// String renders the key in the legacy EOS... format.
func (p PublicKey) String() string {
	return legacyPublicPrefix + encodeCheck(p.Data, "")
}

// K1String renders the key in the PUB_K1_... format.
func (p PublicKey) K1String() string {
	return publicK1Prefix + encodeCheck(p.Data, "K1")
}

// Equal reports whether both keys encode the same point.
func (p PublicKey) Equal(other PublicKey) bool {
	return p.Type == other.Type && bytes.Equal(p.Data, other.Data)
}

// ParsePublicKey accepts EOS... and PUB_K1_... public keys.
func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimSpace(s)
	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(s, publicK1Prefix):
		data, err = decodeCheck(strings.TrimPrefix(s, publicK1Prefix), "K1")
	case strings.HasPrefix(s, "PUB_"):
		return PublicKey{}, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, s[:min(len(s), 6)])
	case strings.HasPrefix(s, legacyPublicPrefix):
		data, err = decodeCheck(strings.TrimPrefix(s, legacyPublicPrefix), "")
	default:
		return PublicKey{}, fmt.Errorf("%w: unknown public key prefix", ErrInvalidKey)
	}
	if err != nil {
		return PublicKey{}, err
	}
	if len(data) != CompressedPublicKeyLen {
		return PublicKey{}, fmt.Errorf("%w: public key is %d bytes", ErrInvalidKey, len(data))
	}
	if _, err := btcec.ParsePubKey(data); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return PublicKey{Type: KeyTypeK1, Data: data}, nil
}

// PrivateKey is a K1 signing key. It never renders itself in logs.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// ParsePrivateKey accepts WIF and PVT_K1_... private keys.
func ParsePrivateKey(s string) (*PrivateKey, error) {
	s = strings.TrimSpace(s)
	var (
		raw []byte
		err error
	)
	switch {
	case strings.HasPrefix(s, privateK1Prefix):
		raw, err = decodeCheck(strings.TrimPrefix(s, privateK1Prefix), "K1")
	case strings.HasPrefix(s, "PVT_"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, s[:min(len(s), 6)])
	default:
		raw, err = decodeWIF(s)
	}
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: private key is %d bytes", ErrInvalidKey, len(raw))
	}

	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow {
		return nil, fmt.Errorf("%w: scalar is not below the curve order", ErrInvalidKey)
	}
	if scalar.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidKey)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &PrivateKey{key: priv}, nil
}

// PublicKey derives the compressed public key.
func (k *PrivateKey) PublicKey() PublicKey {
	return PublicKey{Type: KeyTypeK1, Data: k.key.PubKey().SerializeCompressed()}
}

// WIF renders the key in wallet import format.
func (k *PrivateKey) WIF() string {
	payload := append([]byte{wifVersion}, k.key.Serialize()...)
	sum := doubleSHA256(payload)
	return base58.Encode(append(payload, sum[:4]...))
}

// String hides the secret.
func (k *PrivateKey) String() string {
	return "PrivateKey(" + k.PublicKey().String() + ")"
}

// Sign produces a compact recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) (Signature, error) {
	if len(digest) != sha256.Size {
		return Signature{}, fmt.Errorf("digest must be %d bytes, got %d", sha256.Size, len(digest))
	}
	compact := ecdsa.SignCompact(k.key, digest, true)
	return Signature{Type: KeyTypeK1, Data: compact}, nil
}

// Signature is a compact recoverable K1 signature.
type Signature struct {
	Type KeyType
	Data []byte
}

// String renders SIG_K1_....
func (s Signature) String() string {
	return signatureK1Prefix + encodeCheck(s.Data, "K1")
}

// IsCanonical reports whether r and s have no superfluous leading bytes, the
// form the ledger accepts.
func (s Signature) IsCanonical() bool {
	d := s.Data
	if len(d) != CompactSignatureLen {
		return false
	}
	return d[1]&0x80 == 0 &&
		!(d[1] == 0 && d[2]&0x80 == 0) &&
		d[33]&0x80 == 0 &&
		!(d[33] == 0 && d[34]&0x80 == 0)
}

// ParseSignature accepts SIG_K1_... signatures.
func ParseSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, signatureK1Prefix) {
		if strings.HasPrefix(s, "SIG_") {
			return Signature{}, fmt.Errorf("%w: %s", ErrUnsupportedKeyType, s[:min(len(s), 6)])
		}
		return Signature{}, fmt.Errorf("%w: unknown signature prefix", ErrInvalidKey)
	}
	data, err := decodeCheck(strings.TrimPrefix(s, signatureK1Prefix), "K1")
	if err != nil {
		return Signature{}, err
	}
	if len(data) != CompactSignatureLen {
		return Signature{}, fmt.Errorf("%w: signature is %d bytes", ErrInvalidKey, len(data))
	}
	return Signature{Type: KeyTypeK1, Data: data}, nil
}

// RecoverPublicKey returns the key that produced sig over digest.
func RecoverPublicKey(sig Signature, digest []byte) (PublicKey, error) {
	pub, _, err := ecdsa.RecoverCompact(sig.Data, digest)
	if err != nil {
		return PublicKey{}, fmt.Errorf("recover public key: %w", err)
	}
	return PublicKey{Type: KeyTypeK1, Data: pub.SerializeCompressed()}, nil
}

func decodeWIF(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	// version + key (+ optional compression flag) + checksum
	if len(b) != 37 && len(b) != 38 {
		return nil, fmt.Errorf("%w: unexpected WIF length %d", ErrInvalidKey, len(b))
	}
	payload, sum := b[:len(b)-4], b[len(b)-4:]
	if payload[0] != wifVersion {
		return nil, fmt.Errorf("%w: unexpected WIF version 0x%02x", ErrInvalidKey, payload[0])
	}
	want := doubleSHA256(payload)
	if !bytes.Equal(sum, want[:4]) {
		return nil, ErrChecksum
	}
	return payload[1:33], nil
}

// encodeCheck appends ripemd160(data || suffix)[:4] and base58-encodes.
func encodeCheck(data []byte, suffix string) string {
	sum := ripemdChecksum(data, suffix)
	return base58.Encode(append(append([]byte{}, data...), sum...))
}

func decodeCheck(s, suffix string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) < 5 {
		return nil, fmt.Errorf("%w: too short", ErrInvalidKey)
	}
	data, sum := b[:len(b)-4], b[len(b)-4:]
	if !bytes.Equal(sum, ripemdChecksum(data, suffix)) {
		return nil, ErrChecksum
	}
	return data, nil
}

func ripemdChecksum(data []byte, suffix string) []byte {
	h := ripemd160.New()
	h.Write(data)
	h.Write([]byte(suffix))
	return h.Sum(nil)[:4]
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
