package keys

import (
	"fmt"
)

// Keyring is an ordered, immutable set of signing keys. Mutation returns a new
// Keyring so a signer built from an older one is never modified in place.
type Keyring struct {
	keys []*PrivateKey
}

// NewKeyring parses every secret. It fails on the first invalid one.
func NewKeyring(secrets ...string) (*Keyring, error) {
	kr := &Keyring{}
	for i, s := range secrets {
		next, err := kr.With(s)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		kr = next
	}
	return kr, nil
}

// With returns a copy of the keyring with secret appended. The receiver is
// left untouched whether or not the secret is valid. A secret whose public key
// is already present returns the receiver.
func (kr *Keyring) With(secret string) (*Keyring, error) {
	key, err := ParsePrivateKey(secret)
	if err != nil {
		return nil, err
	}
	pub := key.PublicKey()
	for _, existing := range kr.keys {
		if existing.PublicKey().Equal(pub) {
			return kr, nil
		}
	}

	next := &Keyring{keys: make([]*PrivateKey, 0, len(kr.keys)+1)}
	next.keys = append(append(next.keys, kr.keys...), key)
	return next, nil
}

// Len returns the number of keys.
func (kr *Keyring) Len() int {
	return len(kr.keys)
}

// PublicKeys returns the public keys in keyring order.
func (kr *Keyring) PublicKeys() []PublicKey {
	out := make([]PublicKey, len(kr.keys))
	for i, k := range kr.keys {
		out[i] = k.PublicKey()
	}
	return out
}

// Signer builds a signer over a snapshot of the keyring.
func (kr *Keyring) Signer() (*Signer, error) {
	if len(kr.keys) == 0 {
		return nil, fmt.Errorf("%w: keyring is empty", ErrInvalidKey)
	}
	byPub := make(map[string]*PrivateKey, len(kr.keys))
	pubs := make([]PublicKey, len(kr.keys))
	for i, k := range kr.keys {
		pub := k.PublicKey()
		pubs[i] = pub
		byPub[string(pub.Data)] = k
	}
	return &Signer{keys: append([]*PrivateKey(nil), kr.keys...), byPub: byPub, pubs: pubs}, nil
}

// Signer signs digests with every key it was built from.
type Signer struct {
	keys  []*PrivateKey
	byPub map[string]*PrivateKey
	pubs  []PublicKey
}

// PublicKeys returns the available public keys.
func (s *Signer) PublicKeys() []PublicKey {
	return append([]PublicKey(nil), s.pubs...)
}

// Has reports whether the signer holds the private half of pub.
func (s *Signer) Has(pub PublicKey) bool {
	_, ok := s.byPub[string(pub.Data)]
	return ok
}

// Sign signs digest with every key, in keyring order. When only is given,
// just those keys sign; each must be held by the signer.
func (s *Signer) Sign(digest []byte, only ...PublicKey) ([]Signature, error) {
	signers := s.keys
	if len(only) > 0 {
		signers = make([]*PrivateKey, 0, len(only))
		for _, pub := range only {
			k, ok := s.byPub[string(pub.Data)]
			if !ok {
				return nil, fmt.Errorf("%w: no private key for %s", ErrInvalidKey, pub)
			}
			signers = append(signers, k)
		}
	}
	sigs := make([]Signature, 0, len(signers))
	for _, k := range signers {
		sig, err := k.Sign(digest)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}
