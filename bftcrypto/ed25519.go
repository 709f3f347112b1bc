package bftcrypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/bftcore/bftcore/wire"
)

// GenerateED25519Key generates a fresh ED25519 keypair for the bootstrap
// key exchange (§4.3).
func GenerateED25519Key() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(nil)
}

type ed25519Signer struct {
	priv ed25519.PrivateKey
}

func (s *ed25519Signer) Method() wire.CryptoMethod { return wire.CryptoED25519 }

func (s *ed25519Signer) Sign(canonical []byte, _ uint32) (sig, key []byte, err error) {
	sig = ed25519.Sign(s.priv, canonical)
	pub, ok := s.priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("bftcrypto: ed25519 private key has no public half")
	}
	return sig, []byte(pub), nil
}

type ed25519Verifier struct {
	keys PeerKeys
}

func (v *ed25519Verifier) Method() wire.CryptoMethod { return wire.CryptoED25519 }

func (v *ed25519Verifier) Verify(canonical, sig, key []byte, sender, _ uint32) error {
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad ED25519 key length from %d", ErrVerification, sender)
	}
	if !ed25519.Verify(ed25519.PublicKey(key), canonical, sig) {
		return fmt.Errorf("%w: from %d", ErrVerification, sender)
	}
	return nil
}
