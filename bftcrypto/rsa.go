package bftcrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/bftcore/bftcore/wire"
)

// RSAKeyBits is the modulus size generated for the RSA crypto method
// (§4.2, §4.3, §6 CRYPTO_METHOD=RSA). 2048 bits is go-ethereum's own floor
// for any RSA material it still accepts.
const RSAKeyBits = 2048

// GenerateRSAKey generates a fresh RSA keypair for the bootstrap key
// exchange (§4.3).
func GenerateRSAKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, RSAKeyBits)
}

type rsaSigner struct {
	priv *rsa.PrivateKey
}

func (s *rsaSigner) Method() wire.CryptoMethod { return wire.CryptoRSA }

func (s *rsaSigner) Sign(canonical []byte, _ uint32) (sig, key []byte, err error) {
	digest := sha256.Sum256(canonical)
	sig, err = rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, nil, fmt.Errorf("bftcrypto: rsa sign: %w", err)
	}
	key, err = x509.MarshalPKIXPublicKey(&s.priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("bftcrypto: rsa marshal public key: %w", err)
	}
	return sig, key, nil
}

type rsaVerifier struct {
	keys PeerKeys
}

func (v *rsaVerifier) Method() wire.CryptoMethod { return wire.CryptoRSA }

func (v *rsaVerifier) Verify(canonical, sig, key []byte, sender, _ uint32) error {
	pub, err := x509.ParsePKIXPublicKey(key)
	if err != nil {
		return fmt.Errorf("%w: bad RSA key from %d: %v", ErrVerification, sender, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: key from %d is not RSA", ErrVerification, sender)
	}
	digest := sha256.Sum256(canonical)
	if err := rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: from %d: %v", ErrVerification, sender, err)
	}
	return nil
}
