// Package bftcrypto implements the replica's two authentication modes
// (§4.2): digital signatures (RSA, ED25519), verifiable by any receiver, and
// pairwise authenticators (CMAC), computed once per destination so only the
// designated receiver can verify. The RSA and ED25519 verifiers check a
// signature against the public key carried in the envelope's key field; they
// do not consult PeerKeys, so they do not tie that key to return_node_id.
// Only the CMAC verifier looks up key material by sender id.
package bftcrypto

import (
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/bftcore/bftcore/wire"
)

// ErrVerification is returned by Verify when a signature or authenticator
// tag does not match, which §7 classifies as an Authentication failure: the
// message is dropped and logged, never propagated to the execution thread.
var ErrVerification = errors.New("bftcrypto: signature verification failed")

// Signer produces the authentication material attached to an outbound
// Header (§4.2). Under digital-signature modes Sign is called once per
// message; under the authenticator mode it is called once per destination.
type Signer interface {
	Method() wire.CryptoMethod
	// Sign returns the signature/tag bytes and the key/authenticator-id
	// bytes to attach to the envelope for the given destination replica id
	// (ignored by digital-signature modes, which sign identically for
	// every receiver).
	Sign(canonical []byte, dst uint32) (sig, key []byte, err error)
}

// Verifier checks a received message's signature or authenticator (§4.2,
// §4.3). The CMAC verifier uses the claimed sender's shared secret from
// PeerKeys; the RSA and ED25519 verifiers use the key bytes passed to Verify.
type Verifier interface {
	Method() wire.CryptoMethod
	// Verify checks sig/key against canonical as claimed to originate from
	// sender and addressed to self (self is ignored under digital
	// signatures, which any receiver can verify).
	Verify(canonical, sig, key []byte, sender, self uint32) error
}

// NewSigner constructs the Signer for method, keyed by priv (an
// *rsa.PrivateKey, ed25519.PrivateKey, or, for CMAC, a per-destination
// shared-secret table keyed by replica id).
func NewSigner(method wire.CryptoMethod, material any) (Signer, error) {
	switch method {
	case wire.CryptoRSA:
		key, ok := material.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("bftcrypto: RSA signer needs an *rsa.PrivateKey")
		}
		return &rsaSigner{priv: key}, nil
	case wire.CryptoED25519:
		key, ok := material.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("bftcrypto: ED25519 signer needs an ed25519.PrivateKey")
		}
		return &ed25519Signer{priv: key}, nil
	case wire.CryptoCMAC:
		keys, ok := material.(map[uint32][]byte)
		if !ok {
			return nil, fmt.Errorf("bftcrypto: CMAC signer needs a map[uint32][]byte of per-peer shared secrets")
		}
		return &cmacSigner{peerKeys: keys}, nil
	default:
		return nil, fmt.Errorf("bftcrypto: unknown crypto method %d", method)
	}
}

// NewVerifier constructs the Verifier for method, given a lookup from
// replica id to that replica's key material (populated by keyexchange,
// §4.3). Only the CMAC verifier reads keys; RSA and ED25519 accept nil.
func NewVerifier(method wire.CryptoMethod, keys PeerKeys) (Verifier, error) {
	switch method {
	case wire.CryptoRSA:
		return &rsaVerifier{keys: keys}, nil
	case wire.CryptoED25519:
		return &ed25519Verifier{keys: keys}, nil
	case wire.CryptoCMAC:
		return &cmacVerifier{keys: keys}, nil
	default:
		return nil, fmt.Errorf("bftcrypto: unknown crypto method %d", method)
	}
}

// PeerKeys is a read-mostly map from replica id to its verification key
// (or, for CMAC, its shared secret with self), frozen once keyexchange's
// bootstrap barrier releases (§4.3, §9 "read-mostly shared maps frozen
// after setup").
type PeerKeys map[uint32][]byte

