// Package keymaterial persists the raw key bytes cmd/replica and cmd/client
// feed into bftcrypto.NewSigner, one hex-encoded file per replica/client id
// per directory. bftcrypto itself never touches disk or a PEM encoding, so
// this mirrors that rather than inventing a certificate convention nothing
// else in the tree uses.
package keymaterial

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bftcore/bftcore/bftcrypto"
	"github.com/bftcore/bftcore/wire"
)

func path(dir string, id uint32) string {
	return filepath.Join(dir, fmt.Sprintf("node-%d.key", id))
}

// LoadOrGenerate returns the Signer material for id under method, generating
// and persisting a fresh key under dir if none exists yet. signingMaterial
// is already the concrete type bftcrypto.NewSigner expects for RSA and
// ED25519 (*rsa.PrivateKey, ed25519.PrivateKey); for CMAC it is instead the
// single raw shared secret ([]byte), since only the caller knows the full
// peer set a map[uint32][]byte needs to be built over (§4.3).
func LoadOrGenerate(dir string, id uint32, method wire.CryptoMethod) (signingMaterial any, publicKeyMaterial []byte, err error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("keymaterial: mkdir %s: %w", dir, err)
	}
	p := path(dir, id)

	switch method {
	case wire.CryptoRSA:
		if raw, ok := readExisting(p); ok {
			priv, err := x509.ParsePKCS1PrivateKey(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("keymaterial: parse RSA key %s: %w", p, err)
			}
			pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
			if err != nil {
				return nil, nil, fmt.Errorf("keymaterial: marshal RSA public key: %w", err)
			}
			return priv, pub, nil
		}
		priv, err := bftcrypto.GenerateRSAKey()
		if err != nil {
			return nil, nil, fmt.Errorf("keymaterial: generate RSA key: %w", err)
		}
		if err := writeNew(p, x509.MarshalPKCS1PrivateKey(priv)); err != nil {
			return nil, nil, err
		}
		pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("keymaterial: marshal RSA public key: %w", err)
		}
		return priv, pub, nil

	case wire.CryptoED25519:
		if raw, ok := readExisting(p); ok {
			if len(raw) != ed25519.PrivateKeySize {
				return nil, nil, fmt.Errorf("keymaterial: bad ED25519 key length in %s", p)
			}
			priv := ed25519.PrivateKey(raw)
			pub := priv.Public().(ed25519.PublicKey)
			return priv, []byte(pub), nil
		}
		pub, priv, err := bftcrypto.GenerateED25519Key()
		if err != nil {
			return nil, nil, fmt.Errorf("keymaterial: generate ED25519 key: %w", err)
		}
		if err := writeNew(p, priv); err != nil {
			return nil, nil, err
		}
		return priv, []byte(pub), nil

	case wire.CryptoCMAC:
		if raw, ok := readExisting(p); ok {
			return raw, raw, nil
		}
		secret, err := bftcrypto.GenerateCMACKey()
		if err != nil {
			return nil, nil, fmt.Errorf("keymaterial: generate CMAC key: %w", err)
		}
		if err := writeNew(p, secret); err != nil {
			return nil, nil, err
		}
		return secret, secret, nil

	default:
		return nil, nil, fmt.Errorf("keymaterial: unknown crypto method %d", method)
	}
}

// ReadSecret reads id's key material from dir without generating one if
// missing, for a peer (e.g. a replica's CMAC secret, read by a client that
// was provisioned the same key directory out-of-band) this process does not
// own and must never fabricate.
func ReadSecret(dir string, id uint32) ([]byte, error) {
	raw, ok := readExisting(path(dir, id))
	if !ok {
		return nil, fmt.Errorf("keymaterial: no key material for id %d in %s", id, dir)
	}
	return raw, nil
}

func readExisting(p string) ([]byte, bool) {
	enc, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	raw, err := hex.DecodeString(string(enc))
	if err != nil {
		return nil, false
	}
	return raw, true
}

func writeNew(p string, raw []byte) error {
	if err := os.WriteFile(p, []byte(hex.EncodeToString(raw)), 0o600); err != nil {
		return fmt.Errorf("keymaterial: write %s: %w", p, err)
	}
	return nil
}
