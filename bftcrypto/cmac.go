package bftcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/bftcore/bftcore/wire"
)

// cmacBlockSize is AES's block size in bytes, fixed by RFC 4493.
const cmacBlockSize = aes.BlockSize

// GenerateCMACKey generates a fresh 128-bit shared secret for the CMAC
// authenticator mode (§4.2, §4.3). One secret is generated per ordered pair
// of replicas during key exchange; only the two endpoints ever hold it.
func GenerateCMACKey() ([]byte, error) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("bftcrypto: cmac key: %w", err)
	}
	return key, nil
}

// cmacSum computes the RFC 4493 AES-CMAC of msg under key, the pairwise
// authenticator tag (§4.2's "pairwise authenticators" mode): unlike a
// signature, the tag is only verifiable by the single peer that shares the
// key, so a batch destined for multiple peers must be tagged separately per
// destination at enqueue time.
func cmacSum(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("bftcrypto: cmac cipher: %w", err)
	}
	k1, k2 := cmacSubkeys(block)

	n := len(msg)
	var mLast []byte
	complete := n != 0 && n%cmacBlockSize == 0
	if complete {
		mLast = xorBlocks(msg[n-cmacBlockSize:], k1)
	} else {
		padded := make([]byte, cmacBlockSize)
		copy(padded, msg[n-n%cmacBlockSize:])
		padded[n%cmacBlockSize] = 0x80
		mLast = xorBlocks(padded, k2)
	}

	mac := make([]byte, cmacBlockSize)
	enc := cipher.NewCBCEncrypter(block, make([]byte, cmacBlockSize))
	full := n / cmacBlockSize
	if complete {
		full--
	}
	for i := 0; i < full; i++ {
		enc.CryptBlocks(mac, msg[i*cmacBlockSize:(i+1)*cmacBlockSize])
	}
	enc.CryptBlocks(mac, mLast)
	return mac, nil
}

// cmacSubkeys derives RFC 4493's K1/K2 subkeys from the cipher's
// zero-plaintext encryption.
func cmacSubkeys(block cipher.Block) (k1, k2 []byte) {
	l := make([]byte, cmacBlockSize)
	block.Encrypt(l, l)
	k1 = cmacDouble(l)
	k2 = cmacDouble(k1)
	return k1, k2
}

// cmacDouble implements RFC 4493's left-shift-by-one-with-conditional-xor
// "dbl" operation over GF(2^128).
func cmacDouble(in []byte) []byte {
	out := make([]byte, len(in))
	var carry byte
	for i := len(in) - 1; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = in[i] >> 7
	}
	if in[0]&0x80 != 0 {
		out[len(out)-1] ^= 0x87
	}
	return out
}

func xorBlocks(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

type cmacSigner struct {
	peerKeys map[uint32][]byte
}

func (s *cmacSigner) Method() wire.CryptoMethod { return wire.CryptoCMAC }

func (s *cmacSigner) Sign(canonical []byte, dst uint32) (sig, key []byte, err error) {
	secret, ok := s.peerKeys[dst]
	if !ok {
		return nil, nil, fmt.Errorf("bftcrypto: no CMAC shared secret for peer %d", dst)
	}
	tag, err := cmacSum(secret, canonical)
	if err != nil {
		return nil, nil, err
	}
	idBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(idBytes, dst)
	return tag, idBytes, nil
}

type cmacVerifier struct {
	keys PeerKeys
}

func (v *cmacVerifier) Method() wire.CryptoMethod { return wire.CryptoCMAC }

func (v *cmacVerifier) Verify(canonical, sig, key []byte, sender, self uint32) error {
	secret, ok := v.keys[sender]
	if !ok {
		return fmt.Errorf("%w: no CMAC secret for sender %d", ErrVerification, sender)
	}
	want, err := cmacSum(secret, canonical)
	if err != nil {
		return err
	}
	if len(want) != len(sig) {
		return fmt.Errorf("%w: cmac length mismatch from %d", ErrVerification, sender)
	}
	var diff byte
	for i := range want {
		diff |= want[i] ^ sig[i]
	}
	if diff != 0 {
		return fmt.Errorf("%w: cmac mismatch from %d to %d", ErrVerification, sender, self)
	}
	return nil
}
