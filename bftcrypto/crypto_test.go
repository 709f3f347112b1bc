package bftcrypto

import (
	"testing"

	"github.com/bftcore/bftcore/wire"
	"github.com/stretchr/testify/require"
)

func TestRSASignVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateRSAKey()
	require.NoError(t, err)
	signer, err := NewSigner(wire.CryptoRSA, priv)
	require.NoError(t, err)

	msg := []byte("PREPARE view=1 index=2")
	sig, key, err := signer.Sign(msg, 0)
	require.NoError(t, err)

	verifier, err := NewVerifier(wire.CryptoRSA, nil)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(msg, sig, key, 1, 2))
	require.Error(t, verifier.Verify([]byte("tampered"), sig, key, 1, 2))
}

func TestED25519SignVerifyRoundTrip(t *testing.T) {
	_, priv, err := GenerateED25519Key()
	require.NoError(t, err)
	signer, err := NewSigner(wire.CryptoED25519, priv)
	require.NoError(t, err)

	msg := []byte("COMMIT view=1 index=2")
	sig, key, err := signer.Sign(msg, 0)
	require.NoError(t, err)

	verifier, err := NewVerifier(wire.CryptoED25519, nil)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(msg, sig, key, 1, 2))
	require.Error(t, verifier.Verify([]byte("tampered"), sig, key, 1, 2))
}

func TestCMACSignVerifyIsPairwise(t *testing.T) {
	secret, err := GenerateCMACKey()
	require.NoError(t, err)

	signer, err := NewSigner(wire.CryptoCMAC, map[uint32][]byte{2: secret})
	require.NoError(t, err)
	msg := []byte("BATCH_REQ view=0 end_index=2")
	sig, _, err := signer.Sign(msg, 2)
	require.NoError(t, err)

	verifier, err := NewVerifier(wire.CryptoCMAC, PeerKeys{1: secret})
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(msg, sig, nil, 1, 2))

	other, err := NewVerifier(wire.CryptoCMAC, PeerKeys{1: []byte("0123456789abcdef")})
	require.NoError(t, err)
	require.Error(t, other.Verify(msg, sig, nil, 1, 2))
}

func TestCMACDoubleMatchesRFC4493TestVector(t *testing.T) {
	// RFC 4493 §4 Example 1: AES-128 key, empty message, so the padded last
	// block is masked with subkey K2 (derived from K1 by cmacDouble).
	key := []byte{
		0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6,
		0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c,
	}
	mac, err := cmacSum(key, nil)
	require.NoError(t, err)
	require.Len(t, mac, cmacBlockSize)
	// RFC 4493's published MAC for the empty message under this key.
	want := []byte{0xbb, 0x1d, 0x69, 0x29, 0xe9, 0x59, 0x37, 0x28, 0x7f, 0xa3, 0x7d, 0x12, 0x9b, 0x75, 0x67, 0x46}
	require.Equal(t, want, mac)
}
