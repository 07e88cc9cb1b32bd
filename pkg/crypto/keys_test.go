// Copyright 2025 Certen Protocol
//
package crypto

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePublicKeyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	encoded := EncodePublicKey(pub)
	decoded, err := DecodePublicKey(encoded)
	require.NoError(t, err)
	require.Equal(t, pub, decoded)
}

func TestDecodePublicKeyWrongLength(t *testing.T) {
	_, err := DecodePublicKey(EncodePublicKey([]byte("too-short")))
	require.Error(t, err)
}

func TestSignAndVerifyFulfillment(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	owner := EncodePublicKey(pub)
	message := []byte("canonical transaction bytes")

	fulfillment := SignFulfillment(priv, message)
	require.True(t, VerifyFulfillment([]string{owner}, fulfillment, message))
	require.False(t, VerifyFulfillment([]string{owner}, fulfillment, []byte("tampered")))
}

func TestVerifyMultiFulfillmentRequiresAllSignatures(t *testing.T) {
	pub1, priv1, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub2, priv2, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	owners := []string{EncodePublicKey(pub1), EncodePublicKey(pub2)}
	message := []byte("multisig message")

	fulfillment := SignMultiFulfillment([]ed25519.PrivateKey{priv1, priv2}, message)
	require.True(t, VerifyFulfillment(owners, fulfillment, message))

	fulfillment = SignMultiFulfillment([]ed25519.PrivateKey{priv1}, message)
	require.False(t, VerifyFulfillment(owners, fulfillment, message))
}

func TestVerifyFulfillmentRejectsEmptyInputs(t *testing.T) {
	require.False(t, VerifyFulfillment(nil, "", []byte("msg")))
	require.False(t, VerifyFulfillment([]string{"owner"}, "", []byte("msg")))
}

func TestElectionPublicKeyIsDeterministic(t *testing.T) {
	electionID := "deadbeefcafe0102"
	key1, err := ElectionPublicKey(electionID)
	require.NoError(t, err)
	key2, err := ElectionPublicKey(electionID)
	require.NoError(t, err)
	require.Equal(t, key1, key2)
}

func TestElectionPublicKeyRejectsNonHex(t *testing.T) {
	_, err := ElectionPublicKey("not-hex-zz")
	require.Error(t, err)
}

func TestGenerateAndLoadKeyFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node_key.json")

	pub, priv, err := GenerateKeyFile(path)
	require.NoError(t, err)

	loadedPub, loadedPriv, err := LoadKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, pub, loadedPub)
	require.Equal(t, priv, loadedPriv)
}

func TestLoadKeyFileMissingPath(t *testing.T) {
	_, _, err := LoadKeyFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
