// Copyright 2025 Certen Protocol
//
// Package crypto wraps the Ed25519 and base58 primitives the node relies on
// for transaction signing, fulfillment verification, and election public key
// derivation. It assumes those primitives are available as libraries (see
// spec §1) rather than implementing cryptography from scratch.
package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

// EncodePublicKey renders an Ed25519 public key as the base58 string stored
// in transaction owners_before/public_keys fields.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base58.Encode(pub)
}

// DecodePublicKey parses a base58-encoded Ed25519 public key.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58 public key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has wrong length %d", len(b))
	}
	return ed25519.PublicKey(b), nil
}

// Sign produces a hex-encoded Ed25519 signature over message.
func Sign(priv ed25519.PrivateKey, message []byte) string {
	sig := ed25519.Sign(priv, message)
	return hex.EncodeToString(sig)
}

// VerifyFulfillment verifies a hex-encoded signature fulfillment against the
// base58 public keys in ownersBefore. The fulfillment carries one signature
// per owner (comma-separated, in owners_before order; a single signature
// for the usual one-owner case); every listed owner must validate.
func VerifyFulfillment(ownersBefore []string, fulfillment string, message []byte) bool {
	if fulfillment == "" || len(ownersBefore) == 0 {
		return false
	}
	sigs := strings.Split(fulfillment, ",")
	if len(sigs) != len(ownersBefore) {
		return false
	}
	for i, owner := range ownersBefore {
		pub, err := DecodePublicKey(owner)
		if err != nil {
			return false
		}
		sigBytes, err := hex.DecodeString(sigs[i])
		if err != nil {
			return false
		}
		if !ed25519.Verify(pub, message, sigBytes) {
			return false
		}
	}
	return true
}

// SignFulfillment builds the fulfillment string for a single-owner input.
func SignFulfillment(priv ed25519.PrivateKey, message []byte) string {
	return Sign(priv, message)
}

// SignMultiFulfillment builds the fulfillment string for a multi-owner
// input, one comma-separated signature per private key, in owners_before
// order.
func SignMultiFulfillment(privs []ed25519.PrivateKey, message []byte) string {
	parts := make([]string, len(privs))
	for i, priv := range privs {
		parts[i] = Sign(priv, message)
	}
	return strings.Join(parts, ",")
}

// ElectionPublicKey derives the deterministic election public key:
// base58(hex_decode(election_id)).
func ElectionPublicKey(electionID string) (string, error) {
	raw, err := hex.DecodeString(electionID)
	if err != nil {
		return "", fmt.Errorf("election id is not valid hex: %w", err)
	}
	return base58.Encode(raw), nil
}

// keyFile is the on-disk JSON layout of a node's identity key, written by
// GenerateKeyFile and read by LoadKeyFile.
type keyFile struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// GenerateKeyFile creates a fresh Ed25519 keypair and writes it to path as
// JSON, returning the new key pair.
func GenerateKeyFile(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	kf := keyFile{
		PublicKey:  EncodePublicKey(pub),
		PrivateKey: hex.EncodeToString(priv),
	}
	raw, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, nil, fmt.Errorf("write key file %s: %w", path, err)
	}
	return pub, priv, nil
}

// LoadKeyFile reads a node identity key previously written by
// GenerateKeyFile.
func LoadKeyFile(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, nil, fmt.Errorf("parse key file %s: %w", path, err)
	}
	priv, err := hex.DecodeString(kf.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("key file %s has invalid private key hex: %w", path, err)
	}
	pub, err := DecodePublicKey(kf.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return pub, ed25519.PrivateKey(priv), nil
}
