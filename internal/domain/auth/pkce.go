package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// pkceVerifierBytes yields a 43 character base64url verifier.
const pkceVerifierBytes = 32

// GeneratePKCECodes returns a fresh verifier and its S256 challenge.
func GeneratePKCECodes() (PKCECodes, error) {
	b := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(b); err != nil {
		return PKCECodes{}, fmt.Errorf("read random bytes for pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)
	return PKCECodes{
		Verifier:        verifier,
		Challenge:       oauth2.S256ChallengeFromVerifier(verifier),
		ChallengeMethod: ChallengeMethodS256,
	}, nil
}

// GenerateNonce returns a random URL-safe value suitable for the OIDC nonce.
func GenerateNonce() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes for nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
