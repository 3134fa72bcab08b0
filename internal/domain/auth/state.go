package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrStateDecode is returned when a state token is not valid base64 JSON.
var ErrStateDecode = errors.New("decode state")

// OpaqueState is round-tripped through the identity provider as the OIDC
// state parameter.
type OpaqueState struct {
	SuccessRedirect string `json:"successRedirect"`
}

// EncodeState serialises s as base64(JSON).
func EncodeState(s OpaqueState) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeState reverses EncodeState. Every failure wraps ErrStateDecode and
// returns a zero OpaqueState.
func DecodeState(token string) (OpaqueState, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return OpaqueState{}, fmt.Errorf("%w: base64: %w", ErrStateDecode, err)
	}
	var s OpaqueState
	if err := json.Unmarshal(raw, &s); err != nil {
		return OpaqueState{}, fmt.Errorf("%w: json: %w", ErrStateDecode, err)
	}
	return s, nil
}
