package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "marketplace_token_json"
	CredentialPayloadVersionV1    = 1
)

// CredentialCodec serializes the secret part of a credential for storage.
type CredentialCodec interface {
	Format() string
	Version() int
	Encode(credential Credential) ([]byte, error)
	Decode(payload []byte) (Credential, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	AccessToken      string `json:"access_token,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresAtEpochMs int64  `json:"expires_at_ms,omitempty"`
	AccountID        string `json:"account_id,omitempty"`
}

func (JSONCredentialCodec) Encode(credential Credential) ([]byte, error) {
	payload := jsonCredentialPayload{
		AccessToken:      strings.TrimSpace(credential.AccessToken),
		RefreshToken:     strings.TrimSpace(credential.RefreshToken),
		ExpiresAtEpochMs: credential.ExpiresAtEpochMs(),
		AccountID:        strings.TrimSpace(credential.AccountID),
	}
	if payload.AccessToken == "" && payload.RefreshToken == "" {
		return nil, fmt.Errorf("core: credential payload requires a token")
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

// Decode restores the token fields only; store metadata is filled by the caller.
func (JSONCredentialCodec) Decode(payload []byte) (Credential, error) {
	if len(payload) == 0 {
		return Credential{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Credential{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	credential := Credential{
		AccessToken:  strings.TrimSpace(decoded.AccessToken),
		RefreshToken: strings.TrimSpace(decoded.RefreshToken),
		AccountID:    strings.TrimSpace(decoded.AccountID),
	}
	if decoded.ExpiresAtEpochMs > 0 {
		credential.ExpiresAt = time.UnixMilli(decoded.ExpiresAtEpochMs).UTC()
	}
	return credential, nil
}
