package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	envelopePrefix    = "deliveries.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

// envelope is the stored form of a sealed credential. Sealed holds the GCM
// nonce followed by the ciphertext.
type envelope struct {
	KeyID     string `json:"kid"`
	Version   int    `json:"ver"`
	Algorithm string `json:"alg"`
	Sealed    string `json:"sealed"`
}

type EnvelopeMetadata struct {
	KeyID     string
	Version   int
	Algorithm string
}

// KeyRotationWindow bounds when a retired key may still open payloads. A
// zero bound is open.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	at = at.UTC()
	started := w.NotBefore.IsZero() || !at.Before(w.NotBefore.UTC())
	ended := !w.NotAfter.IsZero() && at.After(w.NotAfter.UTC())
	return started && !ended
}

// ParseEnvelopeMetadata reads which key sealed a payload without opening it.
func ParseEnvelopeMetadata(ciphertext []byte) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{KeyID: env.KeyID, Version: env.Version, Algorithm: env.Algorithm}, nil
}

func encodeEnvelope(key appKey, nonce []byte, ciphertext []byte) ([]byte, error) {
	sealed := make([]byte, 0, len(nonce)+len(ciphertext))
	sealed = append(append(sealed, nonce...), ciphertext...)
	data, err := json.Marshal(envelope{
		KeyID:     key.keyID,
		Version:   key.version,
		Algorithm: envelopeAlgorithm,
		Sealed:    base64.StdEncoding.EncodeToString(sealed),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func decodeEnvelope(ciphertext []byte) (envelope, error) {
	body, ok := strings.CutPrefix(string(ciphertext), envelopePrefix)
	if !ok {
		return envelope{}, fmt.Errorf("security: payload is not a sealed credential")
	}
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	env.KeyID = strings.TrimSpace(env.KeyID)
	if alg := strings.ToLower(strings.TrimSpace(env.Algorithm)); alg != envelopeAlgorithm {
		return envelope{}, fmt.Errorf("security: unsupported envelope algorithm %q", env.Algorithm)
	} else {
		env.Algorithm = alg
	}
	if strings.TrimSpace(env.Sealed) == "" {
		return envelope{}, fmt.Errorf("security: envelope has no sealed payload")
	}
	return env, nil
}

// split returns the nonce and ciphertext for a cipher with the given nonce size.
func (e envelope) split(nonceSize int) ([]byte, []byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(e.Sealed))
	if err != nil {
		return nil, nil, fmt.Errorf("security: decode sealed payload: %w", err)
	}
	if len(sealed) <= nonceSize {
		return nil, nil, fmt.Errorf("security: sealed payload is truncated")
	}
	return sealed[:nonceSize], sealed[nonceSize:], nil
}
