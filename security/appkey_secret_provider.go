package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals credential payloads with AES-GCM under an
// application key. Retired keys registered with WithRetiredKey can still open
// payloads inside their rotation window.
type AppKeySecretProvider struct {
	current appKey
	retired []retiredKey
	now     func() time.Time
}

type appKey struct {
	material []byte
	keyID    string
	version  int
}

type retiredKey struct {
	appKey
	window KeyRotationWindow
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.current.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.current.version = version
		}
	}
}

func WithRetiredKey(keyID string, version int, material []byte, window KeyRotationWindow) Option {
	return func(provider *AppKeySecretProvider) {
		material = bytes.TrimSpace(material)
		if len(material) == 0 || version <= 0 {
			return
		}
		provider.retired = append(provider.retired, retiredKey{
			appKey: appKey{material: normalizeKey(material), keyID: strings.TrimSpace(keyID), version: version},
			window: window,
		})
	}
}

func WithClock(now func() time.Time) Option {
	return func(provider *AppKeySecretProvider) {
		if now != nil {
			provider.now = now
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		current: appKey{material: normalizeKey(key), keyID: "app-key", version: 1},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	switch {
	case p == nil:
		return nil, fmt.Errorf("security: secret provider is nil")
	case len(plaintext) == 0:
		return nil, fmt.Errorf("security: plaintext is required")
	}
	aead, err := p.current.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: read nonce: %w", err)
	}
	return encodeEnvelope(p.current, nonce, aead.Seal(nil, nonce, plaintext, p.current.label()))
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, err := p.keyFor(env)
	if err != nil {
		return nil, err
	}
	aead, err := key.aead()
	if err != nil {
		return nil, err
	}
	nonce, sealed, err := env.split(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, sealed, key.label())
	if err != nil {
		return nil, fmt.Errorf("security: open sealed credential: %w", err)
	}
	return plaintext, nil
}

// NeedsRotation reports whether ciphertext was sealed with a key other than
// the current one.
func (p *AppKeySecretProvider) NeedsRotation(ciphertext []byte) (bool, error) {
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false, err
	}
	return meta.KeyID != p.current.keyID || meta.Version != p.current.version, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.current.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.current.version
}

func (p *AppKeySecretProvider) keyFor(env envelope) (appKey, error) {
	if env.KeyID == p.current.keyID && env.Version == p.current.version {
		return p.current, nil
	}
	now := p.now()
	for _, key := range p.retired {
		if key.keyID != env.KeyID || key.version != env.Version {
			continue
		}
		if !key.window.Allows(now) {
			return appKey{}, fmt.Errorf("security: key %s v%d is outside its rotation window", key.keyID, key.version)
		}
		return key.appKey, nil
	}
	return appKey{}, fmt.Errorf(
		"security: key id mismatch: got %q v%d want %q v%d",
		env.KeyID, env.Version, p.current.keyID, p.current.version,
	)
}

func (k appKey) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.material)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// label binds a payload to the key that sealed it.
func (k appKey) label() []byte {
	return []byte(k.keyID + ":" + strconv.Itoa(k.version))
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
