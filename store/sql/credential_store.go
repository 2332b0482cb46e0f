package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DefaultAccountKey = "default"

// CredentialStore keeps a versioned history of marketplace credentials for one
// account key. Only the newest row is active; older rows are revoked.
type CredentialStore struct {
	db         *bun.DB
	repo       repository.Repository[*credentialRecord]
	accountKey string
	codec      core.CredentialCodec
	secrets    core.SecretProvider
	now        func() time.Time
}

type CredentialStoreOption func(*CredentialStore)

func WithCredentialCodec(codec core.CredentialCodec) CredentialStoreOption {
	return func(s *CredentialStore) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithSecretProvider seals credential payloads at rest.
func WithSecretProvider(secrets core.SecretProvider) CredentialStoreOption {
	return func(s *CredentialStore) {
		s.secrets = secrets
	}
}

func WithCredentialClock(now func() time.Time) CredentialStoreOption {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewCredentialStore(db *bun.DB, accountKey string, opts ...CredentialStoreOption) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	accountKey = strings.TrimSpace(accountKey)
	if accountKey == "" {
		accountKey = DefaultAccountKey
	}
	store := &CredentialStore{
		db:         db,
		repo:       repo,
		accountKey: accountKey,
		codec:      core.JSONCredentialCodec{},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// rotationChecker is implemented by secret providers that can tell when a
// payload was sealed under a retired key.
type rotationChecker interface {
	NeedsRotation(ciphertext []byte) (bool, error)
}

// GetCurrent returns the active credential. A payload sealed under a retired
// key is re-sealed as a new version; if that write fails the decrypted
// credential is still returned.
func (s *CredentialStore) GetCurrent(ctx context.Context) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("account_key", "=", s.accountKey),
		repository.SelectBy("status", "=", string(core.CredentialStatusActive)),
		repository.OrderBy("version DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	cred, err := s.toDomain(ctx, records[0])
	if err != nil || !s.needsReseal(records[0]) {
		return cred, err
	}
	if resealed, err := s.Replace(ctx, cred); err == nil {
		return resealed, nil
	}
	return cred, nil
}

func (s *CredentialStore) needsReseal(record *credentialRecord) bool {
	checker, ok := s.secrets.(rotationChecker)
	if !ok || !record.Encrypted {
		return false
	}
	stale, err := checker.NeedsRotation(record.EncryptedPayload)
	return err == nil && stale
}

// Replace revokes every active credential of the account and stores cred as
// the next version, in one transaction.
func (s *CredentialStore) Replace(ctx context.Context, cred core.Credential) (core.Credential, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	payload, encrypted, err := s.seal(ctx, cred)
	if err != nil {
		return core.Credential{}, err
	}
	now := s.now().UTC()

	var created *credentialRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		nextVersion, versionErr := s.nextVersion(ctx, tx)
		if versionErr != nil {
			return versionErr
		}
		if _, updateErr := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("status = ?", string(core.CredentialStatusRevoked)).
			Set("revocation_reason = ?", "rotated").
			Set("updated_at = ?", now).
			Where("account_key = ?", s.accountKey).
			Where("status = ?", string(core.CredentialStatusActive)).
			Exec(ctx); updateErr != nil {
			return updateErr
		}

		record := &credentialRecord{
			ID:               uuid.NewString(),
			AccountKey:       s.accountKey,
			AccountID:        strings.TrimSpace(cred.AccountID),
			Version:          nextVersion,
			EncryptedPayload: payload,
			PayloadFormat:    s.codec.Format(),
			PayloadVersion:   s.codec.Version(),
			Encrypted:        encrypted,
			Status:           string(core.CredentialStatusActive),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if !cred.ExpiresAt.IsZero() {
			expiresAt := cred.ExpiresAt.UTC()
			record.ExpiresAt = &expiresAt
		}
		inserted, createErr := s.repo.CreateTx(ctx, tx, record)
		if createErr != nil {
			return createErr
		}
		created = inserted
		return nil
	})
	if err != nil {
		return core.Credential{}, err
	}

	stored := cred
	stored.ID = created.ID
	stored.Version = created.Version
	stored.Status = core.CredentialStatusActive
	stored.CreatedAt = created.CreatedAt
	stored.UpdatedAt = created.UpdatedAt
	return stored, nil
}

func (s *CredentialStore) seal(ctx context.Context, cred core.Credential) ([]byte, bool, error) {
	payload, err := s.codec.Encode(cred)
	if err != nil {
		return nil, false, err
	}
	if s.secrets == nil {
		return payload, false, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, payload)
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: encrypt credential payload: %w", err)
	}
	return sealed, true, nil
}

func (s *CredentialStore) toDomain(ctx context.Context, record *credentialRecord) (core.Credential, error) {
	payload := record.EncryptedPayload
	if record.Encrypted {
		if s.secrets == nil {
			return core.Credential{}, fmt.Errorf("sqlstore: credential %s is encrypted but no secret provider is configured", record.ID)
		}
		opened, err := s.secrets.Decrypt(ctx, payload)
		if err != nil {
			return core.Credential{}, fmt.Errorf("sqlstore: decrypt credential payload: %w", err)
		}
		payload = opened
	}
	if record.PayloadFormat != s.codec.Format() {
		return core.Credential{}, fmt.Errorf("sqlstore: unsupported credential payload format %q", record.PayloadFormat)
	}
	cred, err := s.codec.Decode(payload)
	if err != nil {
		return core.Credential{}, err
	}
	cred.ID = record.ID
	cred.Version = record.Version
	cred.Status = core.CredentialStatus(record.Status)
	cred.CreatedAt = record.CreatedAt
	cred.UpdatedAt = record.UpdatedAt
	if cred.AccountID == "" {
		cred.AccountID = record.AccountID
	}
	if cred.ExpiresAt.IsZero() && record.ExpiresAt != nil {
		cred.ExpiresAt = record.ExpiresAt.UTC()
	}
	return cred, nil
}

func (s *CredentialStore) nextVersion(ctx context.Context, tx bun.Tx) (int, error) {
	var maxVersion int
	if err := tx.NewSelect().
		Model((*credentialRecord)(nil)).
		ColumnExpr("COALESCE(MAX(version), 0)").
		Where("?TableAlias.account_key = ?", s.accountKey).
		Scan(ctx, &maxVersion); err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}
