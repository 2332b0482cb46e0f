package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/singleflight"
)

const credentialRefreshTimeout = time.Minute

// GetValidAccessToken returns an access token that is valid now, refreshing the
// stored credential when it has expired. Concurrent callers that observe the
// same expired credential share a single refresh exchange.
func (s *Service) GetValidAccessToken(ctx context.Context) (token string, err error) {
	startedAt := time.Now().UTC()
	refreshed := false
	fields := map[string]any{"account_key": s.Config().AccountKey}
	defer func() {
		fields["refreshed"] = refreshed
		s.observeOperation(ctx, startedAt, "get_valid_access_token", err, fields)
	}()

	if s == nil || s.credentialStore == nil {
		return "", s.mapError(fmt.Errorf("core: credential store is required"))
	}

	current, err := s.loadCredential(ctx)
	if err != nil {
		return "", err
	}
	if current.IsValidAt(s.now()) {
		return current.AccessToken, nil
	}

	// The flight outlives any single caller; a cancelled caller stops waiting
	// without failing the others.
	flight := s.refreshGroup.DoChan(s.config.AccountKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), credentialRefreshTimeout)
		defer cancel()
		return s.refreshCredential(flightCtx)
	})
	var result singleflight.Result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result = <-flight:
	}
	if result.Err != nil {
		return "", result.Err
	}
	outcome := result.Val.(refreshOutcome)
	refreshed = outcome.refreshed
	return outcome.accessToken, nil
}

type refreshOutcome struct {
	accessToken string
	refreshed   bool
}

func (s *Service) refreshCredential(ctx context.Context) (refreshOutcome, error) {
	// Another flight may have completed between the caller's read and this one.
	current, err := s.loadCredential(ctx)
	if err != nil {
		return refreshOutcome{}, err
	}
	if current.IsValidAt(s.now()) {
		return refreshOutcome{accessToken: current.AccessToken}, nil
	}
	if s.marketplace == nil {
		return refreshOutcome{}, s.mapError(NewCredentialRefreshError(
			fmt.Errorf("core: marketplace client is required"),
			current.AccountID,
		))
	}
	if strings.TrimSpace(current.RefreshToken) == "" {
		return refreshOutcome{}, s.mapError(NewCredentialRefreshError(
			fmt.Errorf("core: stored credential has no refresh token"),
			current.AccountID,
		))
	}

	calledAt := s.now()
	grant, err := s.marketplace.RefreshCredential(ctx, current.RefreshToken)
	if err != nil {
		return refreshOutcome{}, s.mapError(NewCredentialRefreshError(err, current.AccountID))
	}
	if strings.TrimSpace(grant.AccessToken) == "" {
		return refreshOutcome{}, s.mapError(NewCredentialRefreshError(
			fmt.Errorf("core: refresh response carried no access token"),
			current.AccountID,
		))
	}

	next := CredentialFromGrant(grant, &current, calledAt)
	if _, err := s.credentialStore.Replace(ctx, next); err != nil {
		return refreshOutcome{}, s.mapError(NewPersistenceError(err, "replace_credential"))
	}
	s.logInfo(ctx, "credential refreshed", map[string]any{
		"account_key": s.config.AccountKey,
		"account_id":  next.AccountID,
		"expires_at":  next.ExpiresAt,
	})
	return refreshOutcome{accessToken: next.AccessToken, refreshed: true}, nil
}

func (s *Service) loadCredential(ctx context.Context) (Credential, error) {
	current, err := s.credentialStore.GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return Credential{}, s.mapError(NewNoCredentialError(err))
		}
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return Credential{}, s.mapError(err)
		}
		return Credential{}, s.mapError(NewPersistenceError(err, "get_credential"))
	}
	if strings.TrimSpace(current.AccessToken) == "" && strings.TrimSpace(current.RefreshToken) == "" {
		return Credential{}, s.mapError(NewNoCredentialError(ErrCredentialNotFound))
	}
	return current, nil
}

// CompleteAuthorization exchanges an authorization code and stores the result
// as the only current credential.
func (s *Service) CompleteAuthorization(ctx context.Context, code string) (stored Credential, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"account_key": s.Config().AccountKey}
	defer func() {
		if stored.AccountID != "" {
			fields["account_id"] = stored.AccountID
		}
		s.observeOperation(ctx, startedAt, "complete_authorization", err, fields)
	}()

	if s == nil || s.credentialStore == nil {
		return Credential{}, s.mapError(fmt.Errorf("core: credential store is required"))
	}
	if s.marketplace == nil {
		return Credential{}, s.mapError(fmt.Errorf("core: marketplace client is required"))
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Credential{}, s.mapError(
			goerrors.NewValidation("authorization code is required",
				goerrors.FieldError{Field: "code", Message: "required"},
			).WithTextCode(ServiceErrorBadInput).WithCode(serviceHTTPStatus(goerrors.CategoryValidation)),
		)
	}

	calledAt := s.now()
	grant, err := s.marketplace.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		return Credential{}, s.mapError(NewUpstreamFetchError(err, "exchange_authorization_code"))
	}
	if strings.TrimSpace(grant.AccountID) == "" {
		accountID, identityErr := s.marketplace.GetAccountIdentity(ctx, grant.AccessToken)
		if identityErr != nil {
			return Credential{}, s.mapError(NewUpstreamFetchError(identityErr, "get_account_identity"))
		}
		grant.AccountID = accountID
	}

	stored, err = s.credentialStore.Replace(ctx, CredentialFromGrant(grant, nil, calledAt))
	if err != nil {
		return Credential{}, s.mapError(NewPersistenceError(err, "replace_credential"))
	}
	return stored, nil
}

// CredentialFromGrant builds the next credential from a token response. Fields
// missing from the response are carried over from previous.
func CredentialFromGrant(grant TokenGrant, previous *Credential, calledAt time.Time) Credential {
	next := Credential{
		AccessToken:  strings.TrimSpace(grant.AccessToken),
		RefreshToken: strings.TrimSpace(grant.RefreshToken),
		AccountID:    strings.TrimSpace(grant.AccountID),
		ExpiresAt:    calledAt.UTC().Add(grant.ExpiresIn),
		Status:       CredentialStatusActive,
	}
	if previous != nil {
		next.RefreshToken = firstNonEmptyTrimmed(next.RefreshToken, previous.RefreshToken)
		next.AccountID = firstNonEmptyTrimmed(next.AccountID, previous.AccountID)
	}
	return next
}
