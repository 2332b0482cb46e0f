package mercadolivre

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/transport"
)

const maxTokenResponseBodyBytes int64 = 1 << 20

type tokenPayload struct {
	AccessToken      string      `json:"access_token"`
	TokenType        string      `json:"token_type"`
	RefreshToken     string      `json:"refresh_token"`
	Scope            string      `json:"scope"`
	ExpiresIn        int64       `json:"expires_in"`
	UserID           json.Number `json:"user_id"`
	ErrorCode        string      `json:"error"`
	ErrorDescription string      `json:"message"`
}

func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code string) (core.TokenGrant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenGrant{}, fmt.Errorf("mercadolivre: authorization code is required")
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if c != nil && c.cfg.RedirectURI != "" {
		form.Set("redirect_uri", c.cfg.RedirectURI)
	}
	return c.fetchToken(ctx, "exchange_authorization_code", form)
}

func (c *Client) RefreshCredential(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, fmt.Errorf("mercadolivre: refresh token is required")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.fetchToken(ctx, "refresh_credential", form)
}

func (c *Client) fetchToken(ctx context.Context, operation string, form url.Values) (core.TokenGrant, error) {
	if c == nil || c.transport == nil {
		return core.TokenGrant{}, fmt.Errorf("mercadolivre: client is not configured")
	}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req := transport.FormRequest(c.cfg.TokenURL, form)
	req.Timeout = c.cfg.RequestTimeout
	req.MaxResponseBodyBytes = maxTokenResponseBodyBytes
	res, err := c.transport.Do(ctx, req)
	if err != nil {
		return core.TokenGrant{}, err
	}

	var payload tokenPayload
	decodeErr := json.Unmarshal(res.Body, &payload)
	if statusErr := transport.StatusError(res, operation); statusErr != nil {
		if decodeErr == nil && describeTokenError(payload) != "" {
			return core.TokenGrant{}, fmt.Errorf("mercadolivre: token endpoint error: %s: %w", describeTokenError(payload), statusErr)
		}
		return core.TokenGrant{}, statusErr
	}
	if decodeErr != nil {
		return core.TokenGrant{}, fmt.Errorf("mercadolivre: decode token response: %w", decodeErr)
	}
	if payload.ErrorCode != "" {
		return core.TokenGrant{}, fmt.Errorf("mercadolivre: token endpoint error: %s", describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.TokenGrant{}, fmt.Errorf("mercadolivre: token response missing access token")
	}
	return core.TokenGrant{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		ExpiresIn:    time.Duration(payload.ExpiresIn) * time.Second,
		AccountID:    payload.UserID.String(),
	}, nil
}

func describeTokenError(payload tokenPayload) string {
	if msg := strings.TrimSpace(payload.ErrorDescription); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.ErrorCode)
}
