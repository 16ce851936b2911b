// ABOUTME: Mints short-lived Sheets bearer tokens from a service account key
// ABOUTME: Signs an RS256 JWT assertion and exchanges it through the jwt-bearer grant
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/harperreed/leadsheet/creds"
)

// SheetsScope is the OAuth scope requested for every token.
const SheetsScope = "https://www.googleapis.com/auth/spreadsheets"

// GrantType is the OAuth2 JWT-bearer grant.
const GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// TokenLifetime is the validity of an assertion and of the token it buys.
const TokenLifetime = time.Hour

// AccessToken is a minted bearer token.
type AccessToken struct {
	Value                 string
	ExpiresAtEpochSeconds int64
}

// Expiry returns the expiry as a time.
func (t AccessToken) Expiry() time.Time {
	return time.Unix(t.ExpiresAtEpochSeconds, 0)
}

// AuthError reports a failure to sign or exchange an assertion. Body holds
// the token endpoint response verbatim.
type AuthError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("auth %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("auth %s failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("auth %s failed", e.Op)
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Minter exchanges service account keys for access tokens. It does not
// retry.
type Minter struct {
	client *http.Client
	now    func() time.Time
}

// NewMinter creates a minter. A nil client uses http.DefaultClient.
func NewMinter(client *http.Client) *Minter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Minter{client: client, now: time.Now}
}

// WithClock overrides the clock used for iat/exp.
func (m *Minter) WithClock(now func() time.Time) *Minter {
	m.now = now
	return m
}

// Assertion builds and signs the JWT assertion for key at now.
func (m *Minter) Assertion(key *creds.ServiceAccountKey, now time.Time) (string, error) {
	if key == nil {
		return "", &AuthError{Op: "sign", Err: fmt.Errorf("no service account key")}
	}
	rsaKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(creds.NormalizePrivateKey(key.PrivateKeyPEM)))
	if err != nil {
		return "", &AuthError{Op: "parse key", Err: err}
	}

	iat := now.Unix()
	claims := jwt.MapClaims{
		"iss":   key.ClientEmail,
		"scope": SheetsScope,
		"aud":   tokenURI(key),
		"iat":   iat,
		"exp":   iat + int64(TokenLifetime/time.Second),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if key.PrivateKeyID != "" {
		token.Header["kid"] = key.PrivateKeyID
	}

	signed, err := token.SignedString(rsaKey)
	if err != nil {
		return "", &AuthError{Op: "sign", Err: err}
	}
	return signed, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Mint signs an assertion and exchanges it for a bearer token valid for one
// hour from now.
func (m *Minter) Mint(ctx context.Context, key *creds.ServiceAccountKey) (*AccessToken, error) {
	now := m.now()
	assertion, err := m.Assertion(key, now)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", GrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI(key), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Op: "exchange", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &AuthError{Op: "exchange", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AuthError{Op: "exchange", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &AuthError{Op: "exchange", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &AuthError{Op: "exchange", Body: string(body), Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, &AuthError{Op: "exchange", Body: string(body), Err: fmt.Errorf("token response has no access_token")}
	}

	expires := now.Add(TokenLifetime).Unix()
	if tr.ExpiresIn > 0 && now.Unix()+tr.ExpiresIn < expires {
		expires = now.Unix() + tr.ExpiresIn
	}
	return &AccessToken{Value: tr.AccessToken, ExpiresAtEpochSeconds: expires}, nil
}

// TokenSource returns an oauth2.TokenSource that reuses a minted token until
// shortly before it expires.
func (m *Minter) TokenSource(ctx context.Context, key *creds.ServiceAccountKey) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &mintSource{ctx: ctx, minter: m, key: key})
}

type mintSource struct {
	ctx    context.Context
	minter *Minter
	key    *creds.ServiceAccountKey
}

func (s *mintSource) Token() (*oauth2.Token, error) {
	tok, err := s.minter.Mint(s.ctx, s.key)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: tok.Value, TokenType: "Bearer", Expiry: tok.Expiry()}, nil
}

func tokenURI(key *creds.ServiceAccountKey) string {
	if key.TokenURI != "" {
		return key.TokenURI
	}
	return creds.DefaultTokenURI
}
