// ABOUTME: Tests for the service account token minter
// ABOUTME: Mocks the token endpoint with httpmock and verifies the signed assertion claims
package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadsheet/creds"
)

const testTokenURI = "https://oauth2.example.test/token"

func testKey(t *testing.T) (*creds.ServiceAccountKey, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	return &creds.ServiceAccountKey{
		ClientEmail:   "bot@project.iam.gserviceaccount.com",
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		PrivateKeyID:  "kid-42",
		TokenURI:      testTokenURI,
	}, priv
}

func mockedMinter(t *testing.T, now time.Time) *Minter {
	t.Helper()
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewMinter(client).WithClock(func() time.Time { return now })
}

func TestAssertionClaims(t *testing.T) {
	key, priv := testKey(t)
	now := time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)

	signed, err := NewMinter(nil).Assertion(key, now)
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (interface{}, error) {
		return &priv.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation())
	require.NoError(t, err)

	assert.Equal(t, "RS256", parsed.Header["alg"])
	assert.Equal(t, "JWT", parsed.Header["typ"])
	assert.Equal(t, "kid-42", parsed.Header["kid"])

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, key.ClientEmail, claims["iss"])
	assert.Equal(t, SheetsScope, claims["scope"])
	assert.Equal(t, testTokenURI, claims["aud"])
	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	assert.Equal(t, now.Unix(), iat)
	assert.Equal(t, iat+3600, exp)
}

func TestAssertionRejectsBadKey(t *testing.T) {
	_, err := NewMinter(nil).Assertion(&creds.ServiceAccountKey{ClientEmail: "x", PrivateKeyPEM: "not a key"}, time.Now())
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "parse key", ae.Op)

	_, err = NewMinter(nil).Assertion(nil, time.Now())
	assert.True(t, errors.As(err, &ae))
}

func TestMintExchangesAssertion(t *testing.T) {
	key, priv := testKey(t)
	now := time.Now().Truncate(time.Second)
	m := mockedMinter(t, now)

	httpmock.RegisterResponder("POST", testTokenURI, func(req *http.Request) (*http.Response, error) {
		if err := req.ParseForm(); err != nil {
			return httpmock.NewStringResponse(500, err.Error()), nil
		}
		if req.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			return httpmock.NewStringResponse(415, "bad content type"), nil
		}
		if req.PostForm.Get("grant_type") != GrantType {
			return httpmock.NewStringResponse(400, `{"error":"unsupported_grant_type"}`), nil
		}
		_, err := jwt.Parse(req.PostForm.Get("assertion"), func(tok *jwt.Token) (interface{}, error) {
			return &priv.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
		if err != nil {
			return httpmock.NewStringResponse(400, `{"error":"invalid_grant"}`), nil
		}
		return httpmock.NewStringResponse(200, `{"access_token":"ya29.token","token_type":"Bearer","expires_in":3599}`), nil
	})

	tok, err := m.Mint(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "ya29.token", tok.Value)
	assert.Equal(t, now.Unix()+3599, tok.ExpiresAtEpochSeconds)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestMintCapsExpiryAtOneHour(t *testing.T) {
	key, _ := testKey(t)
	now := time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)
	m := mockedMinter(t, now)

	httpmock.RegisterResponder("POST", testTokenURI,
		httpmock.NewStringResponder(200, `{"access_token":"t","expires_in":7200}`))

	tok, err := m.Mint(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, now.Unix()+3600, tok.ExpiresAtEpochSeconds)
	assert.True(t, now.Add(time.Hour).Equal(tok.Expiry()))
}

func TestMintSurfacesErrorBodyVerbatim(t *testing.T) {
	key, _ := testKey(t)
	m := mockedMinter(t, time.Now())

	body := `{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`
	httpmock.RegisterResponder("POST", testTokenURI, httpmock.NewStringResponder(400, body))

	_, err := m.Mint(context.Background(), key)
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "exchange", ae.Op)
	assert.Equal(t, 400, ae.StatusCode)
	assert.Equal(t, body, ae.Body)
	assert.Contains(t, err.Error(), "Invalid JWT Signature.")
}

func TestMintRejectsEmptyToken(t *testing.T) {
	key, _ := testKey(t)
	m := mockedMinter(t, time.Now())
	httpmock.RegisterResponder("POST", testTokenURI, httpmock.NewStringResponder(200, `{"token_type":"Bearer"}`))

	_, err := m.Mint(context.Background(), key)
	var ae *AuthError
	assert.True(t, errors.As(err, &ae))
}

func TestMintTransportFailure(t *testing.T) {
	key, _ := testKey(t)
	m := mockedMinter(t, time.Now())
	httpmock.RegisterResponder("POST", testTokenURI, httpmock.NewErrorResponder(errors.New("network down")))

	_, err := m.Mint(context.Background(), key)
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Zero(t, ae.StatusCode)
}

func TestTokenSourceReusesToken(t *testing.T) {
	key, _ := testKey(t)
	m := mockedMinter(t, time.Now())
	httpmock.RegisterResponder("POST", testTokenURI,
		httpmock.NewStringResponder(200, `{"access_token":"reuse-me","expires_in":3600}`))

	ts := m.TokenSource(context.Background(), key)
	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "reuse-me", tok.AccessToken)
		assert.Equal(t, "Bearer", tok.TokenType)
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
