// ABOUTME: Credential types for the target spreadsheet and its service account
// ABOUTME: Parses service account JSON and normalizes escaped newlines in the private key
package creds

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultTokenURI is Google's OAuth2 token endpoint.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// ServiceAccountKey is the subset of a Google service account JSON key the
// token minter needs. PrivateKeyPEM is always normalized.
type ServiceAccountKey struct {
	ClientEmail   string `json:"client_email"`
	PrivateKeyPEM string `json:"private_key"`
	PrivateKeyID  string `json:"private_key_id"`
	TokenURI      string `json:"token_uri"`
}

// Credentials identifies the spreadsheet and how to reach it. Either APIKey
// (read-only) or ServiceAccountKey (read/write) may be absent.
type Credentials struct {
	APIKey            string             `json:"api_key,omitempty"`
	ServiceAccountKey *ServiceAccountKey `json:"service_account_key,omitempty"`
	SpreadsheetID     string             `json:"spreadsheet_id"`
	WorksheetNames    []string           `json:"worksheet_names,omitempty"`
	ColumnMappings    map[string]string  `json:"column_mappings,omitempty"`
}

// CanWrite reports whether a service account key is available.
func (c *Credentials) CanWrite() bool {
	return c != nil && c.ServiceAccountKey != nil && c.ServiceAccountKey.Valid()
}

// CanRead reports whether any read credential is available.
func (c *Credentials) CanRead() bool {
	return c != nil && (c.APIKey != "" || c.CanWrite())
}

// Valid reports whether the key has the fields needed to mint a token.
func (k *ServiceAccountKey) Valid() bool {
	return k != nil && k.ClientEmail != "" && k.PrivateKeyPEM != ""
}

// ParseError reports malformed service account JSON.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid service account key: %s: %v", e.Reason, e.Err)
	}
	return "invalid service account key: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NormalizePrivateKey decodes escaped "\n" sequences into real newlines.
// Applying it to an already normalized key returns the key unchanged.
func NormalizePrivateKey(pem string) string {
	s := strings.ReplaceAll(pem, `\r\n`, "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// ParseServiceAccountKey parses a service account JSON document, normalizing
// the private key once and defaulting the token URI.
func ParseServiceAccountKey(data []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, &ParseError{Reason: "not valid JSON", Err: err}
	}
	return finishKey(&key)
}

func finishKey(key *ServiceAccountKey) (*ServiceAccountKey, error) {
	key.ClientEmail = strings.TrimSpace(key.ClientEmail)
	key.PrivateKeyID = strings.TrimSpace(key.PrivateKeyID)
	key.TokenURI = strings.TrimSpace(key.TokenURI)
	key.PrivateKeyPEM = NormalizePrivateKey(key.PrivateKeyPEM)

	if key.ClientEmail == "" {
		return nil, &ParseError{Reason: "client_email is missing"}
	}
	if !strings.Contains(key.PrivateKeyPEM, "PRIVATE KEY") {
		return nil, &ParseError{Reason: "private_key is missing or not PEM"}
	}
	if key.TokenURI == "" {
		key.TokenURI = DefaultTokenURI
	}
	return key, nil
}
