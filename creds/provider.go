// ABOUTME: Resolves credentials from bundled secrets or the encrypted device store
// ABOUTME: Never fails; an unconfigured install is reported as absent credentials
package creds

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/harperreed/leadsheet/store"
)

// Secure store keys.
const (
	StoreKeyCredentials       = "credentials"
	StoreKeyServiceAccountKey = "service_account_key"
)

// BundledSecrets is a dotenv document injected at build time, e.g.
//
//	go build -ldflags "-X 'github.com/harperreed/leadsheet/creds.BundledSecrets=...'"
var BundledSecrets string

// secrets is the flat form of credentials found in dotenv files and the
// environment.
type secrets struct {
	SpreadsheetID      string `envconfig:"SPREADSHEET_ID"`
	APIKey             string `envconfig:"API_KEY"`
	ServiceAccountJSON string `envconfig:"SERVICE_ACCOUNT_JSON"`
	ClientEmail        string `envconfig:"SERVICE_ACCOUNT_EMAIL"`
	PrivateKey         string `envconfig:"SERVICE_ACCOUNT_PRIVATE_KEY"`
	PrivateKeyID       string `envconfig:"SERVICE_ACCOUNT_PRIVATE_KEY_ID"`
	TokenURI           string `envconfig:"SERVICE_ACCOUNT_TOKEN_URI"`
	Worksheets         string `envconfig:"WORKSHEETS"`
}

// ProviderOptions configures a Provider.
type ProviderOptions struct {
	// Bundled is a dotenv document; defaults to BundledSecrets.
	Bundled string
	// DotenvFile is read when Bundled is empty.
	DotenvFile string
	// Secure is the encrypted device store.
	Secure store.KV
	// UseEnv applies LEADSHEET_ environment overrides to the bundled tier.
	UseEnv bool
	Logger *log.Logger
}

// Provider resolves credentials. It performs no network calls.
type Provider struct {
	opts   ProviderOptions
	logger *log.Logger
}

// NewProvider creates a provider.
func NewProvider(opts ProviderOptions) *Provider {
	if opts.Bundled == "" {
		opts.Bundled = BundledSecrets
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("creds")
	}
	return &Provider{opts: opts, logger: logger}
}

// Credentials returns bundled secrets when they are fully populated, else
// credentials persisted in the secure store. ok is false when neither tier
// yields anything.
func (p *Provider) Credentials() (*Credentials, bool) {
	if c, ok := p.bundled(); ok {
		return c, true
	}
	if c, ok := p.persisted(); ok {
		return c, true
	}
	return nil, false
}

// ServiceAccountKey returns the write key: from Credentials when present,
// else from the secondary store entry.
func (p *Provider) ServiceAccountKey() (*ServiceAccountKey, bool) {
	if c, ok := p.Credentials(); ok && c.CanWrite() {
		return c.ServiceAccountKey, true
	}
	if p.opts.Secure == nil {
		return nil, false
	}
	raw, ok, err := p.opts.Secure.Get(StoreKeyServiceAccountKey)
	if err != nil {
		p.logger.Warn("failed to read stored service account key", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	key, err := ParseServiceAccountKey([]byte(raw))
	if err != nil {
		p.logger.Warn("stored service account key is invalid", "err", err)
		return nil, false
	}
	return key, true
}

// Save persists c encrypted in the secure store.
func (p *Provider) Save(c *Credentials) error {
	if p.opts.Secure == nil {
		return fmt.Errorf("no secure store configured")
	}
	if c == nil || strings.TrimSpace(c.SpreadsheetID) == "" {
		return fmt.Errorf("spreadsheet id is required")
	}
	if c.ServiceAccountKey != nil {
		key := *c.ServiceAccountKey
		normalized, err := finishKey(&key)
		if err != nil {
			return err
		}
		c.ServiceAccountKey = normalized
	}
	if err := store.SetJSON(p.opts.Secure, StoreKeyCredentials, c); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	if c.ServiceAccountKey != nil {
		data, err := json.Marshal(c.ServiceAccountKey)
		if err != nil {
			return err
		}
		if err := p.opts.Secure.Set(StoreKeyServiceAccountKey, string(data)); err != nil {
			return fmt.Errorf("failed to persist service account key: %w", err)
		}
	}
	return nil
}

// Clear removes persisted credentials.
func (p *Provider) Clear() error {
	if p.opts.Secure == nil {
		return nil
	}
	if err := p.opts.Secure.Remove(StoreKeyCredentials); err != nil {
		return err
	}
	return p.opts.Secure.Remove(StoreKeyServiceAccountKey)
}

func (p *Provider) bundled() (*Credentials, bool) {
	var env map[string]string
	switch {
	case p.opts.Bundled != "":
		parsed, err := godotenv.Unmarshal(p.opts.Bundled)
		if err != nil {
			p.logger.Warn("bundled secrets are not valid dotenv", "err", err)
			return nil, false
		}
		env = parsed
	case p.opts.DotenvFile != "":
		parsed, err := godotenv.Read(p.opts.DotenvFile)
		if err != nil {
			if !os.IsNotExist(err) {
				p.logger.Warn("failed to read dotenv file", "path", p.opts.DotenvFile, "err", err)
			}
			env = map[string]string{}
		} else {
			env = parsed
		}
	default:
		env = map[string]string{}
	}

	s := secretsFrom(env)
	if p.opts.UseEnv {
		if err := envconfig.Process("LEADSHEET", &s); err != nil {
			p.logger.Warn("failed to apply environment credentials", "err", err)
		}
	}
	return s.credentials()
}

func (p *Provider) persisted() (*Credentials, bool) {
	if p.opts.Secure == nil {
		return nil, false
	}
	var c Credentials
	ok, err := store.GetJSON(p.opts.Secure, StoreKeyCredentials, &c)
	if err != nil {
		p.logger.Warn("failed to read persisted credentials", "err", err)
		return nil, false
	}
	if !ok || c.SpreadsheetID == "" {
		return nil, false
	}
	return &c, true
}

func secretsFrom(env map[string]string) secrets {
	get := func(name string) string { return env["LEADSHEET_"+name] }
	return secrets{
		SpreadsheetID:      get("SPREADSHEET_ID"),
		APIKey:             get("API_KEY"),
		ServiceAccountJSON: get("SERVICE_ACCOUNT_JSON"),
		ClientEmail:        get("SERVICE_ACCOUNT_EMAIL"),
		PrivateKey:         get("SERVICE_ACCOUNT_PRIVATE_KEY"),
		PrivateKeyID:       get("SERVICE_ACCOUNT_PRIVATE_KEY_ID"),
		TokenURI:           get("SERVICE_ACCOUNT_TOKEN_URI"),
		Worksheets:         get("WORKSHEETS"),
	}
}

// credentials converts flat secrets. Any placeholder value, a missing
// spreadsheet id or the absence of both an API key and a complete service
// account disqualifies the whole tier. Key material is validated by parsing
// rather than scanned for markers.
func (s secrets) credentials() (*Credentials, bool) {
	for _, v := range []string{s.SpreadsheetID, s.APIKey, s.ClientEmail, s.PrivateKeyID, s.TokenURI, s.Worksheets} {
		if v != "" && IsPlaceholder(v) {
			return nil, false
		}
	}
	if strings.TrimSpace(s.SpreadsheetID) == "" {
		return nil, false
	}

	c := &Credentials{
		APIKey:        strings.TrimSpace(s.APIKey),
		SpreadsheetID: strings.TrimSpace(s.SpreadsheetID),
	}
	for _, name := range strings.Split(s.Worksheets, ",") {
		if name = strings.TrimSpace(name); name != "" {
			c.WorksheetNames = append(c.WorksheetNames, name)
		}
	}

	switch {
	case s.ServiceAccountJSON != "":
		key, err := ParseServiceAccountKey([]byte(s.ServiceAccountJSON))
		if err != nil || IsPlaceholder(key.ClientEmail) {
			return nil, false
		}
		c.ServiceAccountKey = key
	case s.ClientEmail != "" || s.PrivateKey != "":
		key, err := finishKey(&ServiceAccountKey{
			ClientEmail:   s.ClientEmail,
			PrivateKeyPEM: s.PrivateKey,
			PrivateKeyID:  s.PrivateKeyID,
			TokenURI:      s.TokenURI,
		})
		if err != nil {
			return nil, false
		}
		c.ServiceAccountKey = key
	}

	if !c.CanRead() {
		return nil, false
	}
	return c, true
}

var placeholderMarkers = []string{"YOUR_", "YOUR-", "<", "REPLACE_ME", "CHANGE_ME", "CHANGEME", "PLACEHOLDER"}

// IsPlaceholder reports whether v is template text rather than a real secret.
func IsPlaceholder(v string) bool {
	t := strings.TrimSpace(v)
	if t == "" {
		return true
	}
	upper := strings.ToUpper(t)
	if strings.Trim(upper, "X.") == "" {
		return true
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}
