// ABOUTME: Sheets v4 values client: read rows, append a row, batch-update single cells
// ABOUTME: Reads fall back to the API key; writes always require a minted bearer token
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/harperreed/leadsheet/auth"
	"github.com/harperreed/leadsheet/creds"
	"github.com/harperreed/leadsheet/rowmap"
)

// ValueInputOption is sent with every write.
const ValueInputOption = "USER_ENTERED"

// Cell is one single-cell write. Row is 1-based, Column is 0-based.
type Cell struct {
	Row    int
	Column int
	Value  string
}

// KeySource yields the service account key used for writes.
type KeySource interface {
	ServiceAccountKey() (*creds.ServiceAccountKey, bool)
}

// Options configures a Client.
type Options struct {
	Endpoint      string
	SpreadsheetID string
	APIKey        string
	Keys          KeySource
	Minter        *auth.Minter
	// Base is the transport under the bearer token; nil uses http.DefaultTransport.
	Base    http.RoundTripper
	Aliases map[string]string
	Logger  *log.Logger
}

// Client talks to one spreadsheet.
type Client struct {
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// New creates a client.
func New(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = "https://sheets.googleapis.com"
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	if opts.Minter == nil {
		opts.Minter = auth.NewMinter(nil)
	}
	if opts.Aliases == nil {
		opts.Aliases = rowmap.DefaultLayouts().Aliases()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("transport")
	}
	return &Client{opts: opts, logger: logger, sources: make(map[string]oauth2.TokenSource)}
}

// SpreadsheetID returns the target spreadsheet.
func (c *Client) SpreadsheetID() string {
	return c.opts.SpreadsheetID
}

// ResolveSheetName maps known aliases (case-insensitive, trimmed) to their
// worksheet names; anything else passes through unchanged.
func (c *Client) ResolveSheetName(name string) string {
	return resolve(c.opts.Aliases, name)
}

// ResolveSheetName resolves aliases against the default worksheet names.
func ResolveSheetName(name string) string {
	return resolve(rowmap.DefaultLayouts().Aliases(), name)
}

func resolve(aliases map[string]string, name string) string {
	if target, ok := aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return target
	}
	return name
}

// ReadRows returns every row of a worksheet, header included. Cells are
// rendered as strings. When a token cannot be minted the read is retried
// with the API key, if one is configured.
func (c *Client) ReadRows(ctx context.Context, sheet string) ([][]string, error) {
	sheet = c.ResolveSheetName(sheet)
	svc, err := c.service(ctx, "read", false)
	if err != nil {
		return nil, err
	}

	rows, err := c.read(ctx, svc, sheet)
	var authErr *auth.AuthError
	if err == nil || c.opts.APIKey == "" || !errors.As(err, &authErr) {
		return rows, err
	}

	c.logger.Warn("token unavailable, reading with the API key", "sheet", sheet, "err", authErr)
	keySvc, kerr := c.apiKeyService(ctx)
	if kerr != nil {
		return nil, err
	}
	return c.read(ctx, keySvc, sheet)
}

func (c *Client) read(ctx context.Context, svc *sheets.Service, sheet string) ([][]string, error) {
	resp, err := svc.Spreadsheets.Values.Get(c.opts.SpreadsheetID, sheet).Context(ctx).Do()
	if err != nil {
		return nil, c.wrap("read "+sheet, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, v := range raw {
			row[j] = cellString(v)
		}
		rows[i] = row
	}
	return rows, nil
}

// AppendRow appends one row after the last row of a worksheet.
func (c *Client) AppendRow(ctx context.Context, sheet string, row []string) error {
	sheet = c.ResolveSheetName(sheet)
	svc, err := c.service(ctx, "append", true)
	if err != nil {
		return err
	}

	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	_, err = svc.Spreadsheets.Values.Append(c.opts.SpreadsheetID, sheet, &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption(ValueInputOption).Context(ctx).Do()
	if err != nil {
		return c.wrap("append "+sheet, err)
	}
	return nil
}

// BatchUpdateCells writes each cell as its own single-cell range in one
// request. Cells need not be adjacent.
func (c *Client) BatchUpdateCells(ctx context.Context, sheet string, cells []Cell) error {
	if len(cells) == 0 {
		return nil
	}
	sheet = c.ResolveSheetName(sheet)
	data := make([]*sheets.ValueRange, 0, len(cells))
	for _, cell := range cells {
		if cell.Row < 1 || cell.Column < 0 {
			return fmt.Errorf("invalid cell row %d column %d", cell.Row, cell.Column)
		}
		data = append(data, &sheets.ValueRange{
			Range:  rowmap.A1(sheet, cell.Row, cell.Column),
			Values: [][]interface{}{{cell.Value}},
		})
	}

	svc, err := c.service(ctx, "batch update", true)
	if err != nil {
		return err
	}
	_, err = svc.Spreadsheets.Values.BatchUpdate(c.opts.SpreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: ValueInputOption,
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return c.wrap("batch update "+sheet, err)
	}
	return nil
}

// service builds a Sheets service authorized for op. Writes need the
// service account; reads use it when available and the API key otherwise.
func (c *Client) service(ctx context.Context, op string, write bool) (*sheets.Service, error) {
	if c.opts.SpreadsheetID == "" {
		return nil, &CredentialsMissingError{Op: op, Reason: "no spreadsheet id configured"}
	}

	endpoint := option.WithEndpoint(c.opts.Endpoint + "/")

	if ts, ok := c.tokenSource(ctx); ok {
		base := c.opts.Base
		if base == nil {
			base = http.DefaultTransport
		}
		hc := &http.Client{Transport: &oauth2.Transport{Source: ts, Base: base}}
		svc, err := sheets.NewService(ctx, endpoint, option.WithHTTPClient(hc))
		if err != nil {
			return nil, fmt.Errorf("failed to create sheets service: %w", err)
		}
		return svc, nil
	}

	if write {
		return nil, &CredentialsMissingError{Op: op, Reason: "no service account key available"}
	}
	if c.opts.APIKey == "" {
		return nil, &CredentialsMissingError{Op: op, Reason: "no API key or service account key available"}
	}

	return c.apiKeyService(ctx)
}

// apiKeyService builds a read-only service authorized by the API key.
func (c *Client) apiKeyService(ctx context.Context) (*sheets.Service, error) {
	endpoint := option.WithEndpoint(c.opts.Endpoint + "/")
	opts := []option.ClientOption{endpoint, option.WithAPIKey(c.opts.APIKey)}
	if c.opts.Base != nil {
		opts = []option.ClientOption{endpoint, option.WithHTTPClient(&http.Client{
			Transport: &apiKeyTransport{key: c.opts.APIKey, base: c.opts.Base},
		})}
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return svc, nil
}

// tokenSource returns a cached token source for the current key.
func (c *Client) tokenSource(ctx context.Context) (oauth2.TokenSource, bool) {
	if c.opts.Keys == nil {
		return nil, false
	}
	key, ok := c.opts.Keys.ServiceAccountKey()
	if !ok || !key.Valid() {
		return nil, false
	}

	id := key.ClientEmail + "|" + key.PrivateKeyID + "|" + key.TokenURI
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.sources[id]
	if !ok {
		ts = c.opts.Minter.TokenSource(context.WithoutCancel(ctx), key)
		c.sources[id] = ts
	}
	return ts, true
}

func (c *Client) wrap(op string, err error) error {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return fmt.Errorf("%s: %w", op, authErr)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		c.logger.Debug("sheets request failed", "op", op, "status", gerr.Code)
		return &TransportError{Op: op, StatusCode: gerr.Code, Body: body, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}

// cellString renders a decoded JSON cell; missing values become "".
func cellString(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case bool:
		if c {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		if c == float64(int64(c)) {
			return fmt.Sprintf("%d", int64(c))
		}
		return fmt.Sprintf("%g", c)
	default:
		return fmt.Sprint(c)
	}
}

// apiKeyTransport adds ?key= to requests when a custom base transport is in
// use, since option.WithHTTPClient disables option.WithAPIKey.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	q := r.URL.Query()
	q.Set("key", t.key)
	r.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(r)
}
