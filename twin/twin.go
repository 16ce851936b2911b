// ABOUTME: In-memory stand-in for the Sheets v4 values API and Google's token endpoint
// ABOUTME: Used by tests and the serve-twin command; supports protection and an offline switch
package twin

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// ProtectedMessage is the error Google returns when writing to a protected range.
const ProtectedMessage = "You are trying to edit a protected cell or object. Please contact the spreadsheet owner to remove protection if you need to edit."

// Options configures a Twin.
type Options struct {
	SpreadsheetID string
	// APIKey grants read-only access through ?key=.
	APIKey string
	// PublicKey, when set, verifies assertion signatures at the token endpoint.
	PublicKey *rsa.PublicKey
	Logger    *log.Logger
}

// Twin holds worksheets and issued tokens.
type Twin struct {
	opts   Options
	logger *log.Logger

	mu        sync.RWMutex
	sheets    map[string][][]string
	protected map[string]bool
	tokens    map[string]bool
	offline   bool
	calls     map[string]int
}

// New creates an empty twin.
func New(opts Options) *Twin {
	if opts.SpreadsheetID == "" {
		opts.SpreadsheetID = "twin-spreadsheet"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("twin")
	}
	return &Twin{
		opts:      opts,
		logger:    logger,
		sheets:    make(map[string][][]string),
		protected: make(map[string]bool),
		tokens:    make(map[string]bool),
		calls:     make(map[string]int),
	}
}

// SpreadsheetID returns the id the twin answers to.
func (t *Twin) SpreadsheetID() string {
	return t.opts.SpreadsheetID
}

// Router returns the HTTP handler.
func (t *Twin) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(t.offlineSwitch)

	r.Post("/token", t.handleToken)
	r.Route("/v4/spreadsheets/{id}", func(r chi.Router) {
		r.Use(t.spreadsheetCheck)
		r.Post("/values:batchUpdate", t.handleBatchUpdate)
		r.Get("/values/{range}", t.handleGet)
		r.Post("/values/{range}", t.handleAppend)
	})
	return r
}

// AddSheet creates an empty worksheet (or keeps an existing one).
func (t *Twin) AddSheet(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sheets[name]; !ok {
		t.sheets[name] = nil
	}
}

// Seed replaces the rows of a worksheet, creating it if needed.
func (t *Twin) Seed(name string, rows [][]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sheets[name] = copyRows(rows)
}

// Rows returns a copy of a worksheet's rows.
func (t *Twin) Rows(name string) [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyRows(t.sheets[name])
}

// Protect marks a worksheet as protected against writes.
func (t *Twin) Protect(name string, protected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.protected[name] = protected
}

// SetOffline makes every endpoint answer 503 while true.
func (t *Twin) SetOffline(offline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offline = offline
}

// IssueToken registers and returns a bearer token.
func (t *Twin) IssueToken() string {
	tok := "twin-" + uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[tok] = true
	return tok
}

// Calls returns how many times an endpoint ("get", "append", "batchUpdate",
// "token") has been served.
func (t *Twin) Calls(endpoint string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.calls[endpoint]
}

func (t *Twin) count(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[endpoint]++
}

func (t *Twin) offlineSwitch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.mu.RLock()
		offline := t.offline
		t.mu.RUnlock()
		if offline {
			googleError(w, http.StatusServiceUnavailable, "The service is currently unavailable.", "UNAVAILABLE")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Twin) spreadsheetCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != t.opts.SpreadsheetID {
			googleError(w, http.StatusNotFound, "Requested entity was not found.", "NOT_FOUND")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearer reports whether the request carries an issued bearer token.
func (t *Twin) bearer(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	tok := strings.TrimPrefix(auth, "Bearer ")
	if tok == auth || tok == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tokens[tok]
}

func (t *Twin) canRead(r *http.Request) bool {
	if t.bearer(r) {
		return true
	}
	key := r.URL.Query().Get("key")
	return t.opts.APIKey != "" && key == t.opts.APIKey
}

// splitRange separates "Sheet!A1" into the worksheet name and the cell part.
// Quoted sheet names ('My Sheet'!A1) are unquoted.
func splitRange(raw string) (sheet, cells string) {
	sheet = raw
	if i := strings.LastIndex(raw, "!"); i >= 0 {
		sheet, cells = raw[:i], raw[i+1:]
	}
	if len(sheet) >= 2 && strings.HasPrefix(sheet, "'") && strings.HasSuffix(sheet, "'") {
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	return sheet, cells
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// trimRows drops trailing empty cells and rows the way the real API does.
func trimRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		end := len(r)
		for end > 0 && r[end-1] == "" {
			end--
		}
		out = append(out, append([]string(nil), r[:end]...))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

func cellText(v interface{}) string {
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
	default:
		return fmt.Sprint(c)
	}
}
