// ABOUTME: HTTP handlers for the twin's values and token endpoints
// ABOUTME: Mirrors Google's request shapes, status codes and error bodies
package twin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/harperreed/leadsheet/rowmap"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

type valueRange struct {
	Range          string          `json:"range,omitempty"`
	MajorDimension string          `json:"majorDimension,omitempty"`
	Values         [][]interface{} `json:"values,omitempty"`
}

type batchUpdateRequest struct {
	ValueInputOption string       `json:"valueInputOption"`
	Data             []valueRange `json:"data"`
}

func googleError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
			"status":  code,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func rangeParam(r *http.Request) string {
	raw := chi.URLParam(r, "range")
	if un, err := url.PathUnescape(raw); err == nil {
		return un
	}
	return raw
}

// handleGet serves GET /v4/spreadsheets/{id}/values/{range}.
func (t *Twin) handleGet(w http.ResponseWriter, r *http.Request) {
	t.count("get")
	if !t.canRead(r) {
		googleError(w, http.StatusForbidden, "The caller does not have permission", "PERMISSION_DENIED")
		return
	}

	rng := rangeParam(r)
	sheet, _ := splitRange(rng)

	t.mu.RLock()
	rows, ok := t.sheets[sheet]
	trimmed := trimRows(rows)
	t.mu.RUnlock()
	if !ok {
		googleError(w, http.StatusBadRequest, "Unable to parse range: "+rng, "INVALID_ARGUMENT")
		return
	}

	resp := valueRange{Range: rng, MajorDimension: "ROWS"}
	for _, row := range trimmed {
		cells := make([]interface{}, len(row))
		for i, c := range row {
			cells[i] = c
		}
		resp.Values = append(resp.Values, cells)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAppend serves POST /v4/spreadsheets/{id}/values/{range}:append.
func (t *Twin) handleAppend(w http.ResponseWriter, r *http.Request) {
	rng := rangeParam(r)
	if !strings.HasSuffix(rng, ":append") {
		googleError(w, http.StatusNotFound, "Method not found.", "NOT_FOUND")
		return
	}
	t.count("append")
	rng = strings.TrimSuffix(rng, ":append")

	if !t.bearer(r) {
		googleError(w, http.StatusUnauthorized, "Request is missing required authentication credential.", "UNAUTHENTICATED")
		return
	}

	var body valueRange
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		googleError(w, http.StatusBadRequest, "Invalid JSON payload received. "+err.Error(), "INVALID_ARGUMENT")
		return
	}

	sheet, _ := splitRange(rng)

	t.mu.Lock()
	rows, ok := t.sheets[sheet]
	if !ok {
		t.mu.Unlock()
		googleError(w, http.StatusBadRequest, "Unable to parse range: "+rng, "INVALID_ARGUMENT")
		return
	}
	if t.protected[sheet] {
		t.mu.Unlock()
		googleError(w, http.StatusBadRequest, ProtectedMessage, "INVALID_ARGUMENT")
		return
	}
	first := len(trimRows(rows)) + 1
	rows = trimRows(rows)
	for _, v := range body.Values {
		row := make([]string, len(v))
		for i, c := range v {
			row[i] = cellText(c)
		}
		rows = append(rows, row)
	}
	t.sheets[sheet] = rows
	t.mu.Unlock()

	t.logger.Debug("appended rows", "sheet", sheet, "rows", len(body.Values))
	updated := fmt.Sprintf("%s!A%d", sheet, first)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"spreadsheetId": t.opts.SpreadsheetID,
		"tableRange":    sheet,
		"updates": map[string]interface{}{
			"spreadsheetId": t.opts.SpreadsheetID,
			"updatedRange":  updated,
			"updatedRows":   len(body.Values),
		},
	})
}

// handleBatchUpdate serves POST /v4/spreadsheets/{id}/values:batchUpdate.
// Each data entry addresses a single cell; the batch is applied atomically.
func (t *Twin) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	t.count("batchUpdate")
	if !t.bearer(r) {
		googleError(w, http.StatusUnauthorized, "Request is missing required authentication credential.", "UNAUTHENTICATED")
		return
	}

	var req batchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		googleError(w, http.StatusBadRequest, "Invalid JSON payload received. "+err.Error(), "INVALID_ARGUMENT")
		return
	}
	if req.ValueInputOption == "" {
		googleError(w, http.StatusBadRequest, "Invalid valueInputOption: INPUT_VALUE_OPTION_UNSPECIFIED", "INVALID_ARGUMENT")
		return
	}

	type write struct {
		sheet    string
		row, col int
		value    string
	}
	writes := make([]write, 0, len(req.Data))
	for _, d := range req.Data {
		sheet, cell := splitRange(d.Range)
		row, col, err := parseCell(cell)
		if err != nil {
			googleError(w, http.StatusBadRequest, "Unable to parse range: "+d.Range, "INVALID_ARGUMENT")
			return
		}
		value := ""
		if len(d.Values) > 0 && len(d.Values[0]) > 0 {
			value = cellText(d.Values[0][0])
		}
		writes = append(writes, write{sheet: sheet, row: row, col: col, value: value})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, wr := range writes {
		if _, ok := t.sheets[wr.sheet]; !ok {
			googleError(w, http.StatusBadRequest, "Unable to parse range: "+wr.sheet, "INVALID_ARGUMENT")
			return
		}
		if t.protected[wr.sheet] {
			googleError(w, http.StatusBadRequest, ProtectedMessage, "INVALID_ARGUMENT")
			return
		}
	}
	for _, wr := range writes {
		rows := t.sheets[wr.sheet]
		for len(rows) < wr.row {
			rows = append(rows, nil)
		}
		cells := rows[wr.row-1]
		for len(cells) <= wr.col {
			cells = append(cells, "")
		}
		cells[wr.col] = wr.value
		rows[wr.row-1] = cells
		t.sheets[wr.sheet] = rows
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"spreadsheetId":     t.opts.SpreadsheetID,
		"totalUpdatedCells": len(writes),
	})
}

// parseCell parses a single A1 cell reference such as "O5".
func parseCell(cell string) (row, col int, err error) {
	cell = strings.ToUpper(strings.TrimSpace(cell))
	i := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(cell) {
		return 0, 0, fmt.Errorf("invalid cell %q", cell)
	}
	col, err = rowmap.LetterToIndex(cell[:i])
	if err != nil {
		return 0, 0, err
	}
	row, err = strconv.Atoi(cell[i:])
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("invalid cell %q", cell)
	}
	return row, col, nil
}

// handleToken serves the OAuth2 token endpoint for the jwt-bearer grant.
func (t *Twin) handleToken(w http.ResponseWriter, r *http.Request) {
	t.count("token")
	if err := r.ParseForm(); err != nil {
		tokenError(w, "invalid_request", err.Error())
		return
	}
	if r.PostForm.Get("grant_type") != jwtBearerGrant {
		tokenError(w, "unsupported_grant_type", "Invalid grant_type: "+r.PostForm.Get("grant_type"))
		return
	}

	claims := jwt.MapClaims{}
	assertion := r.PostForm.Get("assertion")
	var err error
	if t.opts.PublicKey != nil {
		_, err = jwt.ParseWithClaims(assertion, claims, func(*jwt.Token) (interface{}, error) {
			return t.opts.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}))
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(assertion, claims)
	}
	if err != nil {
		tokenError(w, "invalid_grant", "Invalid JWT Signature.")
		return
	}

	iss, _ := claims["iss"].(string)
	scope, _ := claims["scope"].(string)
	if iss == "" || !strings.Contains(scope, "spreadsheets") {
		tokenError(w, "invalid_scope", "Invalid OAuth scope or ID token audience provided.")
		return
	}

	tok := "ya29.twin-" + uuid.NewString()
	t.mu.Lock()
	t.tokens[tok] = true
	t.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": tok,
		"expires_in":   3599,
		"token_type":   "Bearer",
	})
}

func tokenError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
