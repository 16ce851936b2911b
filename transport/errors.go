// ABOUTME: Error taxonomy for Sheets requests
// ABOUTME: Missing credentials, non-2xx responses with verbatim bodies, and range-protection detection
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/harperreed/leadsheet/auth"
)

// ErrCredentialsMissing matches any CredentialsMissingError via errors.Is.
var ErrCredentialsMissing = errors.New("credentials missing")

// CredentialsMissingError reports that no usable key or token source exists
// for an operation.
type CredentialsMissingError struct {
	Op     string
	Reason string
}

func (e *CredentialsMissingError) Error() string {
	return fmt.Sprintf("%s: credentials missing: %s", e.Op, e.Reason)
}

func (e *CredentialsMissingError) Is(target error) bool {
	return target == ErrCredentialsMissing
}

// TransportError is a failed Sheets call. StatusCode is 0 when no response
// was received; Body is the response body verbatim.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsProtectedRange reports whether err is a write rejected because the
// target range is protected.
func IsProtectedRange(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return strings.Contains(strings.ToLower(te.Body), "protected")
}

// IsUnreachable reports whether err means the Sheets API or the token
// endpoint gave no usable answer: no response at all or a 5xx. Rejections
// such as 4xx responses or a malformed key are not connectivity problems.
func IsUnreachable(err error) bool {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		if authErr.Op != "exchange" {
			return false
		}
		return authErr.StatusCode >= http.StatusInternalServerError ||
			(authErr.StatusCode == 0 && authErr.Body == "")
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode == 0 || te.StatusCode >= http.StatusInternalServerError
	}
	return false
}
