// ABOUTME: Errors returned by CRM operations
// ABOUTME: NotFoundError for identity lookups and WriteError carrying the user-facing message
package crm

import (
	"errors"
	"fmt"

	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/transport"
)

var (
	// ErrNotFound matches any NotFoundError via errors.Is.
	ErrNotFound = errors.New("lead not found")
	// ErrClosed is returned by operations on a closed Service.
	ErrClosed = errors.New("service closed")
)

// NotFoundError reports that no row matched an identity.
type NotFoundError struct {
	Identity models.Identity
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no lead matches %s", e.Identity)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// WriteError is a failed sheet write. Queued reports whether the write was
// saved to the offline queue for replay.
type WriteError struct {
	Op     string
	Err    error
	Queued bool
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Protected reports whether the sheet rejected the write because the range
// is protected.
func (e *WriteError) Protected() bool {
	return transport.IsProtectedRange(e.Err)
}

// UserMessage is the text shown to a user for this failure.
func (e *WriteError) UserMessage() string {
	var msg string
	if e.Protected() {
		msg = fmt.Sprintf("Could not %s: the sheet is protected. Ask the sheet owner to remove the protection.", e.Op)
	} else {
		msg = fmt.Sprintf("Could not %s: %v", e.Op, e.Err)
	}
	if e.Queued {
		msg += " The change was saved and will be retried when the sheet is reachable."
	}
	return msg
}
