// ABOUTME: Queued write operations replayed against the sheet after reconnecting
// ABOUTME: A Mutation is either an append of a whole row or an update of lead fields
package models

import (
	"fmt"
	"time"
)

// MutationKind tags the Mutation union.
type MutationKind string

const (
	MutationAppend MutationKind = "append"
	MutationUpdate MutationKind = "update"
)

// Mutation is a pending sheet write. Append mutations carry Row; update
// mutations carry Identity and Changes (field name to new cell text).
type Mutation struct {
	ID          string            `json:"id"`
	Kind        MutationKind      `json:"kind"`
	TargetSheet string            `json:"target_sheet"`
	Row         []string          `json:"row,omitempty"`
	Identity    *Identity         `json:"identity,omitempty"`
	Changes     map[string]string `json:"changes,omitempty"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"last_error,omitempty"`
	EnqueuedAt  time.Time         `json:"enqueued_at"`
}

// NewAppendMutation builds an append mutation for sheet.
func NewAppendMutation(sheet string, row []string) Mutation {
	cp := make([]string, len(row))
	copy(cp, row)
	return Mutation{Kind: MutationAppend, TargetSheet: sheet, Row: cp}
}

// NewUpdateMutation builds an update mutation for the lead named by id.
func NewUpdateMutation(sheet string, id Identity, changes map[string]string) Mutation {
	cp := make(map[string]string, len(changes))
	for k, v := range changes {
		cp[k] = v
	}
	return Mutation{Kind: MutationUpdate, TargetSheet: sheet, Identity: &id, Changes: cp}
}

// Validate rejects mutations that cannot be replayed.
func (m Mutation) Validate() error {
	if m.TargetSheet == "" {
		return fmt.Errorf("mutation has no target sheet")
	}
	switch m.Kind {
	case MutationAppend:
		if len(m.Row) == 0 {
			return fmt.Errorf("append mutation has no row")
		}
	case MutationUpdate:
		if m.Identity == nil {
			return fmt.Errorf("update mutation has no identity")
		}
		if err := m.Identity.Validate(); err != nil {
			return err
		}
		if len(m.Changes) == 0 {
			return fmt.Errorf("update mutation has no changes")
		}
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	return nil
}

func (m Mutation) String() string {
	if m.Kind == MutationUpdate && m.Identity != nil {
		return fmt.Sprintf("update %s (%s)", m.TargetSheet, m.Identity)
	}
	return fmt.Sprintf("%s %s", m.Kind, m.TargetSheet)
}
