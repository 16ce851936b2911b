// ABOUTME: Lead identity as a tagged union of trip id or creation time plus name
// ABOUTME: Every read-match and write-target path resolves leads through Identity
package models

import (
	"fmt"
	"strings"
)

// IdentityKind selects which fields identify a lead.
type IdentityKind string

const (
	IdentityByTripID      IdentityKind = "trip_id"
	IdentityByDateAndName IdentityKind = "date_and_name"
)

// Identity identifies a lead row. Exactly one variant is populated: TripID for
// IdentityByTripID, DateAndTime plus TravellerName for IdentityByDateAndName.
type Identity struct {
	Kind          IdentityKind `json:"kind"`
	TripID        string       `json:"trip_id,omitempty"`
	DateAndTime   string       `json:"date_and_time,omitempty"`
	TravellerName string       `json:"traveller_name,omitempty"`
}

// ByTripID builds a trip id identity.
func ByTripID(tripID string) Identity {
	return Identity{Kind: IdentityByTripID, TripID: strings.TrimSpace(tripID)}
}

// ByDateAndName builds a composite identity from creation time and name.
func ByDateAndName(dateAndTime, travellerName string) Identity {
	return Identity{
		Kind:          IdentityByDateAndName,
		DateAndTime:   strings.TrimSpace(dateAndTime),
		TravellerName: strings.TrimSpace(travellerName),
	}
}

// IdentityOf picks the identity for a lead: its trip id when non-blank,
// otherwise its creation time and traveller name.
func IdentityOf(l Lead) Identity {
	if strings.TrimSpace(l.TripID) != "" {
		return ByTripID(l.TripID)
	}
	return ByDateAndName(l.DateAndTime, l.TravellerName)
}

// Validate rejects identities that cannot match any row.
func (id Identity) Validate() error {
	switch id.Kind {
	case IdentityByTripID:
		if id.TripID == "" {
			return fmt.Errorf("trip id identity requires a trip id")
		}
	case IdentityByDateAndName:
		if id.DateAndTime == "" || id.TravellerName == "" {
			return fmt.Errorf("date and name identity requires both date and traveller name")
		}
	default:
		return fmt.Errorf("unknown identity kind %q", id.Kind)
	}
	return nil
}

// Matches reports whether l is the lead this identity names. A trip id
// identity only matches on trip id and a composite identity only matches on
// date and name; the two are never mixed.
func (id Identity) Matches(l Lead) bool {
	switch id.Kind {
	case IdentityByTripID:
		return id.TripID != "" && strings.TrimSpace(l.TripID) == id.TripID
	case IdentityByDateAndName:
		return id.DateAndTime != "" &&
			strings.TrimSpace(l.DateAndTime) == id.DateAndTime &&
			strings.EqualFold(strings.TrimSpace(l.TravellerName), id.TravellerName)
	}
	return false
}

func (id Identity) String() string {
	if id.Kind == IdentityByTripID {
		return "trip " + id.TripID
	}
	return fmt.Sprintf("%s @ %s", id.TravellerName, id.DateAndTime)
}

// WatermarkKey is the composite key the notification differ tracks leads by:
// creation time plus lowercased traveller name.
func WatermarkKey(l Lead) string {
	return strings.TrimSpace(l.DateAndTime) + "|" + strings.ToLower(strings.TrimSpace(l.TravellerName))
}
