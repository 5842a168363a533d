package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionRecording   SessionStatus = "recording"
	SessionPendingSync SessionStatus = "pending_sync"
	SessionSyncing     SessionStatus = "syncing"
	SessionSynced      SessionStatus = "synced"
	SessionError       SessionStatus = "error"
)

// VenueSnapshot is the classifier output captured at session start. It is
// immutable once attached; a later user correction goes into
// Session.CorrectedVenue and never recomputes Qualifying.
type VenueSnapshot struct {
	Name       string   `json:"name"`
	City       string   `json:"city"`
	Country    string   `json:"country"`
	VenueTypes []string `json:"venue_types"`
	Qualifying bool     `json:"qualifying"`
}

type Session struct {
	ID             string
	OwnerID        string
	DJName         string
	Status         SessionStatus
	StartTime      time.Time
	EndTime        *time.Time
	Venue          *VenueSnapshot
	CorrectedVenue string
	SyncedAt       *time.Time
	Recordings     []Recording
}

func NewSession(ownerID, djName string, venue *VenueSnapshot) *Session {
	return &Session{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		DJName:    djName,
		Status:    SessionRecording,
		StartTime: time.Now(),
		Venue:     venue,
	}
}

// QualifyingVenue reports whether the session was started at a venue that
// gates notification side effects. No snapshot means not qualifying.
func (s *Session) QualifyingVenue() bool {
	return s.Venue != nil && s.Venue.Qualifying
}
