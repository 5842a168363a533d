package models

import (
	"time"

	"github.com/google/uuid"
)

type RecordingStatus string

const (
	RecordingPending RecordingStatus = "pending"
	RecordingSyncing RecordingStatus = "syncing"
	RecordingSynced  RecordingStatus = "synced"
	RecordingFailed  RecordingStatus = "failed"
)

// Recording is one captured audio segment awaiting or having undergone
// recognition. The payload is kept only while the recording is pending; once
// a capture has been recognized (or confirmed as no-match) the raw audio is
// dropped.
type Recording struct {
	ID         string
	SessionID  string
	Status     RecordingStatus
	CapturedAt time.Time
	Payload    string // base64 PCM audio
	SampleRate int
	Channels   int
	Result     *TrackIdentification
	Notified   bool
}

func NewRecording(sessionID, payload string, sampleRate, channels int) *Recording {
	return &Recording{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Status:     RecordingPending,
		CapturedAt: time.Now(),
		Payload:    payload,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// TrackIdentification is a recognition result. Derived data: it is always
// recomputable by re-submitting the capture, so it lives as json on the
// owning recording and is never persisted independently.
type TrackIdentification struct {
	Title           string    `json:"title"`
	Artist          string    `json:"artist"`
	Album           string    `json:"album,omitempty"`
	Genre           string    `json:"genre,omitempty"`
	ExternalTrackID string    `json:"external_track_id,omitempty"`
	ProducerID      string    `json:"producer_id,omitempty"`
	CoverArtURL     string    `json:"cover_art_url,omitempty"`
	Confidence      float64   `json:"confidence"`
	RecognizedAt    time.Time `json:"recognized_at"`
}

// Notifiable reports whether the track carries enough identity to address a
// producer notification.
func (t *TrackIdentification) Notifiable() bool {
	return t.ProducerID != "" || t.ExternalTrackID != ""
}
