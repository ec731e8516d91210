package model

import (
	"time"
)

// NarrationEventType classifies entries in the narration event log.
type NarrationEventType string

const (
	NarrationStarted  NarrationEventType = "started"
	NarrationPaused   NarrationEventType = "paused"
	NarrationResumed  NarrationEventType = "resumed"
	NarrationFinished NarrationEventType = "finished"
	NarrationFailed   NarrationEventType = "failed"
)

// NarrationEvent records a notable narration transition for the event log.
type NarrationEvent struct {
	Type      NarrationEventType `json:"type"`
	POIID     string             `json:"poi_id"`
	Title     string             `json:"title"`
	Summary   string             `json:"summary,omitempty"`
	Manual    bool               `json:"manual"` // True if triggered by a user command
	SessionID string             `json:"session_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
