package session

import (
	"context"
	"testing"
	"time"

	"tourguide/pkg/model"
)

func TestManager(t *testing.T) {
	m := NewManager()

	if m.NarratedCount() != 0 {
		t.Errorf("expected 0 count, got %d", m.NarratedCount())
	}

	m.MarkNarrated("trevi", time.Now())
	m.MarkNarrated("colosseum", time.Now())
	m.MarkNarrated("trevi", time.Now())
	if m.NarratedCount() != 2 {
		t.Errorf("expected 2 narrated, got %d", m.NarratedCount())
	}
	if !m.IsNarrated("trevi") || m.IsNarrated("pantheon") {
		t.Error("IsNarrated mismatch")
	}
	if got := m.Narrated(); len(got) != 2 || got[0] != "colosseum" || got[1] != "trevi" {
		t.Errorf("Narrated() = %v", got)
	}

	// Event with explicit timestamp
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.AddEvent(&model.NarrationEvent{Type: model.NarrationStarted, POIID: "trevi", Title: "Trevi", Timestamp: ts})
	// Event without timestamp gets one
	m.AddEvent(&model.NarrationEvent{Type: model.NarrationFinished, POIID: "trevi", Title: "Trevi"})

	events := m.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].Timestamp.Equal(ts) {
		t.Errorf("timestamp overwritten: %v", events[0].Timestamp)
	}
	if events[1].Timestamp.IsZero() {
		t.Error("expected auto-generated timestamp, got zero")
	}

	m.Reset()
	if m.NarratedCount() != 0 || len(m.Events()) != 0 {
		t.Error("expected empty session after reset")
	}
}

func TestManager_EventsAreBounded(t *testing.T) {
	m := NewManager()
	for i := 0; i < maxEvents+25; i++ {
		m.AddEvent(&model.NarrationEvent{Type: model.NarrationStarted, POIID: "p", Title: "p"})
	}
	if got := len(m.Events()); got != maxEvents {
		t.Errorf("expected %d events, got %d", maxEvents, got)
	}
}

func TestManager_SessionID(t *testing.T) {
	m := NewManager()
	first := m.ID()
	if first == "" {
		t.Fatal("expected a session id")
	}

	m.AddEvent(&model.NarrationEvent{Type: model.NarrationStarted, POIID: "trevi"})
	if got := m.Events()[0].SessionID; got != first {
		t.Errorf("event session id = %q, want %q", got, first)
	}

	m.ResetSession(context.Background())
	if m.ID() == first {
		t.Error("reset should start a new session id")
	}
}
