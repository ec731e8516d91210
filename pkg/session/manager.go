// Package session tracks what has been narrated during the current run.
// Nothing here survives a restart.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"tourguide/pkg/logging"
	"tourguide/pkg/model"
)

const maxEvents = 200

// Manager holds the narrated set and the recent narration events.
type Manager struct {
	mu       sync.RWMutex
	id       string
	events   []model.NarrationEvent
	narrated map[string]time.Time
}

// NewManager creates an empty session.
func NewManager() *Manager {
	return &Manager{id: uuid.NewString(), narrated: make(map[string]time.Time)}
}

// ID identifies the current session. Reset starts a new one.
func (m *Manager) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

// AddEvent records a narration event and appends it to the event log.
func (m *Manager) AddEvent(event *model.NarrationEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	event.SessionID = m.id
	m.events = append(m.events, *event)
	if len(m.events) > maxEvents {
		m.events = slices.Clone(m.events[len(m.events)-maxEvents:])
	}
	m.mu.Unlock()

	logging.LogEvent(event)
}

// Events returns a copy of the recent events, oldest first.
func (m *Manager) Events() []model.NarrationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

// MarkNarrated records that the clip of poiID played to the end.
func (m *Manager) MarkNarrated(poiID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.narrated[poiID] = at
}

// IsNarrated reports whether poiID has been narrated to the end.
func (m *Manager) IsNarrated(poiID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.narrated[poiID]
	return ok
}

// Narrated returns the narrated POI IDs in ascending order.
func (m *Manager) Narrated() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.narrated))
	for id := range m.narrated {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NarratedCount returns the number of distinct narrated POIs.
func (m *Manager) NarratedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.narrated)
}

// Reset clears the session.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = uuid.NewString()
	m.events = nil
	m.narrated = make(map[string]time.Time)
}

// ResetSession clears the session when the user jumps to a new place.
func (m *Manager) ResetSession(ctx context.Context) {
	old := m.ID()
	m.Reset()
	slog.Info("Narration session reset", "previous", old, "session", m.ID())
}
