package model

import "time"

// PlaybackState is the state of the single audio slot.
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackLoading PlaybackState = "loading"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackError   PlaybackState = "error"
)

// PlaybackStatus is emitted by the playback controller on every transition
// and periodically while playing.
type PlaybackStatus struct {
	State         PlaybackState `json:"state"`
	URI           string        `json:"uri,omitempty"`
	Position      time.Duration `json:"-"`
	Duration      time.Duration `json:"-"`
	DidJustFinish bool          `json:"did_just_finish,omitempty"`
	Err           error         `json:"-"`
}

// PositionMillis returns the playback position in milliseconds.
func (s PlaybackStatus) PositionMillis() int64 {
	return s.Position.Milliseconds()
}

// DurationMillis returns the clip duration in milliseconds.
func (s PlaybackStatus) DurationMillis() int64 {
	return s.Duration.Milliseconds()
}

// ErrorReason returns the error text or "".
func (s PlaybackStatus) ErrorReason() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
