package narration

import (
	"time"

	"tourguide/pkg/audio"
	"tourguide/pkg/model"
)

// Event is an input to the engine's transition function.
type Event interface {
	event()
}

// LocationUpdated carries a new location sample.
type LocationUpdated struct {
	Sample model.LocationSample
}

// LocationFailed reports that the location provider stopped delivering samples.
type LocationFailed struct {
	Err error
}

// POIsUpdated replaces the POI set. The set is authoritative for later resolutions.
type POIsUpdated struct {
	POIs []*model.POI
}

// StatusChanged mirrors a playback status emitted by the player.
type StatusChanged struct {
	Status model.PlaybackStatus
}

// CommandSettled reports the outcome of a player command issued under generation Gen.
type CommandSettled struct {
	Gen uint64
	Op  audio.Op
	Err error
}

// ThresholdChanged swaps the proximity radii.
type ThresholdChanged struct {
	Enter float64
	Exit  float64
}

// ManualKind is a user-issued command.
type ManualKind string

const (
	ManualPlay   ManualKind = "play"
	ManualPause  ManualKind = "pause"
	ManualSeek   ManualKind = "seek"
	ManualSelect ManualKind = "select"
	ManualRetry  ManualKind = "retry"
)

// ManualCommand is a user command. Reply, if set, receives nil once the command is
// accepted or the reason it was rejected. It must be buffered.
type ManualCommand struct {
	Kind     ManualKind
	POIID    string        // ManualSelect
	Position time.Duration // ManualSeek
	Reply    chan error
}

func (LocationUpdated) event()  {}
func (LocationFailed) event()   {}
func (POIsUpdated) event()      {}
func (StatusChanged) event()    {}
func (CommandSettled) event()   {}
func (ThresholdChanged) event() {}
func (ManualCommand) event()    {}
