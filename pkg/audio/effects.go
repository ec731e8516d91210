package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep/v2"
)

// SmoothVolume is a streamer whose gain ramps towards a target instead of jumping,
// so pauses, resumes and volume changes do not click.
//
// SmoothVolume is not synchronized. When attached to the speaker, every method
// (Stream, SetTargetVolume, FadeTo, Mute) must run under speaker.Lock(), because the
// speaker goroutine calls Stream while holding that lock.
type SmoothVolume struct {
	Streamer beep.Streamer

	// targetVolume is the user volume, 0.0 to 1.0.
	targetVolume float64
	// fadeLevel multiplies targetVolume for fade in and fade out, 0.0 to 1.0.
	fadeLevel float64
	// currentGain is what is applied to samples right now.
	currentGain float64
	// step is the per-sample gain change towards targetVolume*fadeLevel.
	step float64
}

// NewSmoothVolume creates a SmoothVolume at full fade level.
func NewSmoothVolume(s beep.Streamer, initialVol float64) *SmoothVolume {
	return &SmoothVolume{
		Streamer:     s,
		targetVolume: initialVol,
		fadeLevel:    1.0,
		currentGain:  initialVol,
	}
}

// Stream applies the current gain and moves it towards the target.
func (s *SmoothVolume) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = s.Streamer.Stream(samples)

	targetGain := s.targetVolume * s.fadeLevel
	for i := 0; i < n; i++ {
		if s.currentGain != targetGain {
			switch {
			case s.step == 0:
				s.currentGain = targetGain
			case s.currentGain < targetGain:
				s.currentGain = math.Min(s.currentGain+s.step, targetGain)
			default:
				s.currentGain = math.Max(s.currentGain-s.step, targetGain)
			}
		}
		samples[i][0] *= s.currentGain
		samples[i][1] *= s.currentGain
	}
	return n, ok
}

func (s *SmoothVolume) Err() error {
	return s.Streamer.Err()
}

// Gain returns the gain currently applied to samples.
func (s *SmoothVolume) Gain() float64 {
	return s.currentGain
}

// SetTargetVolume changes the user volume, ramping over duration.
func (s *SmoothVolume) SetTargetVolume(vol, sampleRate float64, duration time.Duration) {
	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	s.targetVolume = vol
	s.updateStep(sampleRate, duration)
}

// FadeTo changes the fade level, ramping over duration.
func (s *SmoothVolume) FadeTo(level, sampleRate float64, duration time.Duration) {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	s.fadeLevel = level
	s.updateStep(sampleRate, duration)
}

// Mute drops the gain to zero immediately. A following FadeTo(1, ...) fades in from silence.
func (s *SmoothVolume) Mute() {
	s.fadeLevel = 0
	s.currentGain = 0
	s.step = 0
}

func (s *SmoothVolume) updateStep(sampleRate float64, duration time.Duration) {
	if duration <= 0 || sampleRate <= 0 {
		s.step = 1.0
		return
	}
	diff := math.Abs(s.targetVolume*s.fadeLevel - s.currentGain)
	if diff == 0 {
		s.step = 0
		return
	}
	s.step = diff / (sampleRate * duration.Seconds())
}
