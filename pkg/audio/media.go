package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned when no decoder accepts the file.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

type decoder func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

func decodeMP3(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) }
func decodeWAV(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) }

// DecodeMedia opens and decodes an mp3 or wav file. The extension picks the first
// decoder to try; the other is used as a fallback for mislabelled files.
// The returned streamer owns the file handle.
func DecodeMedia(path string) (beep.StreamSeekCloser, beep.Format, error) {
	order := []decoder{decodeMP3, decodeWAV}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		order = []decoder{decodeWAV, decodeMP3}
	}

	var errs []error
	for _, dec := range order {
		// Reopen per attempt: a failed decoder leaves the read offset undefined.
		f, err := os.Open(path)
		if err != nil {
			return nil, beep.Format{}, err
		}
		streamer, format, err := dec(f)
		if err == nil {
			return streamer, format, nil
		}
		f.Close()
		errs = append(errs, err)
	}
	return nil, beep.Format{}, fmt.Errorf("%w: %s: %w", ErrUnsupportedFormat, path, errors.Join(errs...))
}

// GetDuration returns the playing time of the audio file at path.
func GetDuration(path string) (time.Duration, error) {
	streamer, format, err := DecodeMedia(path)
	if err != nil {
		return 0, err
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()), nil
}
