package api

import (
	"testing"
)

func TestFormatLogLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Sorted params, long values dropped",
			input: `time=2026-01-18T06:50:46.074+01:00 level=INFO msg="Narration: switching POI" to=colosseum from=forum distance="42.5 " uri=https://clips.example.com/rome/colosseum.mp3`,
			want:  "06:50:46 Narration: switching POI (distance=42.5, from=forum, to=colosseum)",
		},
		{
			name:  "Message only",
			input: `time=2026-01-18T06:50:46+01:00 level=INFO msg="Scheduler started"`,
			want:  "06:50:46 Scheduler started",
		},
		{
			name:  "Unparseable line passes through",
			input: "panic: something odd",
			want:  "panic: something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLogLine(tt.input); got != tt.want {
				t.Errorf("formatLogLine() = %q, want %q", got, tt.want)
			}
		})
	}
}
