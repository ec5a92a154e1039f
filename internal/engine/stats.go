package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ivlev/stereo2video/internal/video"
)

// Stats describes one export run.
type Stats struct {
	Build   string
	Input   string
	Session string
	Frames  int
	Codec   string
	Encoder string
	Width   int
	Height  int
	Bytes   int
	Capture time.Duration
	Encode  time.Duration
	Total   time.Duration
}

func (s *Stats) fill(out *video.EncodedOutput) {
	s.Codec = out.Codec
	s.Encoder = out.Encoder
	s.Width = out.Width
	s.Height = out.Height
	s.Bytes = out.SizeBytes
}

// EffectiveFPS is frames produced per wall-clock second.
func (s *Stats) EffectiveFPS() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Total.Seconds()
}

// Report formats the performance report printed by the CLI.
func (s *Stats) Report() string {
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Session: %s\n"+
			"Output: %dx%d %s (%s), %.2f MB\n"+
			"Total Time: %.2fs\n"+
			"Capture (CPU): %.2fs\n"+
			"Encoding: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"----------------------------\n",
		s.Build, s.Session, s.Width, s.Height, s.Codec, s.Encoder, float64(s.Bytes)/(1<<20),
		s.Total.Seconds(), s.Capture.Seconds(), s.Encode.Seconds(), s.EffectiveFPS(),
	)
}

// AppendBenchmark appends a one-line summary to the log file at path.
func AppendBenchmark(path string, s *Stats) error {
	entry := fmt.Sprintf("[%s] Build: %s | Input: %s | Frames: %d | Codec: %s | Size: %dx%d | Total: %.2fs | Capture: %.2fs | Encode: %.2fs | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		s.Build,
		filepath.Base(s.Input),
		s.Frames,
		s.Encoder,
		s.Width, s.Height,
		s.Total.Seconds(),
		s.Capture.Seconds(),
		s.Encode.Seconds(),
		s.EffectiveFPS(),
	)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(entry); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
