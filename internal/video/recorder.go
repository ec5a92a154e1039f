package video

import (
	"context"
	"image"
	"time"
)

// RecorderConfig sizes one recording. Input is the captured frame size,
// Width×Height the encoded size.
type RecorderConfig struct {
	InputWidth  int
	InputHeight int
	Width       int
	Height      int
	FPS         int
	BitrateKbps int
}

// Recorder encodes a stream of frames into one container blob.
type Recorder interface {
	// Begin starts the recording.
	Begin(ctx context.Context, cfg RecorderConfig) error

	// EncodeFrame appends one frame. The recorder must not retain img.
	EncodeFrame(img *image.RGBA) error

	// End signals completion, waits up to settle for trailing output and
	// returns the assembled container.
	End(ctx context.Context, settle time.Duration) ([]byte, error)

	// Abort stops the recording and discards its output.
	Abort()
}

// NewRecorder returns the recorder for a negotiated codec.
func NewRecorder(c Codec, ffmpegPath string) Recorder {
	if c.Builtin() {
		return &MJPEGRecorder{Quality: 90}
	}
	return &FFmpegRecorder{Path: ffmpegPath, Codec: c}
}
