// Package video negotiates a codec and turns captured frames into a single
// encoded container.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/stereo2video/internal/system"
)

var ErrNoFrames = errors.New("no frames to encode")

// Frames is an ordered set of captured frames that can be handed back to
// their pool.
type Frames interface {
	Len() int
	Frame(i int) *image.RGBA
	Release()
}

// Options for one encode.
type Options struct {
	Codecs         []string
	Width, Height  int // output size, must be even
	FPS            int
	BitrateKbps    int // 0 = derive from QualityTier
	QualityTier    string
	RealtimePacing bool
	SettleDelay    time.Duration
}

// EncodedOutput is the finished video.
type EncodedOutput struct {
	Data      []byte
	MimeType  string
	SizeBytes int
	Codec     string
	Encoder   string
	Extension string
	Width     int
	Height    int
	Frames    int
	Bitrate   int
}

// Encoder streams frames into the best available recorder.
type Encoder struct {
	Caps   system.Capabilities
	Logger zerolog.Logger

	// NewRecorder overrides recorder construction.
	NewRecorder func(c Codec) Recorder

	// OnFrameEncoded is called after every frame.
	OnFrameEncoded func(index, total int)
}

func NewEncoder(caps system.Capabilities, logger zerolog.Logger) *Encoder {
	return &Encoder{Caps: caps, Logger: logger}
}

// Encode negotiates a codec, streams every frame and validates the result.
// frames are released before Encode returns, whatever the outcome.
func (e *Encoder) Encode(ctx context.Context, frames Frames, opts Options) (*EncodedOutput, error) {
	defer frames.Release()

	total := frames.Len()
	if total == 0 {
		return nil, ErrNoFrames
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps %d", opts.FPS)
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.Width%2 != 0 || opts.Height%2 != 0 {
		return nil, fmt.Errorf("output size %dx%d must be positive and even", opts.Width, opts.Height)
	}

	codec, err := Negotiate(opts.Codecs, e.Caps)
	if err != nil {
		return nil, err
	}

	bitrate := opts.BitrateKbps
	if bitrate <= 0 {
		bitrate = system.RecommendBitrate(opts.Width, opts.Height, opts.FPS, e.Caps, opts.QualityTier)
	}

	first := frames.Frame(0).Bounds()
	cfg := RecorderConfig{
		InputWidth:  first.Dx(),
		InputHeight: first.Dy(),
		Width:       opts.Width,
		Height:      opts.Height,
		FPS:         opts.FPS,
		BitrateKbps: bitrate,
	}

	log := e.Logger.With().Str("codec", codec.Name).Str("encoder", codec.Encoder).Logger()
	log.Info().
		Int("frames", total).
		Str("size", fmt.Sprintf("%dx%d", opts.Width, opts.Height)).
		Int("bitrate_kbps", bitrate).
		Bool("hardware", codec.Hardware).
		Msg("encoding")

	rec := e.recorder(codec)
	if err := rec.Begin(ctx, cfg); err != nil {
		return nil, err
	}

	interval := time.Second / time.Duration(opts.FPS)
	for i := 0; i < total; i++ {
		start := time.Now()
		if err := rec.EncodeFrame(frames.Frame(i)); err != nil {
			rec.Abort()
			return nil, fmt.Errorf("encode frame %d: %w", i, err)
		}
		if e.OnFrameEncoded != nil {
			e.OnFrameEncoded(i+1, total)
		}
		if opts.RealtimePacing {
			if err := sleepCtx(ctx, interval-time.Since(start)); err != nil {
				rec.Abort()
				return nil, err
			}
		} else if err := ctx.Err(); err != nil {
			rec.Abort()
			return nil, err
		}
	}

	data, err := rec.End(ctx, opts.SettleDelay)
	if err != nil {
		return nil, err
	}
	if err := Validate(data, codec.Container); err != nil {
		return nil, err
	}

	log.Info().Int("bytes", len(data)).Msg("encoded")
	return &EncodedOutput{
		Data:      data,
		MimeType:  codec.MimeType,
		SizeBytes: len(data),
		Codec:     codec.Name,
		Encoder:   codec.Encoder,
		Extension: codec.Extension,
		Width:     opts.Width,
		Height:    opts.Height,
		Frames:    total,
		Bitrate:   bitrate,
	}, nil
}

func (e *Encoder) recorder(c Codec) Recorder {
	if e.NewRecorder != nil {
		return e.NewRecorder(c)
	}
	return NewRecorder(c, e.Caps.FFmpegPath)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
