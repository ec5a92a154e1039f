package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/icza/mjpeg"
	"github.com/nfnt/resize"
)

// MJPEGRecorder writes Motion-JPEG frames into an AVI file without any
// external encoder. The file lives in a temporary directory until End.
type MJPEGRecorder struct {
	Quality int

	cfg    RecorderConfig
	tmpDir string
	path   string
	aw     mjpeg.AviWriter
	buf    bytes.Buffer
	frames int
}

func (r *MJPEGRecorder) Begin(ctx context.Context, cfg RecorderConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Quality <= 0 || r.Quality > 100 {
		r.Quality = jpeg.DefaultQuality
	}

	dir, err := os.MkdirTemp("", "stereo2video_")
	if err != nil {
		return err
	}
	r.cfg = cfg
	r.tmpDir = dir
	r.path = filepath.Join(dir, "export.avi")

	aw, err := mjpeg.New(r.path, int32(cfg.Width), int32(cfg.Height), int32(cfg.FPS))
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("mjpeg writer: %w", err)
	}
	r.aw = aw
	return nil
}

func (r *MJPEGRecorder) EncodeFrame(img *image.RGBA) error {
	var frame image.Image = img
	if b := img.Bounds(); b.Dx() != r.cfg.Width || b.Dy() != r.cfg.Height {
		frame = resize.Resize(uint(r.cfg.Width), uint(r.cfg.Height), img, resize.Lanczos3)
	}

	r.buf.Reset()
	if err := jpeg.Encode(&r.buf, frame, &jpeg.Options{Quality: r.Quality}); err != nil {
		return fmt.Errorf("jpeg encode frame %d: %w", r.frames, err)
	}
	if err := r.aw.AddFrame(r.buf.Bytes()); err != nil {
		return fmt.Errorf("add frame %d: %w", r.frames, err)
	}
	r.frames++
	return nil
}

// End finalises the AVI index and returns the file content. settle is not
// needed: the writer is synchronous.
func (r *MJPEGRecorder) End(ctx context.Context, settle time.Duration) ([]byte, error) {
	defer os.RemoveAll(r.tmpDir)

	if err := r.aw.Close(); err != nil {
		return nil, fmt.Errorf("mjpeg close: %w", err)
	}
	r.aw = nil
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(r.path)
}

func (r *MJPEGRecorder) Abort() {
	if r.aw != nil {
		_ = r.aw.Close()
		r.aw = nil
	}
	if r.tmpDir != "" {
		os.RemoveAll(r.tmpDir)
	}
}
