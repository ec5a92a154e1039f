package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const chunkSize = 64 << 10

// FFmpegRecorder streams raw RGBA frames into an ffmpeg subprocess and
// collects the container it writes to stdout. Feeding stdin and draining
// stdout run concurrently.
type FFmpegRecorder struct {
	Path  string
	Codec Codec

	cmd    *exec.Cmd
	cancel context.CancelFunc
	group  *errgroup.Group
	gctx   context.Context
	frames chan []byte
	stderr bytes.Buffer

	mu     sync.Mutex
	chunks [][]byte
	size   int

	frameBytes int
	waitOnce   sync.Once
	waitErr    error
}

func (r *FFmpegRecorder) Begin(ctx context.Context, cfg RecorderConfig) error {
	path := r.Path
	if path == "" {
		path = "ffmpeg"
	}

	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.cmd = exec.CommandContext(cctx, path, buildFFmpegArgs(r.Codec, cfg)...)
	r.cmd.Stderr = &r.stderr

	stdin, err := r.cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe error: %w", err)
	}
	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := r.cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	r.frameBytes = cfg.InputWidth * cfg.InputHeight * 4
	r.frames = make(chan []byte)
	r.group, r.gctx = errgroup.WithContext(cctx)

	r.group.Go(func() error {
		defer stdin.Close()
		for {
			select {
			case pix, ok := <-r.frames:
				if !ok {
					return nil
				}
				if _, err := stdin.Write(pix); err != nil {
					return fmt.Errorf("write raw error: %w", err)
				}
			case <-r.gctx.Done():
				return r.gctx.Err()
			}
		}
	})
	r.group.Go(func() error {
		return r.collect(stdout)
	})
	return nil
}

func (r *FFmpegRecorder) collect(stdout io.Reader) error {
	for {
		buf := make([]byte, chunkSize)
		n, err := stdout.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.chunks = append(r.chunks, buf[:n])
			r.size += n
			r.mu.Unlock()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read output error: %w", err)
		}
	}
}

func (r *FFmpegRecorder) EncodeFrame(img *image.RGBA) error {
	if len(img.Pix) != r.frameBytes {
		return fmt.Errorf("frame is %d bytes, recorder expects %d", len(img.Pix), r.frameBytes)
	}
	select {
	case r.frames <- img.Pix:
		return nil
	case <-r.gctx.Done():
		return r.stop(r.group.Wait())
	}
}

func (r *FFmpegRecorder) End(ctx context.Context, settle time.Duration) ([]byte, error) {
	close(r.frames)
	defer r.cancel()

	streamed := make(chan error, 1)
	go func() { streamed <- r.group.Wait() }()

	select {
	case err := <-streamed:
		if err != nil {
			return nil, r.stop(err)
		}
	case <-ctx.Done():
		r.cancel()
		<-streamed
		_ = r.wait()
		return nil, ctx.Err()
	}

	// stdout is closed; give the process the settle delay to exit cleanly
	exited := make(chan error, 1)
	go func() { exited <- r.wait() }()
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case err := <-exited:
		if err != nil {
			return nil, r.failure(err)
		}
	case <-timer.C:
		r.cancel()
		<-exited
		return nil, r.failure(fmt.Errorf("ffmpeg did not exit within %v", settle))
	}

	return r.assemble(), nil
}

func (r *FFmpegRecorder) Abort() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	if r.group != nil {
		_ = r.group.Wait()
	}
	_ = r.wait()
}

// stop kills the process, reaps it and returns err with its stderr. stderr
// is only complete and safe to read once Wait has returned.
func (r *FFmpegRecorder) stop(err error) error {
	r.cancel()
	_ = r.wait()
	return r.failure(err)
}

func (r *FFmpegRecorder) wait() error {
	r.waitOnce.Do(func() { r.waitErr = r.cmd.Wait() })
	return r.waitErr
}

func (r *FFmpegRecorder) assemble() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, 0, r.size)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	r.chunks = nil
	return out
}

func (r *FFmpegRecorder) failure(err error) error {
	if msg := bytes.TrimSpace(r.stderr.Bytes()); len(msg) > 0 {
		return fmt.Errorf("ffmpeg %s: %w, output: %s", r.Codec.Encoder, err, msg)
	}
	return fmt.Errorf("ffmpeg %s: %w", r.Codec.Encoder, err)
}
