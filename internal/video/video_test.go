package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/stereo2video/internal/logging"
	"github.com/ivlev/stereo2video/internal/system"
)

type testFrames struct {
	frames   []*image.RGBA
	released int
}

func newTestFrames(n, w, h int) *testFrames {
	f := &testFrames{}
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, color.RGBA{R: uint8(i * 20), G: uint8(x), B: uint8(y), A: 255})
			}
		}
		f.frames = append(f.frames, img)
	}
	return f
}

func (f *testFrames) Len() int                { return len(f.frames) }
func (f *testFrames) Frame(i int) *image.RGBA { return f.frames[i] }
func (f *testFrames) Release()                { f.released++ }

// fakeRecorder records calls and returns a fixed blob.
type fakeRecorder struct {
	mu      sync.Mutex
	cfg     RecorderConfig
	frames  int
	ended   bool
	aborted bool
	out     []byte
	failAt  int
}

func (r *fakeRecorder) Begin(ctx context.Context, cfg RecorderConfig) error {
	r.cfg = cfg
	return nil
}

func (r *fakeRecorder) EncodeFrame(img *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && r.frames+1 == r.failAt {
		return errors.New("encoder crashed")
	}
	r.frames++
	return nil
}

func (r *fakeRecorder) End(ctx context.Context, settle time.Duration) ([]byte, error) {
	r.ended = true
	return r.out, nil
}

func (r *fakeRecorder) Abort() { r.aborted = true }

var mp4Header = []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}

func ffmpegCaps(encoders ...string) system.Capabilities {
	return system.Capabilities{FFmpegPath: "/usr/bin/ffmpeg", Encoders: encoders, MaxTextureSize: system.SoftwareMaxTextureSize}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name        string
		prefs       []string
		caps        system.Capabilities
		wantEncoder string
		wantHW      bool
	}{
		{"hardware hevc first", []string{"hevc", "h264"}, ffmpegCaps("libx264", "hevc_nvenc", "libx265"), "hevc_nvenc", true},
		{"software hevc", []string{"hevc"}, ffmpegCaps("libx265"), "libx265", false},
		{"fall back to h264", []string{"hevc", "h264"}, ffmpegCaps("libx264"), "libx264", false},
		{"vp9", []string{"vp9"}, ffmpegCaps("libvpx-vp9"), "libvpx-vp9", false},
		{"mjpeg without ffmpeg", []string{"hevc", "h264", "mjpeg"}, system.Capabilities{}, MJPEGEncoder, false},
		{"case insensitive", []string{" H264 "}, ffmpegCaps("h264_videotoolbox"), "h264_videotoolbox", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Negotiate(tt.prefs, tt.caps)
			if err != nil {
				t.Fatal(err)
			}
			if c.Encoder != tt.wantEncoder || c.Hardware != tt.wantHW {
				t.Errorf("got %s (hw=%v), want %s (hw=%v)", c.Encoder, c.Hardware, tt.wantEncoder, tt.wantHW)
			}
		})
	}
}

func TestNegotiateExhausted(t *testing.T) {
	_, err := Negotiate([]string{"hevc", "vp9", "theora"}, ffmpegCaps("libx264"))
	if !errors.Is(err, ErrEncodingUnsupported) {
		t.Fatalf("err = %v, want ErrEncodingUnsupported", err)
	}
	if _, err := Negotiate([]string{"h264"}, system.Capabilities{Encoders: []string{"libx264"}}); !errors.Is(err, ErrEncodingUnsupported) {
		t.Errorf("h264 negotiated without an ffmpeg binary")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		container string
		ok        bool
	}{
		{"mp4", mp4Header, ContainerMP4, true},
		{"empty", nil, ContainerMP4, false},
		{"truncated mp4", mp4Header[:6], ContainerMP4, false},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F}, ContainerWebM, true},
		{"avi", []byte("RIFF\x00\x00\x00\x00AVI LIST"), ContainerAVI, true},
		{"wave is not avi", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), ContainerAVI, false},
		{"garbage", []byte("hello world!"), ContainerWebM, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.data, tt.container)
			if (err == nil) != tt.ok {
				t.Fatalf("Validate = %v, want ok=%v", err, tt.ok)
			}
			var ie *IncompleteEncodingError
			if err != nil && !errors.As(err, &ie) {
				t.Errorf("error type %T", err)
			}
		})
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	c, err := Negotiate([]string{"hevc"}, ffmpegCaps("libx265"))
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Join(buildFFmpegArgs(c, RecorderConfig{
		InputWidth: 2100, InputHeight: 1000, Width: 1920, Height: 914, FPS: 30, BitrateKbps: 6000,
	}), " ")
	t.Logf("ffmpeg %s", args)

	for _, want := range []string{
		"-f rawvideo -pixel_format rgba -video_size 2100x1000",
		"-framerate 30",
		"-vf scale=1920:914:flags=lanczos,format=yuv420p",
		"-c:v libx265",
		"-b:v 6000k",
		"-tag:v hvc1",
		"-f mp4 pipe:1",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q", want)
		}
	}
}

func newTestEncoder(caps system.Capabilities, rec *fakeRecorder) *Encoder {
	e := NewEncoder(caps, logging.Nop())
	e.NewRecorder = func(Codec) Recorder { return rec }
	return e
}

func TestEncodeWithFakeRecorder(t *testing.T) {
	rec := &fakeRecorder{out: mp4Header}
	e := newTestEncoder(ffmpegCaps("libx264"), rec)
	frames := newTestFrames(5, 8, 6)

	out, err := e.Encode(context.Background(), frames, Options{
		Codecs: []string{"h264"}, Width: 4, Height: 2, FPS: 30, QualityTier: "high",
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.frames != 5 || !rec.ended || rec.aborted {
		t.Errorf("recorder frames=%d ended=%v aborted=%v", rec.frames, rec.ended, rec.aborted)
	}
	if rec.cfg.InputWidth != 8 || rec.cfg.InputHeight != 6 || rec.cfg.Width != 4 || rec.cfg.Height != 2 {
		t.Errorf("recorder config %+v", rec.cfg)
	}
	if out.Codec != "h264" || out.Extension != "mp4" || out.SizeBytes != len(mp4Header) || out.Frames != 5 {
		t.Errorf("output %+v", out)
	}
	if out.Bitrate < 500 {
		t.Errorf("derived bitrate %d below floor", out.Bitrate)
	}
	if frames.released != 1 {
		t.Errorf("frames released %d times", frames.released)
	}
}

func TestEncodeIncompleteOutput(t *testing.T) {
	rec := &fakeRecorder{}
	e := newTestEncoder(ffmpegCaps("libx264"), rec)
	frames := newTestFrames(2, 4, 4)

	_, err := e.Encode(context.Background(), frames, Options{Codecs: []string{"h264"}, Width: 4, Height: 4, FPS: 10})
	var ie *IncompleteEncodingError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want IncompleteEncodingError", err)
	}
	if frames.released != 1 {
		t.Error("frames not released on failure")
	}
}

func TestEncodeFrameFailureAborts(t *testing.T) {
	rec := &fakeRecorder{out: mp4Header, failAt: 3}
	e := newTestEncoder(ffmpegCaps("libx264"), rec)
	frames := newTestFrames(5, 4, 4)

	if _, err := e.Encode(context.Background(), frames, Options{Codecs: []string{"h264"}, Width: 4, Height: 4, FPS: 10}); err == nil {
		t.Fatal("expected error")
	}
	if !rec.aborted || rec.ended {
		t.Errorf("aborted=%v ended=%v", rec.aborted, rec.ended)
	}
	if frames.released != 1 {
		t.Error("frames not released on failure")
	}
}

func TestEncodeRejects(t *testing.T) {
	e := newTestEncoder(system.Capabilities{}, &fakeRecorder{out: mp4Header})
	tests := []struct {
		name   string
		frames *testFrames
		opts   Options
		want   error
	}{
		{"no frames", newTestFrames(0, 4, 4), Options{Codecs: []string{"mjpeg"}, Width: 4, Height: 4, FPS: 10}, ErrNoFrames},
		{"unsupported", newTestFrames(1, 4, 4), Options{Codecs: []string{"hevc"}, Width: 4, Height: 4, FPS: 10}, ErrEncodingUnsupported},
		{"odd size", newTestFrames(1, 4, 4), Options{Codecs: []string{"mjpeg"}, Width: 3, Height: 4, FPS: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Encode(context.Background(), tt.frames, tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.frames.released != 1 {
				t.Error("frames not released")
			}
		})
	}
}

func TestEncodeRealtimePacing(t *testing.T) {
	rec := &fakeRecorder{out: mp4Header}
	e := newTestEncoder(ffmpegCaps("libx264"), rec)

	start := time.Now()
	_, err := e.Encode(context.Background(), newTestFrames(5, 4, 4), Options{
		Codecs: []string{"h264"}, Width: 4, Height: 4, FPS: 50, RealtimePacing: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("5 frames at 50 fps took %v, want >= 100ms", elapsed)
	}
}

func TestEncodeCancelledWhilePacing(t *testing.T) {
	rec := &fakeRecorder{out: mp4Header}
	e := newTestEncoder(ffmpegCaps("libx264"), rec)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	frames := newTestFrames(100, 4, 4)
	_, err := e.Encode(ctx, frames, Options{Codecs: []string{"h264"}, Width: 4, Height: 4, FPS: 10, RealtimePacing: true})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if !rec.aborted || frames.released != 1 {
		t.Errorf("aborted=%v released=%d", rec.aborted, frames.released)
	}
}

func TestMJPEGEncode(t *testing.T) {
	e := NewEncoder(system.Capabilities{}, logging.Nop())
	frames := newTestFrames(4, 10, 6)

	out, err := e.Encode(context.Background(), frames, Options{
		Codecs: []string{"hevc", "mjpeg"}, Width: 8, Height: 4, FPS: 12,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Codec != "mjpeg" || out.Extension != "avi" || out.MimeType != "video/x-msvideo" {
		t.Errorf("output %+v", out)
	}
	if !bytes.HasPrefix(out.Data, []byte("RIFF")) {
		t.Error("not a RIFF file")
	}
	t.Logf("mjpeg avi: %d bytes", out.SizeBytes)
}

func TestFFmpegEncode(t *testing.T) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	probe := system.NewCapabilityProbe(path)
	caps := probe.Capabilities(context.Background())
	if !caps.HasEncoder("libx264") {
		t.Skip("ffmpeg has no libx264")
	}
	// software only, hardware encoders may be listed without a device
	caps.Encoders = []string{"libx264"}

	e := NewEncoder(caps, logging.Nop())
	out, err := e.Encode(context.Background(), newTestFrames(10, 64, 48), Options{
		Codecs: []string{"h264"}, Width: 32, Height: 24, FPS: 10, BitrateKbps: 500, SettleDelay: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(out.Data, ContainerMP4); err != nil {
		t.Fatal(err)
	}
	t.Logf("h264 mp4: %d bytes", out.SizeBytes)
}

// fakeFFmpeg writes a shell script that complains on stderr and exits
// without reading its input.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\necho 'Unknown encoder libx264' >&2\nexit 1\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFFmpegEarlyExitReportsStderr(t *testing.T) {
	rec := &FFmpegRecorder{
		Path:  fakeFFmpeg(t),
		Codec: Codec{Name: "h264", Encoder: "libx264", Container: ContainerMP4},
	}
	cfg := RecorderConfig{InputWidth: 64, InputHeight: 48, Width: 64, Height: 48, FPS: 10, BitrateKbps: 500}
	if err := rec.Begin(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	defer rec.Abort()

	frames := newTestFrames(1, 64, 48)
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		err = rec.EncodeFrame(frames.Frame(0))
	}
	if err == nil {
		_, err = rec.End(context.Background(), time.Second)
	}
	if err == nil {
		t.Fatal("ffmpeg exit status was not reported")
	}
	t.Logf("error: %v", err)
	if !strings.Contains(err.Error(), "Unknown encoder libx264") {
		t.Errorf("error does not carry ffmpeg stderr: %v", err)
	}
}
