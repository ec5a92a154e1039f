// Package capture drives frame production: a clock-paced live preview and a
// frame-exact export that collects every frame in order.
package capture

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/stereo2video/internal/config"
	"github.com/ivlev/stereo2video/internal/logging"
	"github.com/ivlev/stereo2video/internal/system"
)

// State of a Sequencer.
type State int

const (
	Idle State = iota
	LivePlaying
	Exporting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LivePlaying:
		return "live"
	case Exporting:
		return "exporting"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// yieldEvery is how many export frames are captured between yields.
const yieldEvery = 10

// RenderFunc draws the frame at progress ∈ [0,1] into dst.
type RenderFunc func(dst *image.RGBA, progress float64) error

// Options configures a Sequencer.
type Options struct {
	Width, Height int // surface size
	Duration      time.Duration
	Speed         float64 // live clock multiplier

	Scheduler Scheduler // live ticks
	// ExportScheduler paces the export waits. Defaults to Scheduler.
	ExportScheduler Scheduler
	Pool            *system.SurfacePool
	Logger          *zerolog.Logger
	Clock           func() time.Time
}

// Sequencer owns the live and export regimes for one renderer. Scheduler
// callbacks are serialised by its mutex.
type Sequencer struct {
	opts   Options
	render RenderFunc

	mu    sync.Mutex
	state State

	liveSurface  *image.RGBA
	liveToken    uint64
	livePending  Handle
	liveDone     chan struct{}
	startTime    time.Time
	lastProgress float64 // percent
	liveFrames   int
	liveOverride *float64 // percent

	exportSurface *image.RGBA
	override      *float64 // percent
	request       uint64
	generation    uint64

	OnProgressUpdate func(percent float64)
	OnFrameRendered  func(index, total int)
	// OnCanvasReady receives the live surface. It is only valid until the
	// callback returns.
	OnCanvasReady func(surface *image.RGBA)
	OnWarning        func(error)
}

func NewSequencer(render RenderFunc, opts Options) (*Sequencer, error) {
	if render == nil {
		return nil, fmt.Errorf("capture: render func is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("capture: invalid surface size %dx%d", opts.Width, opts.Height)
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("capture: scheduler is required")
	}
	if opts.ExportScheduler == nil {
		opts.ExportScheduler = opts.Scheduler
	}
	if opts.Pool == nil {
		opts.Pool = system.NewSurfacePool(0)
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Sequencer{opts: opts, render: render, state: Idle}, nil
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the last live progress in percent.
func (s *Sequencer) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProgress
}

// Play starts the live preview from the beginning.
func (s *Sequencer) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Exporting {
		return ErrExportInProgress
	}
	s.cancelLiveLocked()
	s.lastProgress = 0
	s.liveFrames = 0
	s.startLiveLocked(s.opts.Clock())
	return nil
}

// Pause cancels the pending live callback. Progress is kept for Resume.
func (s *Sequencer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != LivePlaying {
		return
	}
	s.cancelLiveLocked()
	s.state = Idle
}

// Resume continues the live preview from the last progress.
func (s *Sequencer) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Exporting:
		return ErrExportInProgress
	case LivePlaying:
		return nil
	}
	if s.lastProgress >= 100 {
		return nil
	}
	elapsed := time.Duration(s.lastProgress / 100 * float64(s.opts.Duration) / s.opts.Speed)
	s.startLiveLocked(s.opts.Clock().Add(-elapsed))
	return nil
}

// Stop ends the live preview and releases its surface.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Exporting {
		return
	}
	s.cancelLiveLocked()
	s.finishLiveLocked()
	s.state = Stopped
	s.opts.Pool.Release(s.liveSurface)
	s.liveSurface = nil
}

// Wait blocks until the live preview reaches 100% or is stopped.
func (s *Sequencer) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.liveDone
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot copies the live surface. It returns nil before the first frame.
func (s *Sequencer) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.liveSurface == nil || s.liveFrames == 0 {
		return nil
	}
	out := image.NewRGBA(s.liveSurface.Rect)
	copy(out.Pix, s.liveSurface.Pix)
	return out
}

func (s *Sequencer) startLiveLocked(start time.Time) {
	if s.liveSurface == nil {
		s.liveSurface = s.opts.Pool.Acquire(s.opts.Width, s.opts.Height)
	}
	if s.liveDone == nil {
		s.liveDone = make(chan struct{})
	}
	s.startTime = start
	s.state = LivePlaying
	s.scheduleLiveLocked()
}

func (s *Sequencer) scheduleLiveLocked() {
	s.liveToken++
	token := s.liveToken
	s.livePending = s.opts.Scheduler.ScheduleFrame(func(now time.Time) {
		s.liveTick(token, now)
	})
}

func (s *Sequencer) cancelLiveLocked() {
	if s.livePending != 0 {
		s.opts.Scheduler.Cancel(s.livePending)
		s.livePending = 0
	}
	s.liveToken++
}

func (s *Sequencer) finishLiveLocked() {
	if s.liveDone != nil {
		close(s.liveDone)
		s.liveDone = nil
	}
}

func (s *Sequencer) liveProgress(now time.Time) float64 {
	if s.opts.Duration <= 0 {
		return 100
	}
	elapsed := now.Sub(s.startTime).Seconds() * s.opts.Speed
	return math.Min(math.Max(elapsed/s.opts.Duration.Seconds(), 0), 1) * 100
}

func (s *Sequencer) liveTick(token uint64, now time.Time) {
	s.mu.Lock()
	if token != s.liveToken || s.state != LivePlaying {
		s.mu.Unlock()
		return
	}
	s.livePending = 0

	progress := s.liveProgress(now)
	if s.liveOverride != nil {
		progress = *s.liveOverride
	}
	err := s.render(s.liveSurface, progress/100)
	s.lastProgress = progress
	s.liveFrames++
	surface := s.liveSurface

	var done chan struct{}
	finished := progress >= 100 || err != nil
	if finished {
		s.state = Stopped
		done, s.liveDone = s.liveDone, nil
	}
	s.mu.Unlock()

	if done != nil {
		defer close(done)
	}
	if err != nil {
		s.warn(fmt.Errorf("live render: %w", err))
		return
	}
	if s.OnProgressUpdate != nil {
		s.OnProgressUpdate(progress)
	}
	if s.OnCanvasReady != nil {
		s.OnCanvasReady(surface)
	}
	if finished {
		return
	}

	// callbacks have returned; arm the next frame
	s.mu.Lock()
	if token == s.liveToken && s.state == LivePlaying {
		s.scheduleLiveLocked()
	}
	s.mu.Unlock()
}

// SetProgressOverride pins the live preview to percent until
// ClearProgressOverride is called. The live clock keeps running underneath.
func (s *Sequencer) SetProgressOverride(percent float64) {
	percent = math.Min(math.Max(percent, 0), 100)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveOverride = &percent
}

// ClearProgressOverride returns the live preview to the clock.
func (s *Sequencer) ClearProgressOverride() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveOverride = nil
}

func (s *Sequencer) warn(err error) {
	s.opts.Logger.Warn().Err(err).Msg("capture")
	if s.OnWarning != nil {
		s.OnWarning(err)
	}
}

// Export captures ceil(fps·duration) frames at evenly spaced progress
// values into pooled buffers. A running live preview is paused first. On
// error every captured frame is released before returning.
func (s *Sequencer) Export(ctx context.Context, cfg config.ExportConfig) (*Session, error) {
	total := cfg.TotalFrames()
	if total == 0 {
		return nil, ErrNoFrames
	}

	s.mu.Lock()
	if s.state == Exporting {
		s.mu.Unlock()
		return nil, ErrExportInProgress
	}
	s.cancelLiveLocked()
	s.finishLiveLocked()
	s.state = Exporting
	s.exportSurface = s.opts.Pool.Acquire(s.opts.Width, s.opts.Height)
	s.mu.Unlock()

	session := newSession(cfg.FPS, cfg.DurationSeconds, total, s.opts.Pool)
	log := logging.WithSession(*s.opts.Logger, session.ID)
	log.Debug().Int("frames", total).Int("width", s.opts.Width).Int("height", s.opts.Height).Msg("export started")

	err := s.captureAll(ctx, session, cfg.MaxBufferedBytes)

	s.mu.Lock()
	s.override = nil
	s.state = Idle
	s.opts.Pool.Release(s.exportSurface)
	s.exportSurface = nil
	s.mu.Unlock()

	if err != nil {
		session.Release()
		return nil, err
	}
	log.Debug().Int64("bytes", session.BufferedBytes()).Msg("export captured")
	return session, nil
}

func (s *Sequencer) captureAll(ctx context.Context, session *Session, budget int64) error {
	total := session.TotalFrames
	frameBytes := int64(s.opts.Width) * int64(s.opts.Height) * 4
	if projected := frameBytes * int64(total); budget > 0 && projected > budget {
		sw, sh := suggestResolution(s.opts.Width, s.opts.Height, total, budget)
		s.warn(&ResourceExhaustionWarning{
			ProjectedBytes:  projected,
			BudgetBytes:     budget,
			SuggestedWidth:  sw,
			SuggestedHeight: sh,
		})
	}

	for i := 0; i < total; i++ {
		if i%yieldEvery == 0 {
			runtime.Gosched()
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		progress := 0.0
		if total > 1 {
			progress = float64(i) / float64(total-1) * 100
		}

		req := s.requestOverride(progress)
		// render, wait, render, wait
		for pass := 0; pass < 2; pass++ {
			if err := s.waitFrame(ctx); err != nil {
				return err
			}
		}

		frame, err := s.captureSurface(req)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		session.append(frame)

		if s.OnFrameRendered != nil {
			s.OnFrameRendered(i+1, total)
		}
		if s.OnProgressUpdate != nil {
			s.OnProgressUpdate(progress)
		}
	}
	return nil
}

func (s *Sequencer) requestOverride(progress float64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.override = &progress
	s.request++
	return s.request
}

// waitFrame renders the override into the export surface on the next
// scheduler callback.
func (s *Sequencer) waitFrame(ctx context.Context) error {
	done := make(chan error, 1)
	h := s.opts.ExportScheduler.ScheduleFrame(func(time.Time) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.state != Exporting || s.override == nil {
			done <- fmt.Errorf("capture: export no longer active")
			return
		}
		if err := s.render(s.exportSurface, *s.override/100); err != nil {
			done <- err
			return
		}
		s.generation = s.request
		done <- nil
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.opts.ExportScheduler.Cancel(h)
		return ctx.Err()
	}
}

func (s *Sequencer) captureSurface(req uint64) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != req {
		return nil, ErrStaleFrame
	}
	frame := s.opts.Pool.Acquire(s.opts.Width, s.opts.Height)
	copy(frame.Pix, s.exportSurface.Pix)
	return frame, nil
}
