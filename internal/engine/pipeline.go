// Package engine wires the stereo pipeline together for one pair of images:
// depth and views are cached per StereoParams, frames come from the capture
// sequencer and go out through the video encoder.
package engine

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/stereo2video/internal/capture"
	"github.com/ivlev/stereo2video/internal/config"
	"github.com/ivlev/stereo2video/internal/depth"
	"github.com/ivlev/stereo2video/internal/logging"
	"github.com/ivlev/stereo2video/internal/renderer"
	"github.com/ivlev/stereo2video/internal/source"
	"github.com/ivlev/stereo2video/internal/stereo"
	"github.com/ivlev/stereo2video/internal/system"
	"github.com/ivlev/stereo2video/internal/video"
)

// Stages reported through OnProgress.
const (
	StageCapture = "capture"
	StageEncode  = "encode"
)

// Options configures a Pipeline. Zero values get defaults.
type Options struct {
	Probe  *system.CapabilityProbe
	Pool   *system.SurfacePool
	Logger *zerolog.Logger
}

// Pipeline renders, captures and encodes one source pair.
type Pipeline struct {
	probe  *system.CapabilityProbe
	pool   *system.SurfacePool
	logger zerolog.Logger

	mu        sync.Mutex
	cfg       config.Config
	pair      *source.Pair
	cache     []viewEntry // most recent first
	exporting atomic.Bool

	// OnWarning receives recoverable problems: clamped transforms, memory
	// pressure.
	OnWarning func(error)
	// OnProgress reports export progress per stage.
	OnProgress func(stage string, done, total int)
}

type viewKey struct {
	params config.StereoParams
	w, h   int
}

type viewEntry struct {
	key   viewKey
	views *stereo.Views
}

// viewCacheSize holds the preview views and the downscaled export views.
const viewCacheSize = 2

// New creates a pipeline for pair. cfg is validated and copied.
func New(pair *source.Pair, cfg *config.Config, opts Options) (*Pipeline, error) {
	if pair == nil {
		return nil, fmt.Errorf("engine: source pair is required")
	}
	c := *cfg
	c.Export.Codecs = append([]string(nil), cfg.Export.Codecs...)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{probe: opts.Probe, pool: opts.Pool, cfg: c, pair: pair}
	if p.probe == nil {
		p.probe = system.NewCapabilityProbe("")
	}
	if p.pool == nil {
		p.pool = system.NewSurfacePool(0)
	}
	if opts.Logger != nil {
		p.logger = logging.WithComponent(*opts.Logger, "engine")
	} else {
		p.logger = logging.Nop()
	}
	return p, nil
}

// Load reads the source pair named in cfg and creates a pipeline.
func Load(cfg *config.Config, opts Options) (*Pipeline, error) {
	pair, err := source.LoadPair(cfg.StarlessPath, cfg.StarsPath, source.DefaultDPI)
	if err != nil {
		return nil, err
	}
	return New(pair, cfg, opts)
}

// Config returns a copy of the current settings.
func (p *Pipeline) Config() config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *Pipeline) Pool() *system.SurfacePool { return p.pool }

// SetStereoParams replaces the stereo parameters. Cached views are rebuilt
// on next use if the parameters changed.
func (p *Pipeline) SetStereoParams(sp config.StereoParams) error {
	sp, err := config.NewStereoParams(sp)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Stereo = sp
	return nil
}

// SetAnimation replaces the animation settings. Views stay cached.
func (p *Pipeline) SetAnimation(a config.AnimationSettings) error {
	a, err := config.NewAnimationSettings(a)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Animation = a
	return nil
}

// SetSource swaps the source pair and drops cached views.
func (p *Pipeline) SetSource(pair *source.Pair) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pair = pair
	p.cache = nil
}

// Views returns the stereo views for the current parameters at source size.
func (p *Pipeline) Views() (*stereo.Views, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewsLocked(p.pair, p.cfg.Stereo)
}

func (p *Pipeline) viewsLocked(pair *source.Pair, sp config.StereoParams) (*stereo.Views, error) {
	key := viewKey{params: sp, w: pair.Width, h: pair.Height}
	for i, e := range p.cache {
		if e.key == key {
			copy(p.cache[1:i+1], p.cache[:i])
			p.cache[0] = e
			return e.views, nil
		}
	}

	start := time.Now()
	dm := depth.Build(pair.Background, sp.LuminanceBlur)
	views, err := stereo.Synthesize(pair, dm, sp)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().
		Str("size", fmt.Sprintf("%dx%d", pair.Width, pair.Height)).
		Dur("took", time.Since(start)).
		Msg("stereo views built")

	p.cache = append([]viewEntry{{key: key, views: views}}, p.cache...)
	if len(p.cache) > viewCacheSize {
		p.cache = p.cache[:viewCacheSize]
	}
	return views, nil
}

// frameSource bundles what one regime needs to render frames.
type frameSource struct {
	render *renderer.Renderer
	anim   config.AnimationSettings
	width  int // view width
}

func (f *frameSource) Render(dst *image.RGBA, progress float64) error {
	return f.render.Render(dst, renderer.Transform(progress, f.anim, f.width))
}

func (p *Pipeline) newFrameSource(pair *source.Pair, sp config.StereoParams) (*frameSource, error) {
	p.mu.Lock()
	views, err := p.viewsLocked(pair, sp)
	anim := p.cfg.Animation
	shareURL := p.cfg.Export.ShareURL
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r, err := renderer.New(views, sp, shareURL)
	if err != nil {
		return nil, err
	}
	r.OnWarning = p.warn
	return &frameSource{render: r, anim: anim, width: pair.Width}, nil
}

// RenderFrame draws the composite at progress ∈ [0,1] for the current
// settings into a new image.
func (p *Pipeline) RenderFrame(progress float64) (*image.RGBA, error) {
	p.mu.Lock()
	pair, sp := p.pair, p.cfg.Stereo
	p.mu.Unlock()

	fs, err := p.newFrameSource(pair, sp)
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(fs.render.Layout().Bounds())
	if err := fs.Render(dst, progress); err != nil {
		return nil, err
	}
	return dst, nil
}

// Preview runs the live regime to completion and returns its last frame.
// onFrame, if set, is called with the live progress in percent.
func (p *Pipeline) Preview(ctx context.Context, onFrame func(percent float64)) (*image.RGBA, error) {
	cfg := p.Config()
	p.mu.Lock()
	pair := p.pair
	p.mu.Unlock()

	fs, err := p.newFrameSource(pair, cfg.Stereo)
	if err != nil {
		return nil, err
	}
	w, h := fs.render.Layout().Size()

	seq, err := capture.NewSequencer(fs.Render, capture.Options{
		Width:     w,
		Height:    h,
		Duration:  time.Duration(cfg.Export.DurationSeconds * float64(time.Second)),
		Speed:     cfg.Animation.Speed,
		Scheduler: capture.NewTimerScheduler(capture.FrameInterval(cfg.Export.FPS)),
		Pool:      p.pool,
		Logger:    &p.logger,
	})
	if err != nil {
		return nil, err
	}
	seq.OnWarning = p.warn
	seq.OnProgressUpdate = onFrame

	if err := seq.Play(); err != nil {
		return nil, err
	}
	defer seq.Stop()

	if err := seq.Wait(ctx); err != nil {
		return nil, err
	}
	frame := seq.Snapshot()
	if frame == nil {
		return nil, fmt.Errorf("preview produced no frame")
	}
	return frame, nil
}

func (p *Pipeline) warn(err error) {
	p.logger.Warn().Err(err).Msg("recoverable problem")
	if p.OnWarning != nil {
		p.OnWarning(err)
	}
}

func (p *Pipeline) progress(stage string, done, total int) {
	if p.OnProgress != nil {
		p.OnProgress(stage, done, total)
	}
}

// exportGeometry picks the output size and the working pair for an export.
// The configured size (or the tier limit) is a bounding box. When the
// composite does not fit, the views are downscaled first, with spacing and
// border kept at their pixel size, and the pixel-valued stereo parameters
// scaled with them. The output then takes the aspect of the working
// composite, so the final scaler never stretches one axis.
func (p *Pipeline) exportGeometry(caps system.Capabilities, pair *source.Pair, cfg config.Config) (outW, outH int, work *source.Pair, sp config.StereoParams) {
	cw, ch := renderer.NewLayout(pair.Width, pair.Height, cfg.Stereo).Size()

	var boxW, boxH int
	if cfg.Export.Width > 0 && cfg.Export.Height > 0 {
		boxW, boxH = evenFloor(cfg.Export.Width), evenFloor(cfg.Export.Height)
	} else {
		boxW, boxH = system.CalculateOptimalResolution(cw, ch, caps, cfg.Export.QualityTier)
	}

	fixedW := cfg.Stereo.StereoSpacing + 2*cfg.Stereo.BorderSize
	fixedH := 2 * cfg.Stereo.BorderSize
	kx := float64(boxW-fixedW) / float64(2*pair.Width)
	ky := float64(boxH-fixedH) / float64(pair.Height)
	k := math.Min(math.Min(kx, ky), 1)

	work, sp = pair, cfg.Stereo
	// small mismatches are left to the output scaler
	if k < 0.95 {
		k = math.Max(k, 0)
		vw := max(1, int(math.Floor(float64(pair.Width)*k+1e-9)))
		vh := max(1, int(math.Floor(float64(pair.Height)*k+1e-9)))
		work = pair.Downscale(vw, vh)
		sp.HorizontalDisplace *= k
		sp.StarShiftAmount *= k
		sp.LuminanceBlur *= k
		cw, ch = renderer.NewLayout(vw, vh, cfg.Stereo).Size()
	}

	outW, outH = fitAspect(cw, ch, boxW, boxH)
	return outW, outH, work, sp
}

// fitAspect returns the largest even size inside boxW×boxH with the aspect of
// w×h. The height follows the width, so it is off by at most one pixel.
func fitAspect(w, h, boxW, boxH int) (int, int) {
	s := math.Min(float64(boxW)/float64(w), float64(boxH)/float64(h))
	outW := evenFloor(int(math.Floor(float64(w)*s + 1e-9)))
	outH := evenRound(float64(outW) * float64(h) / float64(w))
	if outH > boxH {
		outH = evenFloor(boxH)
	}
	return outW, outH
}

func evenFloor(v int) int {
	v &^= 1
	if v < 2 {
		return 2
	}
	return v
}

func evenRound(v float64) int {
	return max(2, int(math.Round(v/2))*2)
}

// bufferBudget returns the configured frame-memory budget, or half of the
// available host memory.
func bufferBudget(cfg config.ExportConfig, caps system.Capabilities) int64 {
	if cfg.MaxBufferedBytes > 0 {
		return cfg.MaxBufferedBytes
	}
	return int64(caps.AvailableMemory / 2)
}

// Export captures every frame and encodes them. Only one export may run at
// a time; a second call returns capture.ErrExportInProgress.
func (p *Pipeline) Export(ctx context.Context) (*video.EncodedOutput, *Stats, error) {
	if !p.exporting.CompareAndSwap(false, true) {
		return nil, nil, capture.ErrExportInProgress
	}
	defer p.exporting.Store(false)

	cfg := p.Config()
	total := cfg.Export.TotalFrames()
	if total == 0 {
		return nil, nil, capture.ErrNoFrames
	}

	stats := &Stats{Build: cfg.BuildVersion, Input: cfg.StarlessPath, Frames: total}
	started := time.Now()

	caps := p.probe.Capabilities(ctx)
	p.mu.Lock()
	pair := p.pair
	p.mu.Unlock()

	outW, outH, work, sp := p.exportGeometry(caps, pair, cfg)
	log := p.logger.With().Str("output", fmt.Sprintf("%dx%d", outW, outH)).Logger()
	log.Info().
		Int("frames", total).
		Str("source", fmt.Sprintf("%dx%d", pair.Width, pair.Height)).
		Str("working", fmt.Sprintf("%dx%d", work.Width, work.Height)).
		Str("renderer", caps.RendererID).
		Bool("hardware", caps.HardwareAccelerated).
		Msg("export")

	fs, err := p.newFrameSource(work, sp)
	if err != nil {
		return nil, nil, err
	}
	w, h := fs.render.Layout().Size()

	seq, err := capture.NewSequencer(fs.Render, capture.Options{
		Width:     w,
		Height:    h,
		Duration:  time.Duration(cfg.Export.DurationSeconds * float64(time.Second)),
		Speed:     cfg.Animation.Speed,
		Scheduler: capture.NewTimerScheduler(0),
		Pool:      p.pool,
		Logger:    &log,
	})
	if err != nil {
		return nil, nil, err
	}
	seq.OnWarning = p.warn
	seq.OnFrameRendered = func(index, n int) { p.progress(StageCapture, index, n) }

	exportCfg := cfg.Export
	exportCfg.MaxBufferedBytes = bufferBudget(cfg.Export, caps)

	captureStart := time.Now()
	session, err := seq.Export(ctx, exportCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("capture: %w", err)
	}
	stats.Capture = time.Since(captureStart)
	stats.Session = session.ID

	enc := video.NewEncoder(caps, log)
	enc.OnFrameEncoded = func(index, n int) { p.progress(StageEncode, index, n) }

	encodeStart := time.Now()
	out, err := enc.Encode(ctx, session, video.Options{
		Codecs:         cfg.Export.Codecs,
		Width:          outW,
		Height:         outH,
		FPS:            cfg.Export.FPS,
		BitrateKbps:    cfg.Export.Bitrate,
		QualityTier:    cfg.Export.QualityTier,
		RealtimePacing: cfg.Export.RealtimePacing,
		SettleDelay:    cfg.Export.SettleDelay,
	})
	if err != nil {
		return nil, nil, err
	}
	stats.Encode = time.Since(encodeStart)
	stats.Total = time.Since(started)
	stats.fill(out)

	return out, stats, nil
}
