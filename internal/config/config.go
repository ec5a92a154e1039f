package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Motion types understood by the motion engine.
const (
	MotionZoomIn   = "zoom_in"
	MotionZoomOut  = "zoom_out"
	MotionPanLeft  = "pan_left"
	MotionPanRight = "pan_right"
)

// Spin directions.
const (
	SpinClockwise        = "clockwise"
	SpinCounterclockwise = "counterclockwise"
)

// Easing curves applied to animation progress.
const (
	EasingLinear    = "linear"
	EasingEaseInOut = "ease_in_out"
)

// Quality tiers bound the export resolution.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
	QualityUltra  = "ultra"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// StereoParams drives depth synthesis and the composite layout.
type StereoParams struct {
	HorizontalDisplace float64 `yaml:"horizontal_displace"` // max parallax, px
	StarShiftAmount    float64 `yaml:"star_shift_amount"`   // uniform star layer shift, px
	LuminanceBlur      float64 `yaml:"luminance_blur"`      // depth blur radius, px
	ContrastBoost      float64 `yaml:"contrast_boost"`      // channel multiplier, >= 1
	StereoSpacing      int     `yaml:"stereo_spacing"`      // gap between eyes, px
	BorderSize         int     `yaml:"border_size"`         // black margin, px
}

// AnimationSettings drives the per-frame camera transform.
type AnimationSettings struct {
	MotionType    string  `yaml:"motion_type"`
	Speed         float64 `yaml:"speed"`
	Amplification float64 `yaml:"amplification"` // percent
	Spin          float64 `yaml:"spin"`          // degrees over the whole clip
	SpinDirection string  `yaml:"spin_direction"`
	Easing        string  `yaml:"easing"`
}

// ExportConfig describes one export run.
type ExportConfig struct {
	Width            int           `yaml:"width"`  // 0 = derive from composite
	Height           int           `yaml:"height"` // 0 = derive from composite
	FPS              int           `yaml:"fps"`
	DurationSeconds  float64       `yaml:"duration"`
	Bitrate          int           `yaml:"bitrate"` // kbit/s, 0 = derive
	QualityTier      string        `yaml:"quality"`
	Codecs           []string      `yaml:"codecs"`
	RealtimePacing   bool          `yaml:"realtime_pacing"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	MaxBufferedBytes int64         `yaml:"max_buffered_bytes"` // 0 = derive from host memory
	ShareURL         string        `yaml:"share_url"`
}

// Config is the root settings document.
type Config struct {
	StarlessPath string            `yaml:"starless"`
	StarsPath    string            `yaml:"stars"`
	OutputVideo  string            `yaml:"output"`
	LogLevel     string            `yaml:"log_level"`
	ShowStats    bool              `yaml:"show_stats"`
	BuildVersion string            `yaml:"-"`
	Stereo       StereoParams      `yaml:"stereo"`
	Animation    AnimationSettings `yaml:"animation"`
	Export       ExportConfig      `yaml:"export"`
}

// DefaultCodecs is the codec preference list, best first.
var DefaultCodecs = []string{"hevc", "h264", "vp9", "mjpeg"}

func DefaultStereoParams() StereoParams {
	return StereoParams{
		HorizontalDisplace: 20,
		StarShiftAmount:    0,
		LuminanceBlur:      0,
		ContrastBoost:      1.0,
		StereoSpacing:      20,
		BorderSize:         0,
	}
}

func DefaultAnimationSettings() AnimationSettings {
	return AnimationSettings{
		MotionType:    MotionZoomIn,
		Speed:         1.0,
		Amplification: 20,
		Spin:          0,
		SpinDirection: SpinClockwise,
		Easing:        EasingLinear,
	}
}

func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		FPS:             30,
		DurationSeconds: 10,
		QualityTier:     QualityHigh,
		Codecs:          append([]string(nil), DefaultCodecs...),
		RealtimePacing:  true,
		SettleDelay:     250 * time.Millisecond,
	}
}

func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Stereo:    DefaultStereoParams(),
		Animation: DefaultAnimationSettings(),
		Export:    DefaultExportConfig(),
	}
}

// NewStereoParams validates p and returns it.
func NewStereoParams(p StereoParams) (StereoParams, error) {
	return p, p.Validate()
}

// NewAnimationSettings fills empty enum fields with defaults and validates.
func NewAnimationSettings(a AnimationSettings) (AnimationSettings, error) {
	a.normalize()
	return a, a.Validate()
}

func (p StereoParams) Validate() error {
	switch {
	case !finite(p.HorizontalDisplace):
		return fmt.Errorf("%w: horizontal_displace must be finite", ErrInvalidConfig)
	case !finite(p.StarShiftAmount):
		return fmt.Errorf("%w: star_shift_amount must be finite", ErrInvalidConfig)
	case !finite(p.LuminanceBlur) || p.LuminanceBlur < 0:
		return fmt.Errorf("%w: luminance_blur must be >= 0, got %v", ErrInvalidConfig, p.LuminanceBlur)
	case !finite(p.ContrastBoost) || p.ContrastBoost < 1.0:
		return fmt.Errorf("%w: contrast_boost must be >= 1.0, got %v", ErrInvalidConfig, p.ContrastBoost)
	case p.StereoSpacing < 0:
		return fmt.Errorf("%w: stereo_spacing must be >= 0, got %d", ErrInvalidConfig, p.StereoSpacing)
	case p.BorderSize < 0:
		return fmt.Errorf("%w: border_size must be >= 0, got %d", ErrInvalidConfig, p.BorderSize)
	}
	return nil
}

func (a *AnimationSettings) normalize() {
	a.MotionType = strings.ToLower(strings.TrimSpace(a.MotionType))
	a.SpinDirection = strings.ToLower(strings.TrimSpace(a.SpinDirection))
	a.Easing = strings.ToLower(strings.TrimSpace(a.Easing))
	if a.MotionType == "" {
		a.MotionType = MotionZoomIn
	}
	if a.SpinDirection == "" {
		a.SpinDirection = SpinClockwise
	}
	if a.Easing == "" {
		a.Easing = EasingLinear
	}
	if a.Speed == 0 {
		a.Speed = 1.0
	}
}

func (a AnimationSettings) Validate() error {
	switch a.MotionType {
	case MotionZoomIn, MotionZoomOut, MotionPanLeft, MotionPanRight:
	default:
		return fmt.Errorf("%w: unknown motion_type %q", ErrInvalidConfig, a.MotionType)
	}
	switch a.SpinDirection {
	case SpinClockwise, SpinCounterclockwise:
	default:
		return fmt.Errorf("%w: unknown spin_direction %q", ErrInvalidConfig, a.SpinDirection)
	}
	switch a.Easing {
	case EasingLinear, EasingEaseInOut:
	default:
		return fmt.Errorf("%w: unknown easing %q", ErrInvalidConfig, a.Easing)
	}
	if !finite(a.Speed) || a.Speed <= 0 {
		return fmt.Errorf("%w: speed must be > 0, got %v", ErrInvalidConfig, a.Speed)
	}
	if !finite(a.Amplification) || a.Amplification < 0 {
		return fmt.Errorf("%w: amplification must be >= 0, got %v", ErrInvalidConfig, a.Amplification)
	}
	if !finite(a.Spin) || a.Spin < 0 {
		return fmt.Errorf("%w: spin must be >= 0, got %v", ErrInvalidConfig, a.Spin)
	}
	return nil
}

// TotalFrames returns ceil(fps * duration).
func (e ExportConfig) TotalFrames() int {
	if e.FPS <= 0 || e.DurationSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(float64(e.FPS) * e.DurationSeconds))
}

func (e ExportConfig) Validate() error {
	if e.FPS <= 0 {
		return fmt.Errorf("%w: fps must be > 0, got %d", ErrInvalidConfig, e.FPS)
	}
	if !finite(e.DurationSeconds) || e.DurationSeconds < 0 {
		return fmt.Errorf("%w: duration must be >= 0, got %v", ErrInvalidConfig, e.DurationSeconds)
	}
	if e.Width < 0 || e.Height < 0 {
		return fmt.Errorf("%w: negative export size %dx%d", ErrInvalidConfig, e.Width, e.Height)
	}
	if e.Bitrate < 0 {
		return fmt.Errorf("%w: bitrate must be >= 0, got %d", ErrInvalidConfig, e.Bitrate)
	}
	switch e.QualityTier {
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
	default:
		return fmt.Errorf("%w: unknown quality tier %q", ErrInvalidConfig, e.QualityTier)
	}
	if len(e.Codecs) == 0 {
		return fmt.Errorf("%w: codec preference list is empty", ErrInvalidConfig)
	}
	if e.SettleDelay < 0 {
		return fmt.Errorf("%w: settle_delay must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Validate normalises enum fields and checks every section.
func (c *Config) Validate() error {
	c.Animation.normalize()
	c.Export.QualityTier = strings.ToLower(strings.TrimSpace(c.Export.QualityTier))
	for i, codec := range c.Export.Codecs {
		c.Export.Codecs[i] = strings.ToLower(strings.TrimSpace(codec))
	}
	if err := c.Stereo.Validate(); err != nil {
		return err
	}
	if err := c.Animation.Validate(); err != nil {
		return err
	}
	return c.Export.Validate()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
