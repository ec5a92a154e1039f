package system

import "github.com/ivlev/stereo2video/internal/config"

// TierLimit is the largest frame a quality tier may produce.
type TierLimit struct {
	MaxWidth  int
	MaxHeight int
	BitsPerPx float64 // software encoder bits per pixel per frame
}

var tierLimits = map[string]TierLimit{
	config.QualityLow:    {MaxWidth: 1280, MaxHeight: 720, BitsPerPx: 0.06},
	config.QualityMedium: {MaxWidth: 1920, MaxHeight: 1080, BitsPerPx: 0.08},
	config.QualityHigh:   {MaxWidth: 3840, MaxHeight: 2160, BitsPerPx: 0.1},
	config.QualityUltra:  {MaxWidth: 7680, MaxHeight: 4320, BitsPerPx: 0.12},
}

// LimitForTier returns the limits of a tier, falling back to high.
func LimitForTier(tier string) TierLimit {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits[config.QualityHigh]
}

// CalculateOptimalResolution clamps the source size to the host and tier
// limits, preserving aspect ratio. Both results are even and at least 2.
func CalculateOptimalResolution(srcW, srcH int, caps Capabilities, tier string) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 2, 2
	}
	limit := LimitForTier(tier)
	maxSide := caps.MaxTextureSize
	if maxSide <= 0 {
		maxSide = SoftwareMaxTextureSize
	}

	w := min(srcW, maxSide, limit.MaxWidth)
	h := w * srcH / srcW

	if maxH := min(srcH, maxSide, limit.MaxHeight); h > maxH {
		h = maxH
		w = h * srcW / srcH
	}

	return evenFloor(w), evenFloor(h)
}

func evenFloor(v int) int {
	v -= v % 2
	if v < 2 {
		return 2
	}
	return v
}

// RecommendBitrate returns a target bitrate in kbit/s for the frame size.
// Hardware encoders get a quarter more headroom since they compress less
// efficiently at the same bitrate.
func RecommendBitrate(w, h, fps int, caps Capabilities, tier string) int {
	bpp := LimitForTier(tier).BitsPerPx
	if caps.HardwareAccelerated {
		bpp *= 1.25
	}
	kbps := int(float64(w*h*fps) * bpp / 1000)
	return max(kbps, 500)
}
