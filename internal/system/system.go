package system

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Ограничения размера кадра. У аппаратных энкодеров предел ниже, чем у
// программных.
const (
	HardwareMaxTextureSize = 4096
	SoftwareMaxTextureSize = 8192
)

// Capabilities is a read-only snapshot of what the host can encode.
type Capabilities struct {
	MaxTextureSize      int
	HardwareAccelerated bool
	VendorID            string
	RendererID          string
	Platform            string
	FFmpegPath          string   // empty when ffmpeg is not installed
	Encoders            []string // ffmpeg video encoder names
	TotalMemory         uint64
	AvailableMemory     uint64
}

// HasEncoder reports whether ffmpeg lists the named encoder.
func (c Capabilities) HasEncoder(name string) bool {
	for _, e := range c.Encoders {
		if e == name {
			return true
		}
	}
	return false
}

// hardware encoder suffix -> vendor, renderer
var hardwareFamilies = []struct {
	suffix   string
	vendor   string
	renderer string
}{
	{"_videotoolbox", "apple", "VideoToolbox"},
	{"_nvenc", "nvidia", "NVENC"},
	{"_qsv", "intel", "QuickSync"},
	{"_amf", "amd", "AMF"},
	{"_vaapi", "vaapi", "VA-API"},
}

// CapabilityProbe queries the host once and caches the result.
type CapabilityProbe struct {
	FFmpegPath string

	// listEncoders is replaceable in tests.
	listEncoders func(ctx context.Context, ffmpeg string) (string, error)

	once sync.Once
	caps Capabilities
}

// NewCapabilityProbe creates a probe for the given ffmpeg binary name or path.
func NewCapabilityProbe(ffmpegPath string) *CapabilityProbe {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &CapabilityProbe{FFmpegPath: ffmpegPath, listEncoders: runListEncoders}
}

// Capabilities returns the snapshot, probing on first use.
func (p *CapabilityProbe) Capabilities(ctx context.Context) Capabilities {
	p.once.Do(func() {
		p.caps = p.probe(ctx)
	})
	return p.caps
}

func (p *CapabilityProbe) probe(ctx context.Context) Capabilities {
	caps := Capabilities{
		MaxTextureSize: SoftwareMaxTextureSize,
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
	}

	if path, err := exec.LookPath(p.FFmpegPath); err == nil {
		caps.FFmpegPath = path
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		out, err := p.listEncoders(probeCtx, path)
		cancel()
		if err == nil {
			caps.Encoders = ParseEncoders(out)
		}
	}

	for _, fam := range hardwareFamilies {
		for _, e := range caps.Encoders {
			if strings.HasSuffix(e, fam.suffix) {
				caps.HardwareAccelerated = true
				caps.VendorID = fam.vendor
				caps.RendererID = fam.renderer
				caps.MaxTextureSize = HardwareMaxTextureSize
				break
			}
		}
		if caps.HardwareAccelerated {
			break
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		caps.TotalMemory = vm.Total
		caps.AvailableMemory = vm.Available
	}

	if !caps.HardwareAccelerated {
		caps.VendorID = "software"
		caps.RendererID = "cpu"
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
			if infos[0].VendorID != "" {
				caps.VendorID = infos[0].VendorID
			}
			if infos[0].ModelName != "" {
				caps.RendererID = infos[0].ModelName
			}
		}
	}

	if hi, err := host.InfoWithContext(ctx); err == nil && hi.Platform != "" {
		caps.Platform = fmt.Sprintf("%s %s/%s", hi.Platform, hi.OS, hi.KernelArch)
	}

	return caps
}

func runListEncoders(ctx context.Context, ffmpeg string) (string, error) {
	cmd := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-encoders")
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// ParseEncoders extracts video encoder names from `ffmpeg -encoders` output.
//
//	V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
func ParseEncoders(out string) []string {
	var names []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		flags := fields[0]
		if len(flags) != 6 || flags[0] != 'V' || fields[1] == "=" {
			continue
		}
		names = append(names, fields[1])
	}
	return names
}

// imageExtensions lists the raster formats the source loader understands.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".tif", ".tiff", ".pdf"}

// IsImageFile reports whether the name has a supported raster extension.
func IsImageFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindLatestImage ищет самое свежее изображение в директории.
func FindLatestImage(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !IsImageFile(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено изображений", dir)
	}

	return latestFile, nil
}
