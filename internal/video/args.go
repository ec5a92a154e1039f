package video

import (
	"fmt"
	"strconv"
)

// ScaleFilter builds the ffmpeg filter chain that resizes the raw RGBA input
// to the output size and converts it for the encoder.
func ScaleFilter(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:flags=lanczos,format=yuv420p", w, h)
}

// buildFFmpegArgs returns the ffmpeg command line that reads raw RGBA frames
// on stdin and writes a streamable container to stdout.
func buildFFmpegArgs(c Codec, cfg RecorderConfig) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", cfg.InputWidth, cfg.InputHeight),
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", "pipe:0",
		"-vf", ScaleFilter(cfg.Width, cfg.Height),
		"-c:v", c.Encoder,
		"-b:v", fmt.Sprintf("%dk", cfg.BitrateKbps),
	}

	// Настройки в зависимости от энкодера
	switch c.Encoder {
	case "libx264", "libx265":
		args = append(args, "-preset", "medium")
	case "h264_nvenc", "hevc_nvenc":
		args = append(args, "-preset", "p4")
	case "libvpx-vp9":
		args = append(args, "-deadline", "good", "-row-mt", "1")
	}
	if c.Name == "hevc" {
		args = append(args, "-tag:v", "hvc1")
	}

	switch c.Container {
	case ContainerMP4:
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof", "-f", "mp4")
	case ContainerWebM:
		args = append(args, "-f", "webm")
	}
	return append(args, "pipe:1")
}
