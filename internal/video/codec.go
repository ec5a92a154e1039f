package video

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ivlev/stereo2video/internal/system"
)

var ErrEncodingUnsupported = errors.New("no supported video codec")

// Container formats.
const (
	ContainerMP4  = "mp4"
	ContainerWebM = "webm"
	ContainerAVI  = "avi"
)

// MJPEGEncoder names the built-in AVI writer.
const MJPEGEncoder = "mjpeg-avi"

// Codec is a negotiated codec family bound to one concrete encoder.
type Codec struct {
	Name      string // family: hevc, h264, vp9, mjpeg
	Encoder   string // ffmpeg encoder name, or MJPEGEncoder
	Container string
	MimeType  string
	Extension string
	Hardware  bool
}

// Builtin reports whether the codec runs without ffmpeg.
func (c Codec) Builtin() bool { return c.Encoder == MJPEGEncoder }

type family struct {
	container string
	mime      string
	encoders  []string // best first; hardware variants lead
}

var families = map[string]family{
	"hevc": {
		container: ContainerMP4,
		mime:      `video/mp4; codecs="hvc1"`,
		encoders:  []string{"hevc_videotoolbox", "hevc_nvenc", "hevc_qsv", "libx265"},
	},
	"h264": {
		container: ContainerMP4,
		mime:      `video/mp4; codecs="avc1"`,
		encoders:  []string{"h264_videotoolbox", "h264_nvenc", "h264_qsv", "libx264"},
	},
	"vp9": {
		container: ContainerWebM,
		mime:      `video/webm; codecs="vp9"`,
		encoders:  []string{"vp9_qsv", "libvpx-vp9"},
	},
}

var mjpegCodec = Codec{
	Name:      "mjpeg",
	Encoder:   MJPEGEncoder,
	Container: ContainerAVI,
	MimeType:  "video/x-msvideo",
	Extension: "avi",
}

// Negotiate picks the first codec family in prefs that the host can encode.
// Within a family hardware encoders are preferred over software ones.
func Negotiate(prefs []string, caps system.Capabilities) (Codec, error) {
	for _, name := range prefs {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "mjpeg" {
			return mjpegCodec, nil
		}
		fam, ok := families[name]
		if !ok || caps.FFmpegPath == "" {
			continue
		}
		for _, enc := range fam.encoders {
			if !caps.HasEncoder(enc) {
				continue
			}
			return Codec{
				Name:      name,
				Encoder:   enc,
				Container: fam.container,
				MimeType:  fam.mime,
				Extension: fam.container,
				Hardware:  !strings.HasPrefix(enc, "lib"),
			}, nil
		}
	}
	return Codec{}, fmt.Errorf("%w: tried %s", ErrEncodingUnsupported, strings.Join(prefs, ", "))
}
