package capture

import (
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/ivlev/stereo2video/internal/system"
)

// Frame is one captured export frame. Image is a pooled surface owned by the
// session and must not be written to.
type Frame struct {
	Index int
	Image *image.RGBA
}

// Session holds the ordered frames of one export.
type Session struct {
	ID              string
	FPS             int
	DurationSeconds float64
	TotalFrames     int
	Frames          []Frame
	CurrentIndex    int

	pool     *system.SurfacePool
	buffered int64
	once     sync.Once
}

func newSession(fps int, duration float64, total int, pool *system.SurfacePool) *Session {
	return &Session{
		ID:              uuid.NewString(),
		FPS:             fps,
		DurationSeconds: duration,
		TotalFrames:     total,
		Frames:          make([]Frame, 0, total),
		pool:            pool,
	}
}

func (s *Session) append(img *image.RGBA) {
	s.Frames = append(s.Frames, Frame{Index: s.CurrentIndex, Image: img})
	s.CurrentIndex++
	s.buffered += int64(len(img.Pix))
}

// Complete reports whether every frame was captured.
func (s *Session) Complete() bool {
	return len(s.Frames) == s.TotalFrames
}

func (s *Session) Len() int { return len(s.Frames) }

func (s *Session) Frame(i int) *image.RGBA { return s.Frames[i].Image }

// BufferedBytes is the pixel memory currently held by the session.
func (s *Session) BufferedBytes() int64 { return s.buffered }

// Release returns every frame to the pool. It is safe to call more than once.
func (s *Session) Release() {
	s.once.Do(func() {
		for i := range s.Frames {
			s.pool.Release(s.Frames[i].Image)
			s.Frames[i].Image = nil
		}
		s.buffered = 0
	})
}
