package system

import (
	"image"
	"sync"
)

// SurfacePool переиспользует off-screen поверхности *image.RGBA одного размера,
// чтобы не выделять память под каждый кадр и не нагружать GC.
//
// В отличие от sync.Pool, пул не теряет объекты при сборке мусора: это
// позволяет считать выданные поверхности и проверять, что все они вернулись.
type SurfacePool struct {
	mu        sync.Mutex
	free      map[image.Point][]*image.RGBA
	inUse     map[*image.RGBA]struct{}
	allocated int
	maxFree   int
}

// PoolStats is a snapshot of pool occupancy.
type PoolStats struct {
	Allocated int // surfaces ever created
	InUse     int // acquired and not yet released
	Free      int // ready for reuse
}

// NewSurfacePool creates a pool. maxFreePerSize bounds how many idle
// surfaces of one size are retained (0 = unbounded).
func NewSurfacePool(maxFreePerSize int) *SurfacePool {
	return &SurfacePool{
		free:    make(map[image.Point][]*image.RGBA),
		inUse:   make(map[*image.RGBA]struct{}),
		maxFree: maxFreePerSize,
	}
}

func poolKey(w, h int) image.Point {
	return image.Point{X: w, Y: h}
}

// Acquire returns a surface of w×h from the pool, allocating only if no free
// surface of that size exists. The surface content is undefined unless it was
// freshly allocated; Release clears surfaces before they are reused.
func (p *SurfacePool) Acquire(w, h int) *image.RGBA {
	key := poolKey(w, h)

	p.mu.Lock()
	defer p.mu.Unlock()

	if list := p.free[key]; len(list) > 0 {
		s := list[len(list)-1]
		p.free[key] = list[:len(list)-1]
		p.inUse[s] = struct{}{}
		return s
	}

	s := image.NewRGBA(image.Rect(0, 0, w, h))
	p.allocated++
	p.inUse[s] = struct{}{}
	return s
}

// Release returns a surface to the pool. Releasing nil, a foreign surface or
// the same surface twice is a no-op.
func (p *SurfacePool) Release(s *image.RGBA) {
	if s == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inUse[s]; !ok {
		return
	}
	delete(p.inUse, s)

	key := poolKey(s.Rect.Dx(), s.Rect.Dy())
	if p.maxFree > 0 && len(p.free[key]) >= p.maxFree {
		p.allocated--
		return
	}
	clear(s.Pix)
	p.free[key] = append(p.free[key], s)
}

// Stats reports current occupancy.
func (p *SurfacePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	free := 0
	for _, list := range p.free {
		free += len(list)
	}
	return PoolStats{Allocated: p.allocated, InUse: len(p.inUse), Free: free}
}

// Drain drops every idle surface. Surfaces still in use are unaffected.
func (p *SurfacePool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, list := range p.free {
		p.allocated -= len(list)
		delete(p.free, key)
	}
}
