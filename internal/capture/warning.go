package capture

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoFrames         = errors.New("export has no frames to capture")
	ErrExportInProgress = errors.New("export already in progress")
	ErrStaleFrame       = errors.New("captured surface does not match the requested frame")
)

// ResourceExhaustionWarning reports that an export will buffer more pixel
// memory than allowed. Capture continues; the suggestion is a resolution
// whose frames would fit.
type ResourceExhaustionWarning struct {
	ProjectedBytes  int64
	BudgetBytes     int64
	SuggestedWidth  int
	SuggestedHeight int
}

func (w *ResourceExhaustionWarning) Error() string {
	return fmt.Sprintf("export needs %d MiB of frame memory, budget is %d MiB; try %dx%d",
		w.ProjectedBytes>>20, w.BudgetBytes>>20, w.SuggestedWidth, w.SuggestedHeight)
}

// suggestResolution shrinks w×h so that total frames fit the budget.
func suggestResolution(w, h, total int, budget int64) (int, int) {
	projected := float64(w) * float64(h) * 4 * float64(total)
	if projected <= 0 || budget <= 0 {
		return evenFloor(w), evenFloor(h)
	}
	k := math.Sqrt(float64(budget) / projected)
	if k > 1 {
		k = 1
	}
	return evenFloor(int(float64(w) * k)), evenFloor(int(float64(h) * k))
}

func evenFloor(v int) int {
	v &^= 1
	if v < 2 {
		return 2
	}
	return v
}
