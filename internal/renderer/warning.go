package renderer

import (
	"fmt"
	"strings"
)

// ClampedField records one transform component replaced during sanitising.
type ClampedField struct {
	Name string
	Got  float64
	Used float64
}

// DegenerateTransformWarning reports a transform that could not be drawn as
// given. Rendering continues with the clamped values.
type DegenerateTransformWarning struct {
	Fields []ClampedField
}

func (w *DegenerateTransformWarning) Error() string {
	parts := make([]string, len(w.Fields))
	for i, f := range w.Fields {
		parts[i] = fmt.Sprintf("%s %v -> %v", f.Name, f.Got, f.Used)
	}
	return "degenerate transform clamped: " + strings.Join(parts, ", ")
}
