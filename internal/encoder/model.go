package encoder

import (
	"gonum.org/v1/gonum/mat"
)

// Model maps a feature window to an embedding vector
type Model interface {
	Encode(window *mat.Dense) []float64
}

// FlattenModel returns the window rows concatenated
type FlattenModel struct{}

func (FlattenModel) Encode(window *mat.Dense) []float64 {
	r, c := window.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, window.RawRowView(i)...)
	}
	return out
}

// PadToDimModel flattens then truncates or zero-pads to Dim
type PadToDimModel struct {
	Dim int
}

func (m PadToDimModel) Encode(window *mat.Dense) []float64 {
	flat := FlattenModel{}.Encode(window)
	if len(flat) >= m.Dim {
		return flat[:m.Dim]
	}
	out := make([]float64, m.Dim)
	copy(out, flat)
	return out
}
