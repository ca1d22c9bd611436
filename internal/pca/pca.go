// Package pca reconstructs a plane from the principal components of its
// non-overlapping square patches.
package pca

import (
	"errors"
	"fmt"

	"github.com/yyyoichi/svdlab/internal/patch"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrTooFewPatches = errors.New("too few patches")

type Patches struct {
	w, h, size int
}

func New(w, h, size int) *Patches {
	return &Patches{w: w, h: h, size: size}
}

// Cropped returns the dimensions of the area covered by whole patches.
func (p *Patches) Cropped() (w, h int) {
	return patch.NewBlockMap(p.w, p.h, p.size).Cropped()
}

// Exec fits a PCA on the patches of data (row-major, w x h) and rebuilds each
// patch from its first k components. The returned plane has the cropped
// dimensions and is not clipped. ratios holds the explained-variance ratio of
// every retained component in descending order.
func (p *Patches) Exec(data []float64, k int) (recon []float64, ratios []float64, err error) {
	if p.size < 1 {
		return nil, nil, fmt.Errorf("invalid patch size %d", p.size)
	}
	if len(data) != p.w*p.h {
		return nil, nil, fmt.Errorf("data length %d != %dx%d", len(data), p.w, p.h)
	}
	bm := patch.NewBlockMap(p.w, p.h, p.size)
	n, d := bm.Count(), bm.Dim()
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: %d patches of %dx%d", ErrTooFewPatches, n, p.size, p.size)
	}

	x := mat.NewDense(n, d, bm.Gather(data))

	mean := make([]float64, d)
	col := make([]float64, n)
	for j := range d {
		mat.Col(col, j, x)
		mean[j] = stat.Mean(col, nil)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, nil, fmt.Errorf("cannot compute principal components")
	}
	vars := pc.VarsTo(nil)
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	k = max(1, min(k, len(vars)))
	vk := vecs.Slice(0, d, 0, k)

	// center
	for i := range n {
		floats.Sub(x.RawRowView(i), mean)
	}
	var scores, rec mat.Dense
	scores.Mul(x, vk)
	rec.Mul(&scores, vk.T())
	for i := range n {
		floats.Add(rec.RawRowView(i), mean)
	}

	total := floats.Sum(vars)
	ratios = make([]float64, k)
	if total > 0 {
		floats.ScaleTo(ratios, 1/total, vars[:k])
	}
	return bm.Scatter(rec.RawMatrix().Data), ratios, nil
}
