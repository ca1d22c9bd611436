package svd

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

type SVD struct {
	w, h int
}

func New(w, h int) *SVD {
	return &SVD{w: w, h: h}
}

// Exec factorizes data as a rectangular matrix (h rows x w columns).
// It returns the singular values in descending order and a function that
// rebuilds the rank-k approximation U_k * Σ_k * V_k^T as a new row-major slice.
// k is clamped to [0, min(w, h)].
func (svd *SVD) Exec(data []float64) (s []float64, truncate func(k int) []float64, err error) {
	w := svd.w
	h := svd.h
	if w < 1 || h < 1 {
		return nil, nil, fmt.Errorf("empty matrix %dx%d", w, h)
	}
	if len(data) != w*h {
		return nil, nil, fmt.Errorf("data length %d != %dx%d", len(data), w, h)
	}

	a := mat.NewDense(h, w, data)
	var result mat.SVD
	if ok := result.Factorize(a, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("cannot factorize")
	}

	s = result.Values(nil)
	var u, v mat.Dense
	result.UTo(&u)
	result.VTo(&v)

	truncate = func(k int) []float64 {
		k = max(0, min(k, len(s)))
		out := make([]float64, w*h)
		if k == 0 {
			return out
		}

		uk := u.Slice(0, h, 0, k)
		vk := v.Slice(0, w, 0, k)
		sigma := mat.NewDiagDense(k, append([]float64(nil), s[:k]...))

		// A_k = U_k * Σ_k * V_k^T written straight into out
		res := mat.NewDense(h, w, out)
		res.Product(uk, sigma, vk.T())
		return out
	}
	return
}
