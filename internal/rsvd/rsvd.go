// Package rsvd computes an approximate truncated singular value decomposition
// with a randomized range finder.
package rsvd

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

type RSVD struct {
	w, h            int
	oversamples     int
	powerIterations int
	seed            uint64
}

// New prepares a randomized decomposition of a matrix with h rows and w columns.
// The same seed always draws the same test matrix.
func New(w, h, oversamples, powerIterations int, seed uint64) *RSVD {
	return &RSVD{
		w:               w,
		h:               h,
		oversamples:     max(0, oversamples),
		powerIterations: max(0, powerIterations),
		seed:            seed,
	}
}

// Exec approximates the first k singular triplets of data (row-major, h x w).
// It returns the k approximate singular values and the reconstruction
// U_k * Σ_k * V_k^T as a new row-major slice.
func (r *RSVD) Exec(data []float64, k int) (s []float64, recon []float64, err error) {
	w, h := r.w, r.h
	if w < 1 || h < 1 {
		return nil, nil, fmt.Errorf("empty matrix %dx%d", w, h)
	}
	if len(data) != w*h {
		return nil, nil, fmt.Errorf("data length %d != %dx%d", len(data), w, h)
	}
	k = max(1, min(k, w, h))

	var a mat.Matrix = mat.NewDense(h, w, data)
	m, n := h, w
	transposed := m < n
	if transposed {
		// the range finder works on the tall orientation
		a = a.T()
		m, n = n, m
	}

	q, err := r.rangeFinder(a, m, n, min(k+r.oversamples, n))
	if err != nil {
		return nil, nil, err
	}

	// B = Q^T * A is small (l x n)
	var b mat.Dense
	b.Mul(q.T(), a)

	var f mat.SVD
	if ok := f.Factorize(&b, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("cannot factorize projected matrix")
	}
	values := f.Values(nil)
	k = min(k, len(values))

	var ub, v mat.Dense
	f.UTo(&ub)
	f.VTo(&v)

	l, _ := ub.Dims()
	var u mat.Dense
	u.Mul(q, ub.Slice(0, l, 0, k))
	vk := v.Slice(0, n, 0, k)
	sigma := mat.NewDiagDense(k, append([]float64(nil), values[:k]...))

	var res mat.Dense
	res.Product(&u, sigma, vk.T())

	recon = make([]float64, w*h)
	out := mat.NewDense(h, w, recon)
	if transposed {
		out.Copy(res.T())
	} else {
		out.Copy(&res)
	}
	return values[:k], recon, nil
}

// rangeFinder returns an m x l matrix with orthonormal columns whose range
// approximates the range of a.
func (r *RSVD) rangeFinder(a mat.Matrix, m, n, l int) (*mat.Dense, error) {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(r.seed, r.seed)}
	omega := mat.NewDense(n, l, nil)
	raw := omega.RawMatrix().Data
	for i := range raw {
		raw[i] = normal.Rand()
	}

	var y mat.Dense
	y.Mul(a, omega)
	q, err := orthonormalize(&y)
	if err != nil {
		return nil, err
	}

	for range r.powerIterations {
		var z mat.Dense
		z.Mul(a.T(), q)
		qz, err := orthonormalize(&z)
		if err != nil {
			return nil, err
		}
		y.Reset()
		y.Mul(a, qz)
		q, err = orthonormalize(&y)
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

// orthonormalize returns an orthonormal basis of the columns of x as a matrix
// of the same shape. It uses the left singular vectors so that rank-deficient
// inputs still yield orthonormal columns.
func orthonormalize(x *mat.Dense) (*mat.Dense, error) {
	var f mat.SVD
	if ok := f.Factorize(x, mat.SVDThinU); !ok {
		return nil, fmt.Errorf("cannot orthonormalize sample matrix")
	}
	var q mat.Dense
	f.UTo(&q)
	return &q, nil
}
