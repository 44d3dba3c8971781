package astrohelion

import (
	"errors"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// EigenPair is an eigenvalue and its right eigenvector.
type EigenPair struct {
	Value  complex128
	Vector []complex128
}

// Eigen returns the eigenpairs of a square matrix, sorted into reciprocal pairs: each pair of
// consecutive values has a product as close to one as possible, and pairs are ordered by decreasing
// magnitude of their largest member.
func Eigen(m mat.Matrix) ([]EigenPair, error) {
	r, c := m.Dims()
	if r != c {
		return nil, errors.New("eigen decomposition of a non square matrix")
	}
	var eig mat.Eigen
	if ok := eig.Factorize(m, mat.EigenRight); !ok {
		return nil, errors.New("eigen decomposition did not converge")
	}
	vals := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)
	pairs := make([]EigenPair, len(vals))
	for j, v := range vals {
		vec := make([]complex128, r)
		for i := range vec {
			vec[i] = vecs.At(i, j)
		}
		pairs[j] = EigenPair{v, vec}
	}
	return sortReciprocal(pairs), nil
}

func sortReciprocal(pairs []EigenPair) []EigenPair {
	left := append([]EigenPair(nil), pairs...)
	sort.SliceStable(left, func(i, j int) bool { return cmplx.Abs(left[i].Value) > cmplx.Abs(left[j].Value) })
	sorted := make([]EigenPair, 0, len(pairs))
	for len(left) > 1 {
		a := left[0]
		best, bestErr := 1, math.Inf(1)
		for k := 1; k < len(left); k++ {
			if e := cmplx.Abs(a.Value*left[k].Value - 1); e < bestErr {
				best, bestErr = k, e
			}
		}
		sorted = append(sorted, a, left[best])
		left = append(left[1:best], left[best+1:]...)
	}
	return append(sorted, left...)
}

// StabilityIndices returns the stability index 0.5|λ + 1/λ| of each reciprocal pair. An index larger
// than one denotes an unstable mode.
func StabilityIndices(pairs []EigenPair) []float64 {
	idx := make([]float64, 0, len(pairs)/2)
	for k := 0; k+1 < len(pairs); k += 2 {
		idx = append(idx, 0.5*cmplx.Abs(pairs[k].Value+pairs[k+1].Value))
	}
	return idx
}

// realVector returns the real part of an eigenvector normalized to unit norm.
func realVector(v []complex128) []float64 {
	r := make([]float64, len(v))
	for i, c := range v {
		r[i] = real(c)
	}
	floats.Scale(1/floats.Norm(r, 2), r)
	return r
}
