// Package matrix is a small row-major matrix layer over gonum used by the
// pointing solver.
package matrix

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MatrixLine separates matrix dumps in console output.
const MatrixLine = "------------------------------------------------------------------------"

// DefaultRcond is the relative singular value cutoff used for rank decisions.
const DefaultRcond = 1e-12

var ErrShape = errors.New("matrix: dimension mismatch")

type Matrix struct {
	Rows   int
	Cols   int
	Values [][]float64
}

type Vector struct {
	Length int
	Values []float64
}

func NewMatrix(rows, cols int) *Matrix {
	values := make([][]float64, rows)
	for i := range values {
		values[i] = make([]float64, cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Values: values}
}

func NewVector(n int) *Vector {
	return &Vector{Length: n, Values: make([]float64, n)}
}

func NewVectorWithValue(n int, v float64) *Vector {
	vec := NewVector(n)
	for i := range vec.Values {
		vec.Values[i] = v
	}
	return vec
}

func (m *Matrix) SetRow(i int, row []float64) {
	copy(m.Values[i], row)
}

func (m *Matrix) GetRow(i int) *Vector {
	v := NewVector(m.Cols)
	copy(v.Values, m.Values[i])
	return v
}

// Dense copies m into a gonum dense matrix.
func (m *Matrix) Dense() *mat.Dense {
	data := make([]float64, 0, m.Rows*m.Cols)
	for _, row := range m.Values {
		data = append(data, row...)
	}
	return mat.NewDense(m.Rows, m.Cols, data)
}

func fromDense(d mat.Matrix) *Matrix {
	r, c := d.Dims()
	out := NewMatrix(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Values[i][j] = d.At(i, j)
		}
	}
	return out
}

// MulVector returns m·v. A length mismatch yields ErrShape.
func (m *Matrix) MulVector(v *Vector) (*Vector, error) {
	if v == nil || v.Length != m.Cols {
		return nil, fmt.Errorf("%w: %dx%d times vector of %d", ErrShape, m.Rows, m.Cols, vectorLen(v))
	}
	var out mat.VecDense
	out.MulVec(m.Dense(), v.vec())
	return fromVecDense(&out), nil
}

// Sub returns v−o. A length mismatch yields ErrShape.
func (v *Vector) Sub(o *Vector) (*Vector, error) {
	if o == nil || o.Length != v.Length {
		return nil, fmt.Errorf("%w: vector of %d minus vector of %d", ErrShape, v.Length, vectorLen(o))
	}
	var out mat.VecDense
	out.SubVec(v.vec(), o.vec())
	return fromVecDense(&out), nil
}

func (v *Vector) SquaredNorm() float64 { return floats.Dot(v.Values, v.Values) }

func (v *Vector) Norm() float64 { return math.Sqrt(v.SquaredNorm()) }

func vectorLen(v *Vector) int {
	if v == nil {
		return 0
	}
	return v.Length
}

func fromVecDense(d *mat.VecDense) *Vector {
	out := NewVector(d.Len())
	for i := range out.Values {
		out.Values[i] = d.AtVec(i)
	}
	return out
}

func (v *Vector) vec() *mat.VecDense {
	data := make([]float64, v.Length)
	copy(data, v.Values)
	return mat.NewVecDense(v.Length, data)
}

func (m *Matrix) svd() (*mat.SVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m.Dense(), mat.SVDThin); !ok {
		return nil, fmt.Errorf("matrix: SVD factorization failed for %dx%d", m.Rows, m.Cols)
	}
	return &svd, nil
}

// Rank is the numerical rank: singular values above rcond·σmax.
func (m *Matrix) Rank(rcond float64) (int, error) {
	if m.Rows == 0 || m.Cols == 0 {
		return 0, nil
	}
	svd, err := m.svd()
	if err != nil {
		return 0, err
	}
	return svd.Rank(rcond), nil
}

// InverseSVD returns the Moore-Penrose pseudo-inverse (Cols×Rows), dropping
// singular values below DefaultRcond·σmax. It returns nil if the SVD fails.
func (m *Matrix) InverseSVD() *Matrix {
	svd, err := m.svd()
	if err != nil {
		return nil
	}
	values := svd.Values(nil)
	if len(values) == 0 {
		return NewMatrix(m.Cols, m.Rows)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	cutoff := DefaultRcond * values[0]
	inv := mat.NewDense(len(values), len(values), nil)
	for i, s := range values {
		if s > cutoff {
			inv.Set(i, i, 1/s)
		}
	}
	// pinv = V · Σ⁺ · Uᵀ
	var tmp, pinv mat.Dense
	tmp.Mul(&v, inv)
	pinv.Mul(&tmp, u.T())
	return fromDense(&pinv)
}

// SolveQR solves min‖m·x − b‖ with a Householder QR. m must have at least as
// many rows as columns and full column rank.
func (m *Matrix) SolveQR(b *Vector) (*Vector, error) {
	if b == nil || b.Length != m.Rows {
		return nil, ErrShape
	}
	if m.Rows < m.Cols {
		return nil, fmt.Errorf("%w: QR needs rows >= cols, got %dx%d", ErrShape, m.Rows, m.Cols)
	}
	var qr mat.QR
	qr.Factorize(m.Dense())
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b.vec()); err != nil {
		return nil, fmt.Errorf("matrix: QR solve: %w", err)
	}
	return fromVecDense(&x), nil
}

func (m *Matrix) String() string {
	var b strings.Builder
	for _, row := range m.Values {
		for j, x := range row {
			if j > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%12.6f", x)
		}
		b.WriteString("\n")
	}
	return b.String()
}
