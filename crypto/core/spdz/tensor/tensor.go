// Copyright (c) 2021 PaddlePaddle Authors. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tensor implements the two representations of a secret-shared
// matrix: FixedPointTensor holds one party's additive share (or a locally
// known plaintext) as field elements, PaillierTensor holds homomorphic
// ciphertexts. Both track shape, encoder and fixed-point scale explicitly.
package tensor

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/fixedpoint"
)

var (
	// ErrShape is returned when operand dimensions do not line up
	ErrShape = errors.New("tensor shape mismatch")
	// ErrField is returned when operands use different field moduli or precisions
	ErrField = errors.New("tensor field mismatch")
	// ErrScale is returned when adding tensors of different fixed-point scales
	ErrScale = errors.New("tensor scale mismatch")
)

// Kind tells how the values of a tensor are to be read
type Kind int

const (
	LocalShare Kind = iota
	HomomorphicCiphertext
)

func (k Kind) String() string {
	switch k {
	case LocalShare:
		return "LOCAL_SHARE"
	case HomomorphicCiphertext:
		return "HOMOMORPHIC_CIPHERTEXT"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FixedPointTensor is a row-major matrix of field elements
type FixedPointTensor struct {
	enc    *fixedpoint.Encoder
	rows   int
	cols   int
	scale  uint
	values []*big.Int
}

// New copies values reduced mod q into a rows x cols tensor
func New(enc *fixedpoint.Encoder, rows, cols int, scale uint, values []*big.Int) (*FixedPointTensor, error) {
	if rows < 0 || cols < 0 || len(values) != rows*cols {
		return nil, fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(values), rows, cols)
	}
	t := &FixedPointTensor{enc: enc, rows: rows, cols: cols, scale: scale, values: make([]*big.Int, len(values))}
	for i, v := range values {
		t.values[i] = enc.Reduce(v)
	}
	return t, nil
}

// Zeros returns an all-zero tensor
func Zeros(enc *fixedpoint.Encoder, rows, cols int, scale uint) *FixedPointTensor {
	return Full(enc, rows, cols, scale, new(big.Int))
}

// Full returns a tensor whose every element is v
func Full(enc *fixedpoint.Encoder, rows, cols int, scale uint, v *big.Int) *FixedPointTensor {
	t := &FixedPointTensor{enc: enc, rows: rows, cols: cols, scale: scale, values: make([]*big.Int, rows*cols)}
	r := enc.Reduce(v)
	for i := range t.values {
		t.values[i] = new(big.Int).Set(r)
	}
	return t
}

// FromFloats encodes a dense matrix at scale 1
func FromFloats(enc *fixedpoint.Encoder, m [][]float64) (*FixedPointTensor, error) {
	rows := len(m)
	cols := 0
	if rows > 0 {
		cols = len(m[0])
	}
	t := &FixedPointTensor{enc: enc, rows: rows, cols: cols, scale: 1, values: make([]*big.Int, 0, rows*cols)}
	for i, row := range m {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), cols)
		}
		for _, x := range row {
			v, err := enc.Encode(x)
			if err != nil {
				return nil, err
			}
			t.values = append(t.values, v)
		}
	}
	return t, nil
}

// FromVector encodes v as a column vector at scale 1
func FromVector(enc *fixedpoint.Encoder, v []float64) (*FixedPointTensor, error) {
	m := make([][]float64, len(v))
	for i, x := range v {
		m[i] = []float64{x}
	}
	t, err := FromFloats(enc, m)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		t.cols = 1
	}
	return t, nil
}

func (t *FixedPointTensor) Rows() int { return t.rows }
func (t *FixedPointTensor) Cols() int { return t.cols }
func (t *FixedPointTensor) Scale() uint { return t.scale }
func (t *FixedPointTensor) Kind() Kind { return LocalShare }
func (t *FixedPointTensor) Encoder() *fixedpoint.Encoder { return t.enc }

// At returns a copy of element (i, j)
func (t *FixedPointTensor) At(i, j int) *big.Int {
	return new(big.Int).Set(t.values[i*t.cols+j])
}

// Values returns copies of all elements in row-major order
func (t *FixedPointTensor) Values() []*big.Int {
	out := make([]*big.Int, len(t.values))
	for i, v := range t.values {
		out[i] = new(big.Int).Set(v)
	}
	return out
}

// Decode decodes every element at the tensor scale
func (t *FixedPointTensor) Decode() [][]float64 {
	out := make([][]float64, t.rows)
	for i := 0; i < t.rows; i++ {
		out[i] = make([]float64, t.cols)
		for j := 0; j < t.cols; j++ {
			out[i][j] = t.enc.DecodeAt(t.values[i*t.cols+j], t.scale)
		}
	}
	return out
}

// DecodeFlat decodes every element in row-major order
func (t *FixedPointTensor) DecodeFlat() []float64 {
	out := make([]float64, len(t.values))
	for i, v := range t.values {
		out[i] = t.enc.DecodeAt(v, t.scale)
	}
	return out
}

func (t *FixedPointTensor) compatible(o *FixedPointTensor) error {
	if !t.enc.Equal(o.enc) {
		return fmt.Errorf("%w: %s vs %s", ErrField, t.enc, o.enc)
	}
	if t.rows != o.rows || t.cols != o.cols {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShape, t.rows, t.cols, o.rows, o.cols)
	}
	if t.scale != o.scale {
		return fmt.Errorf("%w: %d vs %d", ErrScale, t.scale, o.scale)
	}
	return nil
}

func (t *FixedPointTensor) withValues(rows, cols int, scale uint, values []*big.Int) *FixedPointTensor {
	return &FixedPointTensor{enc: t.enc, rows: rows, cols: cols, scale: scale, values: values}
}

// Add returns t+o mod q
func (t *FixedPointTensor) Add(o *FixedPointTensor) (*FixedPointTensor, error) {
	if err := t.compatible(o); err != nil {
		return nil, err
	}
	q := t.enc.Field()
	out := make([]*big.Int, len(t.values))
	for i := range t.values {
		v := new(big.Int).Add(t.values[i], o.values[i])
		out[i] = v.Mod(v, q)
	}
	return t.withValues(t.rows, t.cols, t.scale, out), nil
}

// Sub returns t-o mod q
func (t *FixedPointTensor) Sub(o *FixedPointTensor) (*FixedPointTensor, error) {
	if err := t.compatible(o); err != nil {
		return nil, err
	}
	q := t.enc.Field()
	out := make([]*big.Int, len(t.values))
	for i := range t.values {
		v := new(big.Int).Sub(t.values[i], o.values[i])
		out[i] = v.Mod(v, q)
	}
	return t.withValues(t.rows, t.cols, t.scale, out), nil
}

// MulScalar multiplies every element by k, a constant encoded at scale kScale
func (t *FixedPointTensor) MulScalar(k *big.Int, kScale uint) *FixedPointTensor {
	q := t.enc.Field()
	kk := t.enc.Reduce(k)
	out := make([]*big.Int, len(t.values))
	for i, v := range t.values {
		p := new(big.Int).Mul(v, kk)
		out[i] = p.Mod(p, q)
	}
	return t.withValues(t.rows, t.cols, t.scale+kScale, out)
}

// MulConst multiplies every element by the real c encoded at scale 1
func (t *FixedPointTensor) MulConst(c float64) (*FixedPointTensor, error) {
	k, err := t.enc.Encode(c)
	if err != nil {
		return nil, err
	}
	return t.MulScalar(k, 1), nil
}

// Mul multiplies element-wise, only valid when one operand is known to its holder in full
func (t *FixedPointTensor) Mul(o *FixedPointTensor) (*FixedPointTensor, error) {
	if !t.enc.Equal(o.enc) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrField, t.enc, o.enc)
	}
	if t.rows != o.rows || t.cols != o.cols {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShape, t.rows, t.cols, o.rows, o.cols)
	}
	q := t.enc.Field()
	out := make([]*big.Int, len(t.values))
	for i := range t.values {
		p := new(big.Int).Mul(t.values[i], o.values[i])
		out[i] = p.Mod(p, q)
	}
	return t.withValues(t.rows, t.cols, t.scale+o.scale, out), nil
}

// Dot computes the matrix product t·o mod q, the result scale is the sum of both scales
func (t *FixedPointTensor) Dot(o *FixedPointTensor) (*FixedPointTensor, error) {
	if !t.enc.Equal(o.enc) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrField, t.enc, o.enc)
	}
	if t.cols != o.rows {
		return nil, fmt.Errorf("%w: cannot multiply %dx%d by %dx%d", ErrShape, t.rows, t.cols, o.rows, o.cols)
	}
	q := t.enc.Field()
	out := make([]*big.Int, t.rows*o.cols)
	p := new(big.Int)
	for i := 0; i < t.rows; i++ {
		for j := 0; j < o.cols; j++ {
			acc := new(big.Int)
			for k := 0; k < t.cols; k++ {
				acc.Add(acc, p.Mul(t.values[i*t.cols+k], o.values[k*o.cols+j]))
			}
			out[i*o.cols+j] = acc.Mod(acc, q)
		}
	}
	return t.withValues(t.rows, o.cols, t.scale+o.scale, out), nil
}

// Pow raises every element of the local share to k, the scale is multiplied by k
func (t *FixedPointTensor) Pow(k uint) *FixedPointTensor {
	q := t.enc.Field()
	e := new(big.Int).SetUint64(uint64(k))
	out := make([]*big.Int, len(t.values))
	for i, v := range t.values {
		out[i] = new(big.Int).Exp(v, e, q)
	}
	return t.withValues(t.rows, t.cols, t.scale*k, out)
}

// UpScale lifts the tensor by k scale units, the encoded value is unchanged
func (t *FixedPointTensor) UpScale(k uint) *FixedPointTensor {
	if k == 0 {
		return t
	}
	factor := new(big.Int).Lsh(big.NewInt(1), t.enc.Precision()*k)
	return t.MulScalar(factor, k)
}

// Transpose returns the transposed tensor
func (t *FixedPointTensor) Transpose() *FixedPointTensor {
	out := make([]*big.Int, len(t.values))
	for i := 0; i < t.rows; i++ {
		for j := 0; j < t.cols; j++ {
			out[j*t.rows+i] = t.values[i*t.cols+j]
		}
	}
	return t.withValues(t.cols, t.rows, t.scale, out)
}

// Reshape keeps row-major order under a new shape
func (t *FixedPointTensor) Reshape(rows, cols int) (*FixedPointTensor, error) {
	if rows*cols != len(t.values) {
		return nil, fmt.Errorf("%w: cannot reshape %dx%d into %dx%d", ErrShape, t.rows, t.cols, rows, cols)
	}
	return t.withValues(rows, cols, t.scale, t.values), nil
}

// SliceRows returns rows [start, end)
func (t *FixedPointTensor) SliceRows(start, end int) (*FixedPointTensor, error) {
	if start < 0 || end > t.rows || start > end {
		return nil, fmt.Errorf("%w: rows [%d, %d) out of %d", ErrShape, start, end, t.rows)
	}
	return t.withValues(end-start, t.cols, t.scale, t.values[start*t.cols:end*t.cols]), nil
}

// Truncate divides the shared value by 2^(precision*scales) and lowers the
// scale accordingly. Each party applies it to its own share read as a signed
// element of (-q/2, q/2]: party 0 rounds down, party 1 rounds up, so the
// reconstructed value is off by less than one unit in the last place. It fails
// only when the two signed shares overflow q/2 together, with probability
// about |x|/q for a uniformly masked value x.
func (t *FixedPointTensor) Truncate(scales uint, party int) (*FixedPointTensor, error) {
	if scales > t.scale {
		return nil, fmt.Errorf("%w: cannot truncate %d scales from %d", ErrScale, scales, t.scale)
	}
	bits := t.enc.Precision() * scales
	out := make([]*big.Int, len(t.values))
	for i, v := range t.values {
		c := t.enc.Signed(v)
		if party == 0 {
			// arithmetic shift floors negative values
			c.Rsh(c, bits)
		} else {
			c.Neg(c)
			c.Rsh(c, bits)
			c.Neg(c)
		}
		out[i] = t.enc.Reduce(c)
	}
	return t.withValues(t.rows, t.cols, t.scale-scales, out), nil
}

// Equal reports whether both tensors hold identical elements
func (t *FixedPointTensor) Equal(o *FixedPointTensor) bool {
	if t.compatible(o) != nil {
		return false
	}
	for i := range t.values {
		if t.values[i].Cmp(o.values[i]) != 0 {
			return false
		}
	}
	return true
}
