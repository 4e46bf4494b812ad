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

// Package fixedpoint maps reals into a prime field Z_q.
//
// A real x encoded at scale s is round(x * 2^(precision*s)) mod q, negative
// values occupy the upper half of the field. Products of encoded values add
// their scales. Overflow is not detected: callers keep
// |x| * 2^(precision*s) < q/2.
package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// DefaultPrecision is the number of fractional bits
const DefaultPrecision = 16

// DefaultField is the Mersenne prime 2^127-1
var DefaultField = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))

var (
	ErrInvalidField     = errors.New("field modulus must be an odd prime")
	ErrInvalidPrecision = errors.New("precision must be within [1, 64]")
	ErrNotFinite        = errors.New("value to be encoded must be finite")
)

// Encoder holds the field modulus and precision, both parties must use equal encoders
type Encoder struct {
	field     *big.Int
	half      *big.Int
	precision uint
}

// NewEncoder checks field primality and returns an encoder
func NewEncoder(field *big.Int, precision uint) (*Encoder, error) {
	if field == nil || field.Cmp(big.NewInt(2)) <= 0 || !field.ProbablyPrime(32) {
		return nil, ErrInvalidField
	}
	if precision == 0 || precision > 64 {
		return nil, ErrInvalidPrecision
	}
	return &Encoder{
		field:     new(big.Int).Set(field),
		half:      new(big.Int).Rsh(field, 1),
		precision: precision,
	}, nil
}

// Default returns an encoder over DefaultField with DefaultPrecision
func Default() *Encoder {
	e, _ := NewEncoder(DefaultField, DefaultPrecision)
	return e
}

// Field returns q, callers must not modify it
func (e *Encoder) Field() *big.Int {
	return e.field
}

// Precision returns the number of fractional bits per scale unit
func (e *Encoder) Precision() uint {
	return e.precision
}

// Equal reports whether both encoders share field and precision
func (e *Encoder) Equal(o *Encoder) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.precision == o.precision && e.field.Cmp(o.field) == 0
}

func (e *Encoder) String() string {
	return fmt.Sprintf("fixedpoint(q=%s, precision=%d)", e.field.String(), e.precision)
}

// Encode encodes x at scale 1
func (e *Encoder) Encode(x float64) (*big.Int, error) {
	return e.EncodeAt(x, 1)
}

// EncodeAt returns round(x * 2^(precision*scale)) mod q
func (e *Encoder) EncodeAt(x float64, scale uint) (*big.Int, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, ErrNotFinite
	}
	f := new(big.Float).SetPrec(256).SetFloat64(x)
	f.SetMantExp(f, int(e.precision*scale))
	if f.Sign() >= 0 {
		f.Add(f, big.NewFloat(0.5))
	} else {
		f.Sub(f, big.NewFloat(0.5))
	}
	v, _ := f.Int(nil)
	return v.Mod(v, e.field), nil
}

// Decode decodes v at scale 1
func (e *Encoder) Decode(v *big.Int) float64 {
	return e.DecodeAt(v, 1)
}

// DecodeAt interprets v > q/2 as negative and divides by 2^(precision*scale)
func (e *Encoder) DecodeAt(v *big.Int, scale uint) float64 {
	signed := e.Signed(v)
	f := new(big.Float).SetPrec(256).SetInt(signed)
	f.SetMantExp(f, -int(e.precision*scale))
	r, _ := f.Float64()
	return r
}

// Signed maps a field element onto (-q/2, q/2]
func (e *Encoder) Signed(v *big.Int) *big.Int {
	r := new(big.Int).Mod(v, e.field)
	if r.Cmp(e.half) > 0 {
		r.Sub(r, e.field)
	}
	return r
}

// Reduce returns v mod q
func (e *Encoder) Reduce(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, e.field)
}
