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

package tensor

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/homomorphism"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/fixedpoint"
)

// ErrPlaintextOverflow is returned when the integers behind a ciphertext tensor may exceed the plaintext modulus
var ErrPlaintextOverflow = errors.New("homomorphic plaintext may wrap around the key modulus")

// PaillierTensor holds ciphertexts of non-negative integers. Arithmetic is
// carried out over the integers, not mod q, so the tensor tracks an upper
// bound of its plaintexts. Reducing mod q happens after decryption.
type PaillierTensor struct {
	pub     homomorphism.Encryptor
	enc     *fixedpoint.Encoder
	rows    int
	cols    int
	scale   uint
	bound   *big.Int
	cyphers []*big.Int
}

// Encrypt encrypts every element of t under pub
func Encrypt(pub homomorphism.Encryptor, t *FixedPointTensor) (*PaillierTensor, error) {
	if pub.PlaintextModulus().Cmp(t.enc.Field()) <= 0 {
		return nil, ErrPlaintextOverflow
	}
	cyphers := make([]*big.Int, len(t.values))
	for i, v := range t.values {
		c, err := pub.Encrypt(v)
		if err != nil {
			return nil, err
		}
		cyphers[i] = c
	}
	return &PaillierTensor{
		pub:     pub,
		enc:     t.enc,
		rows:    t.rows,
		cols:    t.cols,
		scale:   t.scale,
		bound:   new(big.Int).Set(t.enc.Field()),
		cyphers: cyphers,
	}, nil
}

// NewPaillierTensor wraps received ciphertexts, bound limits their plaintexts
func NewPaillierTensor(pub homomorphism.Encryptor, enc *fixedpoint.Encoder, rows, cols int, scale uint,
	bound *big.Int, cyphers []*big.Int) (*PaillierTensor, error) {
	if rows < 0 || cols < 0 || len(cyphers) != rows*cols {
		return nil, fmt.Errorf("%w: %d ciphertexts for %dx%d", ErrShape, len(cyphers), rows, cols)
	}
	if bound == nil || bound.Sign() <= 0 {
		return nil, fmt.Errorf("%w: invalid bound", ErrPlaintextOverflow)
	}
	if bound.Cmp(pub.PlaintextModulus()) >= 0 {
		return nil, ErrPlaintextOverflow
	}
	return &PaillierTensor{pub: pub, enc: enc, rows: rows, cols: cols, scale: scale, bound: bound, cyphers: cyphers}, nil
}

func (c *PaillierTensor) Rows() int { return c.rows }
func (c *PaillierTensor) Cols() int { return c.cols }
func (c *PaillierTensor) Scale() uint { return c.scale }
func (c *PaillierTensor) Kind() Kind { return HomomorphicCiphertext }
func (c *PaillierTensor) Encoder() *fixedpoint.Encoder { return c.enc }
func (c *PaillierTensor) PublicKey() homomorphism.Encryptor { return c.pub }

// Bound returns the exclusive upper bound of every plaintext
func (c *PaillierTensor) Bound() *big.Int { return new(big.Int).Set(c.bound) }

// Cyphers returns the ciphertexts in row-major order
func (c *PaillierTensor) Cyphers() []*big.Int { return c.cyphers }

func (c *PaillierTensor) derive(rows, cols int, scale uint, bound *big.Int, cyphers []*big.Int) (*PaillierTensor, error) {
	if bound.Cmp(c.pub.PlaintextModulus()) >= 0 {
		return nil, ErrPlaintextOverflow
	}
	if bound.Sign() == 0 {
		bound = big.NewInt(1)
	}
	return &PaillierTensor{pub: c.pub, enc: c.enc, rows: rows, cols: cols, scale: scale, bound: bound, cyphers: cyphers}, nil
}

func (c *PaillierTensor) sameShape(enc *fixedpoint.Encoder, rows, cols int, scale uint) error {
	if !c.enc.Equal(enc) {
		return fmt.Errorf("%w: %s vs %s", ErrField, c.enc, enc)
	}
	if c.rows != rows || c.cols != cols {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShape, c.rows, c.cols, rows, cols)
	}
	if c.scale != scale {
		return fmt.Errorf("%w: %d vs %d", ErrScale, c.scale, scale)
	}
	return nil
}

// AddCipher adds two ciphertext tensors encrypted under the same key
func (c *PaillierTensor) AddCipher(o *PaillierTensor) (*PaillierTensor, error) {
	if err := c.sameShape(o.enc, o.rows, o.cols, o.scale); err != nil {
		return nil, err
	}
	if c.pub.PlaintextModulus().Cmp(o.pub.PlaintextModulus()) != 0 {
		return nil, fmt.Errorf("%w: ciphertexts under different keys", ErrField)
	}
	out := make([]*big.Int, len(c.cyphers))
	for i := range c.cyphers {
		out[i] = c.pub.CyphersAdd(c.cyphers[i], o.cyphers[i])
	}
	return c.derive(c.rows, c.cols, c.scale, new(big.Int).Add(c.bound, o.bound), out)
}

// AddPlain adds a locally known tensor
func (c *PaillierTensor) AddPlain(t *FixedPointTensor) (*PaillierTensor, error) {
	if err := c.sameShape(t.enc, t.rows, t.cols, t.scale); err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(c.cyphers))
	for i := range c.cyphers {
		out[i] = c.pub.CypherPlainAdd(c.cyphers[i], t.values[i])
	}
	return c.derive(c.rows, c.cols, c.scale, new(big.Int).Add(c.bound, c.enc.Field()), out)
}

// MulScalar multiplies every plaintext by k mod q, a constant encoded at scale kScale
func (c *PaillierTensor) MulScalar(k *big.Int, kScale uint) (*PaillierTensor, error) {
	kk := c.enc.Reduce(k)
	out := make([]*big.Int, len(c.cyphers))
	for i := range c.cyphers {
		out[i] = c.pub.CypherPlainMultiply(c.cyphers[i], kk)
	}
	return c.derive(c.rows, c.cols, c.scale+kScale, new(big.Int).Mul(c.bound, kk), out)
}

// Mul multiplies element-wise by a locally known tensor
func (c *PaillierTensor) Mul(t *FixedPointTensor) (*PaillierTensor, error) {
	if err := c.sameShape(t.enc, t.rows, t.cols, c.scale); err != nil {
		return nil, err
	}
	out := make([]*big.Int, len(c.cyphers))
	for i := range c.cyphers {
		out[i] = c.pub.CypherPlainMultiply(c.cyphers[i], t.values[i])
	}
	return c.derive(c.rows, c.cols, c.scale+t.scale, new(big.Int).Mul(c.bound, c.enc.Field()), out)
}

// LeftDot computes x·c where x is locally known
func (c *PaillierTensor) LeftDot(x *FixedPointTensor) (*PaillierTensor, error) {
	if !c.enc.Equal(x.enc) {
		return nil, fmt.Errorf("%w: %s vs %s", ErrField, c.enc, x.enc)
	}
	if x.cols != c.rows {
		return nil, fmt.Errorf("%w: cannot multiply %dx%d by %dx%d", ErrShape, x.rows, x.cols, c.rows, c.cols)
	}
	out := make([]*big.Int, x.rows*c.cols)
	for i := 0; i < x.rows; i++ {
		for j := 0; j < c.cols; j++ {
			terms := make([]*big.Int, 0, x.cols)
			for k := 0; k < x.cols; k++ {
				xv := x.values[i*x.cols+k]
				if xv.Sign() == 0 {
					continue
				}
				terms = append(terms, c.pub.CypherPlainMultiply(c.cyphers[k*c.cols+j], xv))
			}
			out[i*c.cols+j] = c.pub.CyphersAdd(terms...)
		}
	}
	bound := new(big.Int).Mul(c.bound, c.enc.Field())
	bound.Mul(bound, big.NewInt(int64(x.cols)))
	return c.derive(x.rows, c.cols, c.scale+x.scale, bound, out)
}

// Transpose returns the transposed ciphertext tensor
func (c *PaillierTensor) Transpose() *PaillierTensor {
	out := make([]*big.Int, len(c.cyphers))
	for i := 0; i < c.rows; i++ {
		for j := 0; j < c.cols; j++ {
			out[j*c.rows+i] = c.cyphers[i*c.cols+j]
		}
	}
	return &PaillierTensor{pub: c.pub, enc: c.enc, rows: c.cols, cols: c.rows, scale: c.scale, bound: c.bound, cyphers: out}
}

// Decrypt decrypts every element with sk and reduces it mod q
func (c *PaillierTensor) Decrypt(sk homomorphism.Decryptor) (*FixedPointTensor, error) {
	if sk.PlaintextModulus().Cmp(c.pub.PlaintextModulus()) != 0 {
		return nil, fmt.Errorf("%w: ciphertexts under a different key", ErrField)
	}
	out := make([]*big.Int, len(c.cyphers))
	for i, cy := range c.cyphers {
		out[i] = c.enc.Reduce(sk.Decrypt(cy))
	}
	return &FixedPointTensor{enc: c.enc, rows: c.rows, cols: c.cols, scale: c.scale, values: out}, nil
}
