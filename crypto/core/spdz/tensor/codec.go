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
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/homomorphism"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/fixedpoint"
)

// wireTensor is the message layout of both tensor kinds, integers are hex encoded
type wireTensor struct {
	Kind      Kind     `json:"kind"`
	Field     string   `json:"field"`
	Precision uint     `json:"precision"`
	Rows      int      `json:"rows"`
	Cols      int      `json:"cols"`
	Scale     uint     `json:"scale"`
	Bound     string   `json:"bound,omitempty"`
	Values    []string `json:"values"`
}

func hexValues(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Text(16)
	}
	return out
}

func parseHex(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex integer %q", s)
	}
	return v, nil
}

func decodeWire(data []byte, kind Kind, enc *fixedpoint.Encoder) (*wireTensor, []*big.Int, error) {
	var w wireTensor
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, nil, err
	}
	if w.Kind != kind {
		return nil, nil, fmt.Errorf("%w: got %s, want %s", ErrShape, w.Kind, kind)
	}
	field, err := parseHex(w.Field)
	if err != nil {
		return nil, nil, err
	}
	if field.Cmp(enc.Field()) != 0 || w.Precision != enc.Precision() {
		return nil, nil, fmt.Errorf("%w: peer uses q=%s precision=%d, local %s", ErrField, field, w.Precision, enc)
	}
	if w.Rows < 0 || w.Cols < 0 || len(w.Values) != w.Rows*w.Cols {
		return nil, nil, fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(w.Values), w.Rows, w.Cols)
	}
	values := make([]*big.Int, len(w.Values))
	for i, s := range w.Values {
		if values[i], err = parseHex(s); err != nil {
			return nil, nil, err
		}
	}
	return &w, values, nil
}

// Marshal serializes the tensor together with its field and scale
func (t *FixedPointTensor) Marshal() ([]byte, error) {
	return json.Marshal(&wireTensor{
		Kind:      LocalShare,
		Field:     t.enc.Field().Text(16),
		Precision: t.enc.Precision(),
		Rows:      t.rows,
		Cols:      t.cols,
		Scale:     t.scale,
		Values:    hexValues(t.values),
	})
}

// Unmarshal decodes a share and checks it belongs to the field of enc
func Unmarshal(data []byte, enc *fixedpoint.Encoder) (*FixedPointTensor, error) {
	w, values, err := decodeWire(data, LocalShare, enc)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if v.Cmp(enc.Field()) >= 0 {
			return nil, fmt.Errorf("%w: element outside the field", ErrField)
		}
	}
	return &FixedPointTensor{enc: enc, rows: w.Rows, cols: w.Cols, scale: w.Scale, values: values}, nil
}

// Marshal serializes the ciphertexts and their plaintext bound
func (c *PaillierTensor) Marshal() ([]byte, error) {
	return json.Marshal(&wireTensor{
		Kind:      HomomorphicCiphertext,
		Field:     c.enc.Field().Text(16),
		Precision: c.enc.Precision(),
		Rows:      c.rows,
		Cols:      c.cols,
		Scale:     c.scale,
		Bound:     c.bound.Text(16),
		Values:    hexValues(c.cyphers),
	})
}

// UnmarshalPaillier decodes ciphertexts that were produced under pub
func UnmarshalPaillier(data []byte, pub homomorphism.Encryptor, enc *fixedpoint.Encoder) (*PaillierTensor, error) {
	w, values, err := decodeWire(data, HomomorphicCiphertext, enc)
	if err != nil {
		return nil, err
	}
	bound, err := parseHex(w.Bound)
	if err != nil {
		return nil, err
	}
	return NewPaillierTensor(pub, enc, w.Rows, w.Cols, w.Scale, bound, values)
}
