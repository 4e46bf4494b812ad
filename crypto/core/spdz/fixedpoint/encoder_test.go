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

package fixedpoint

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	e := Default()
	unit := math.Ldexp(1, -int(e.Precision()))

	for _, x := range []float64{0, 1, -1, 0.1, -0.1, 3.14159, -2.71828, 12345.678, -98765.4321} {
		v, err := e.Encode(x)
		require.NoError(t, err)
		require.True(t, v.Sign() >= 0 && v.Cmp(e.Field()) < 0)
		require.InDelta(t, x, e.Decode(v), unit, "x=%v", x)
	}

	v, _ := e.Encode(-1)
	require.Equal(t, new(big.Int).Sub(e.Field(), big.NewInt(1<<16)), v)
}

func TestEncodeAtScale(t *testing.T) {
	e := Default()
	a, _ := e.Encode(1.5)
	b, _ := e.Encode(-2.25)

	// product of two scale 1 values lives at scale 2
	p := e.Reduce(new(big.Int).Mul(a, b))
	require.InDelta(t, -3.375, e.DecodeAt(p, 2), 1e-9)

	c, err := e.EncodeAt(0.004, 3)
	require.NoError(t, err)
	require.InDelta(t, 0.004, e.DecodeAt(c, 3), 1e-12)
}

func TestEncoderValidation(t *testing.T) {
	_, err := NewEncoder(big.NewInt(15), 16)
	require.Equal(t, ErrInvalidField, err)
	_, err = NewEncoder(DefaultField, 0)
	require.Equal(t, ErrInvalidPrecision, err)

	e := Default()
	_, err = e.Encode(math.NaN())
	require.Equal(t, ErrNotFinite, err)

	small, err := NewEncoder(big.NewInt(65537), 4)
	require.NoError(t, err)
	require.False(t, e.Equal(small))
	require.True(t, e.Equal(Default()))
}
