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

package spdz_vertical

import (
	"context"
	"math"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/tensor"
)

// 多项式近似的sigmoid函数
// sigmoid(z) ≈ 0.5 + 0.197*z - 0.004*z^3, accurate for |z| within a few units
const (
	SigmoidC0 = 0.5
	SigmoidC1 = 0.197
	SigmoidC3 = 0.004
)

// sigmoidScale is the common scale of the encrypted polynomial:
// C0 at scale 5, C1 at scale 4 times z, C3 at scale 2 times z^3
const sigmoidScale = 5

// PolySigmoid evaluates the cubic approximation for a known scalar
func PolySigmoid(z float64) float64 {
	return SigmoidC0 + SigmoidC1*z - SigmoidC3*z*z*z
}

// Sigmoid is the exact logistic function, used on plaintext prediction scores
func Sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// hostSharedSigmoid sends E_h(z_h), E_h(z_h^2), E_h(z_h^3) and receives
// its share of the approximated sigmoid back at scale 1
func hostSharedSigmoid(ctx context.Context, sess *spdz.Session, suffix spdz.Suffix,
	z *tensor.FixedPointTensor) (*tensor.FixedPointTensor, error) {
	if err := sess.SendEncrypted(ctx, suffix.With("z"), z); err != nil {
		return nil, err
	}
	if err := sess.SendEncrypted(ctx, suffix.With("z_square"), z.Pow(2)); err != nil {
		return nil, err
	}
	if err := sess.SendEncrypted(ctx, suffix.With("z_cube"), z.Pow(3)); err != nil {
		return nil, err
	}
	share, err := sess.ReceiveEncryptedShare(ctx, suffix.With("sigmoid_z"))
	if err != nil {
		return nil, err
	}
	return sess.Truncate(share, sigmoidScale-1)
}

// guestSharedSigmoid completes z^3 = (z_g+z_h)^3 under the host key,
// evaluates the polynomial homomorphically and re-splits the result
func guestSharedSigmoid(ctx context.Context, sess *spdz.Session, suffix spdz.Suffix,
	z *tensor.FixedPointTensor) (*tensor.FixedPointTensor, error) {
	enc := sess.Encoder()
	q := enc.Field()

	remoteZ, err := sess.ReceiveEncrypted(ctx, suffix.With("z"))
	if err != nil {
		return nil, err
	}
	remoteZSquare, err := sess.ReceiveEncrypted(ctx, suffix.With("z_square"))
	if err != nil {
		return nil, err
	}
	remoteZCube, err := sess.ReceiveEncrypted(ctx, suffix.With("z_cube"))
	if err != nil {
		return nil, err
	}

	// z^3 = z_h^3 + 3*z_h^2*z_g + 3*z_h*z_g^2 + z_g^3, every term at scale 3
	three := big.NewInt(3)
	t1, err := remoteZSquare.Mul(z.MulScalar(three, 0))
	if err != nil {
		return nil, err
	}
	t2, err := remoteZ.Mul(z.Pow(2).MulScalar(three, 0))
	if err != nil {
		return nil, err
	}
	cube, err := remoteZCube.AddCipher(t1)
	if err != nil {
		return nil, err
	}
	if cube, err = cube.AddCipher(t2); err != nil {
		return nil, err
	}
	if cube, err = cube.AddPlain(z.Pow(3)); err != nil {
		return nil, err
	}

	c0, err := enc.EncodeAt(SigmoidC0, sigmoidScale)
	if err != nil {
		return nil, err
	}
	c1, err := enc.EncodeAt(SigmoidC1, sigmoidScale-1)
	if err != nil {
		return nil, err
	}
	c3, err := enc.EncodeAt(SigmoidC3, sigmoidScale-3)
	if err != nil {
		return nil, err
	}

	// C1*z
	linear, err := remoteZ.AddPlain(z)
	if err != nil {
		return nil, err
	}
	if linear, err = linear.MulScalar(c1, sigmoidScale-1); err != nil {
		return nil, err
	}
	// -C3*z^3
	cubic, err := cube.MulScalar(new(big.Int).Sub(q, c3), sigmoidScale-3)
	if err != nil {
		return nil, err
	}
	sig, err := linear.AddCipher(cubic)
	if err != nil {
		return nil, err
	}
	if sig, err = sig.AddPlain(tensor.Full(enc, z.Rows(), z.Cols(), sigmoidScale, c0)); err != nil {
		return nil, err
	}

	share, err := sess.ShareEncrypted(ctx, suffix.With("sigmoid_z"), sig)
	if err != nil {
		return nil, err
	}
	return sess.Truncate(share, sigmoidScale-1)
}
