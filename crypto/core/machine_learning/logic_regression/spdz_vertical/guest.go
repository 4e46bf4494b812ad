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
	"fmt"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/tensor"
)

// Guest owns the labels
type Guest struct {
	*party
}

// NewGuest builds the label side, labels are 0 or 1
func NewGuest(sess *spdz.Session, param Param, features [][]float64, labels []float64) (*Guest, error) {
	if sess.Role() != spdz.Guest {
		return nil, spdz.ErrInvalidRole
	}
	if len(labels) != len(features) {
		return nil, fmt.Errorf("%w: %d labels for %d rows", tensor.ErrShape, len(labels), len(features))
	}
	p, err := newParty(sess, param, features, param.FitIntercept)
	if err != nil {
		return nil, err
	}
	if p.labels, err = tensor.FromVector(sess.Encoder(), labels); err != nil {
		return nil, err
	}
	return &Guest{party: p}, nil
}

// Forward computes the Guest share of z and of sigmoid(z)
func (g *Guest) Forward(ctx context.Context, b *Batch) error {
	// X_h·wb, wb is ours
	za, err := g.sess.SecureMatMulSecret(ctx, b.Suffix.With("za"), g.wRemote)
	if err != nil {
		return err
	}
	// X_g·wRemote, wRemote is the Host's
	zb, err := g.sess.SecureMatMulPlain(ctx, b.Suffix.With("zb"), b.X)
	if err != nil {
		return err
	}
	if err := g.forward(b, za, zb); err != nil {
		return err
	}
	b.Sigmoid, err = guestSharedSigmoid(ctx, g.sess, b.Suffix, b.Z)
	return err
}

// ComputeError subtracts the labels
func (g *Guest) ComputeError(b *Batch) error {
	if b.Sigmoid == nil {
		return fmt.Errorf("%w: error before forward", tensor.ErrShape)
	}
	var err error
	b.Error, err = b.Sigmoid.Sub(b.Y)
	return err
}

// ComputeGradient turns the Host's encrypted error share into the encrypted
// full error, multiplies it by the local features and re-splits the result.
// The host-feature gradient comes from a secure product with the local error share.
func (g *Guest) ComputeGradient(ctx context.Context, b *Batch) error {
	if b.Error == nil {
		return fmt.Errorf("%w: gradient before error", tensor.ErrShape)
	}
	invN, err := g.invN(b)
	if err != nil {
		return err
	}

	encError, err := g.sess.ReceiveEncrypted(ctx, b.Suffix.With("share_error"))
	if err != nil {
		return err
	}
	if encError, err = encError.AddPlain(b.Error); err != nil {
		return err
	}
	encGrad, err := encError.LeftDot(b.X.Transpose())
	if err != nil {
		return err
	}
	if encGrad, err = encGrad.MulScalar(invN, 1); err != nil {
		return err
	}
	gSelf, err := g.sess.ShareEncrypted(ctx, b.Suffix.With("encrypt_g"), encGrad)
	if err != nil {
		return err
	}
	if b.GradSelf, err = g.sess.Truncate(gSelf, 2); err != nil {
		return err
	}

	gRemote, err := g.sess.SecureMatMulSecret(ctx, b.Suffix.With("ga2"), b.Error.MulScalar(invN, 1))
	if err != nil {
		return err
	}
	b.GradRemote, err = g.sess.Truncate(gRemote, 2)
	return err
}

// Update applies the gradient to wa and wb
func (g *Guest) Update(b *Batch) error {
	return g.update(b, g.intercept, g.peerIntercept)
}

// RevealDelta reveals the norm of the update of wa+wRemote and wb+wSelf
func (g *Guest) RevealDelta(ctx context.Context, b *Batch) (float64, error) {
	return g.revealDelta(ctx, b, b.DeltaSelf, b.DeltaRemote)
}

// RevealWeights returns the guest-feature weights, the intercept last when fitted
func (g *Guest) RevealWeights(ctx context.Context) ([]float64, error) {
	return g.revealWeights(ctx)
}

var _ Trainer = (*Guest)(nil)
