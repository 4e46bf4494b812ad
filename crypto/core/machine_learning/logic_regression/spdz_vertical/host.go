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

// Host owns features only
type Host struct {
	*party
}

// NewHost builds the feature-only side
func NewHost(sess *spdz.Session, param Param, features [][]float64) (*Host, error) {
	if sess.Role() != spdz.Host {
		return nil, spdz.ErrInvalidRole
	}
	p, err := newParty(sess, param, features, false)
	if err != nil {
		return nil, err
	}
	return &Host{party: p}, nil
}

// Forward mirrors Guest.Forward
func (h *Host) Forward(ctx context.Context, b *Batch) error {
	za, err := h.sess.SecureMatMulPlain(ctx, b.Suffix.With("za"), b.X)
	if err != nil {
		return err
	}
	zb, err := h.sess.SecureMatMulSecret(ctx, b.Suffix.With("zb"), h.wRemote)
	if err != nil {
		return err
	}
	if err := h.forward(b, za, zb); err != nil {
		return err
	}
	b.Sigmoid, err = hostSharedSigmoid(ctx, h.sess, b.Suffix, b.Z)
	return err
}

// ComputeError keeps the sigmoid share, the Host has no labels
func (h *Host) ComputeError(b *Batch) error {
	if b.Sigmoid == nil {
		return fmt.Errorf("%w: error before forward", tensor.ErrShape)
	}
	b.Error = b.Sigmoid
	return nil
}

// ComputeGradient mirrors Guest.ComputeGradient
func (h *Host) ComputeGradient(ctx context.Context, b *Batch) error {
	if b.Error == nil {
		return fmt.Errorf("%w: gradient before error", tensor.ErrShape)
	}
	invN, err := h.invN(b)
	if err != nil {
		return err
	}

	if err := h.sess.SendEncrypted(ctx, b.Suffix.With("share_error"), b.Error); err != nil {
		return err
	}
	gRemote, err := h.sess.ReceiveEncryptedShare(ctx, b.Suffix.With("encrypt_g"))
	if err != nil {
		return err
	}
	if b.GradRemote, err = h.sess.Truncate(gRemote, 2); err != nil {
		return err
	}

	xt := b.X.Transpose()
	cross, err := h.sess.SecureMatMulPlain(ctx, b.Suffix.With("ga2"), xt)
	if err != nil {
		return err
	}
	local, err := xt.Dot(b.Error.MulScalar(invN, 1))
	if err != nil {
		return err
	}
	gSelf, err := cross.Add(local)
	if err != nil {
		return err
	}
	b.GradSelf, err = h.sess.Truncate(gSelf, 2)
	return err
}

// Update applies the gradient to wSelf and wRemote
func (h *Host) Update(b *Batch) error {
	return h.update(b, false, h.peerIntercept)
}

// RevealDelta lays out guest features first, matching the Guest order
func (h *Host) RevealDelta(ctx context.Context, b *Batch) (float64, error) {
	return h.revealDelta(ctx, b, b.DeltaRemote, b.DeltaSelf)
}

// RevealWeights returns the host-feature weights
func (h *Host) RevealWeights(ctx context.Context) ([]float64, error) {
	return h.revealWeights(ctx)
}

var _ Trainer = (*Host)(nil)
