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

package spdz

import (
	"context"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/tensor"
)

// Secure matrix multiplication of x, known in plaintext to one party, by w,
// a tensor held by the other party (usually its share of a secret). Both
// parties call the same suffix, each ends with an additive share of x·w.
//
//	owner of w                          owner of x
//	SendEncrypted(E(w))        ---->    c = x·E(w)
//	                           <----    ShareEncrypted(c), keeps r
//	share = D(c + mask) mod q

// SecureMatMulSecret is the side of the party owning w
func (s *Session) SecureMatMulSecret(ctx context.Context, suffix Suffix, w *tensor.FixedPointTensor) (*tensor.FixedPointTensor, error) {
	if err := s.SendEncrypted(ctx, suffix, w); err != nil {
		return nil, err
	}
	return s.ReceiveEncryptedShare(ctx, suffix)
}

// SecureMatMulPlain is the side of the party owning x
func (s *Session) SecureMatMulPlain(ctx context.Context, suffix Suffix, x *tensor.FixedPointTensor) (*tensor.FixedPointTensor, error) {
	c, err := s.ReceiveEncrypted(ctx, suffix)
	if err != nil {
		return nil, err
	}
	xc, err := c.LeftDot(x)
	if err != nil {
		return nil, err
	}
	return s.ShareEncrypted(ctx, suffix, xc)
}
