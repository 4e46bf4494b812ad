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
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/tensor"
)

type marshaler interface {
	Marshal() ([]byte, error)
}

func (s *Session) sendTensor(ctx context.Context, suffix Suffix, t marshaler) error {
	b, err := t.Marshal()
	if err != nil {
		return err
	}
	return s.Send(ctx, suffix, b)
}

func (s *Session) getShare(ctx context.Context, suffix Suffix) (*tensor.FixedPointTensor, error) {
	b, err := s.Get(ctx, suffix)
	if err != nil {
		return nil, err
	}
	return tensor.Unmarshal(b, s.enc)
}

// randomLike draws a uniform tensor over Z_q with the shape and scale of t
func (s *Session) randomLike(rows, cols int, scale uint) (*tensor.FixedPointTensor, error) {
	values := make([]*big.Int, rows*cols)
	for i := range values {
		v, err := s.sampler.Int(s.enc.Field())
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return tensor.New(s.enc, rows, cols, scale, values)
}

// Share splits a locally known tensor: it keeps a uniform mask r as its
// own share and sends x-r to the peer
func (s *Session) Share(ctx context.Context, suffix Suffix, x *tensor.FixedPointTensor) (*tensor.FixedPointTensor, error) {
	r, err := s.randomLike(x.Rows(), x.Cols(), x.Scale())
	if err != nil {
		return nil, err
	}
	other, err := x.Sub(r)
	if err != nil {
		return nil, err
	}
	if err := s.sendTensor(ctx, suffix.With("share"), other); err != nil {
		return nil, err
	}
	return r, nil
}

// ReceiveShare waits for the share the peer produced with Share
func (s *Session) ReceiveShare(ctx context.Context, suffix Suffix) (*tensor.FixedPointTensor, error) {
	return s.getShare(ctx, suffix.With("share"))
}

// Reveal sends the local share and adds the peer share, both parties learn the value
func (s *Session) Reveal(ctx context.Context, suffix Suffix, share *tensor.FixedPointTensor) (*tensor.FixedPointTensor, error) {
	if err := s.sendTensor(ctx, suffix.With("reveal"), share); err != nil {
		return nil, err
	}
	return s.RevealFrom(ctx, suffix, share)
}

// RevealTo hands the local share to the peer, only the peer learns the value
func (s *Session) RevealTo(ctx context.Context, suffix Suffix, share *tensor.FixedPointTensor) error {
	return s.sendTensor(ctx, suffix.With("reveal"), share)
}

// RevealFrom combines the local share with the one sent by the peer's RevealTo
func (s *Session) RevealFrom(ctx context.Context, suffix Suffix, share *tensor.FixedPointTensor) (*tensor.FixedPointTensor, error) {
	other, err := s.getShare(ctx, suffix.With("reveal"))
	if err != nil {
		return nil, err
	}
	return share.Add(other)
}

// SendEncrypted encrypts x under the local key and sends it
func (s *Session) SendEncrypted(ctx context.Context, suffix Suffix, x *tensor.FixedPointTensor) error {
	c, err := tensor.Encrypt(s.sk.Public(), x)
	if err != nil {
		return err
	}
	return s.sendTensor(ctx, suffix.With("enc"), c)
}

// ReceiveEncrypted waits for a tensor the peer encrypted under its own key
func (s *Session) ReceiveEncrypted(ctx context.Context, suffix Suffix) (*tensor.PaillierTensor, error) {
	if s.peerPk == nil {
		return nil, ErrNoPeerKey
	}
	b, err := s.Get(ctx, suffix.With("enc"))
	if err != nil {
		return nil, err
	}
	return tensor.UnmarshalPaillier(b, s.peerPk, s.enc)
}

// ShareEncrypted re-splits a ciphertext tensor that is encrypted under the
// peer key. For every element it draws r uniform in Z_q and s uniform in
// [0, 2^kappa*ceil(bound/q)], sends E(v + q*s + q - r) freshly randomized and
// keeps r. The peer decrypts and reduces mod q, so the two shares add up to v
// while the decrypted integer hides v statistically.
func (s *Session) ShareEncrypted(ctx context.Context, suffix Suffix, c *tensor.PaillierTensor) (*tensor.FixedPointTensor, error) {
	if s.peerPk == nil {
		return nil, ErrNoPeerKey
	}
	pub := c.PublicKey()
	if pub.PlaintextModulus().Cmp(s.peerPk.PlaintextModulus()) != 0 {
		return nil, tensor.ErrField
	}
	q := s.enc.Field()

	// maxS = 2^kappa * ceil(bound/q) + 1
	maxS := new(big.Int).Add(c.Bound(), new(big.Int).Sub(q, big.NewInt(1)))
	maxS.Div(maxS, q)
	maxS.Lsh(maxS, s.kappa)
	maxS.Add(maxS, big.NewInt(1))

	// the masked plaintexts stay below bound + q*(maxS+1)
	bound := new(big.Int).Mul(q, new(big.Int).Add(maxS, big.NewInt(1)))
	bound.Add(bound, c.Bound())
	if bound.Cmp(pub.PlaintextModulus()) >= 0 {
		return nil, tensor.ErrPlaintextOverflow
	}

	cyphers := c.Cyphers()
	masked := make([]*big.Int, len(cyphers))
	keep := make([]*big.Int, len(cyphers))
	for i, cy := range cyphers {
		r, err := s.sampler.Int(q)
		if err != nil {
			return nil, err
		}
		k, err := s.sampler.Int(maxS)
		if err != nil {
			return nil, err
		}
		m := new(big.Int).Mul(q, k)
		m.Add(m, q)
		m.Sub(m, r)
		em, err := pub.Encrypt(m)
		if err != nil {
			return nil, err
		}
		masked[i] = pub.CyphersAdd(cy, em)
		keep[i] = r
	}

	out, err := tensor.NewPaillierTensor(pub, s.enc, c.Rows(), c.Cols(), c.Scale(), bound, masked)
	if err != nil {
		return nil, err
	}
	if err := s.sendTensor(ctx, suffix.With("masked"), out); err != nil {
		return nil, err
	}
	return tensor.New(s.enc, c.Rows(), c.Cols(), c.Scale(), keep)
}

// ReceiveEncryptedShare waits for the tensor masked by the peer's
// ShareEncrypted and decrypts it into the local share
func (s *Session) ReceiveEncryptedShare(ctx context.Context, suffix Suffix) (*tensor.FixedPointTensor, error) {
	b, err := s.Get(ctx, suffix.With("masked"))
	if err != nil {
		return nil, err
	}
	c, err := tensor.UnmarshalPaillier(b, s.sk.Public(), s.enc)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(s.sk)
}

// Truncate divides a share by 2^(precision*scales) using the party index of the session role
func (s *Session) Truncate(share *tensor.FixedPointTensor, scales uint) (*tensor.FixedPointTensor, error) {
	return share.Truncate(scales, s.role.Party())
}
