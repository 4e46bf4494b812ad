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

// Package spdz_vertical trains a vertically partitioned logistic regression
// between a Guest, owning labels and some features, and a Host owning the
// other features, without revealing features, labels, activations or weights.
//
// 纵向联合学习，基于秘密分享与半同态加密的逻辑回归
//
// Weights live as additive shares. The Guest holds wa, its share of the
// guest-feature weights, and wb, its share of the host-feature weights; the
// Host holds the complementary wSelf and wRemote:
//
//	W_guest = wa + host.wRemote    W_host = wb + host.wSelf    (mod q)
//
// One batch of one round runs in lock-step:
//
//	FORWARD   z = X_g·wa + X_h·wSelf + [X_h·wb] + [X_g·wRemote], the bracketed
//	          terms by secure matrix multiplication, z stays shared
//	          sigmoid(z) ≈ 0.5 + 0.197z - 0.004z^3 assembled under the Host key
//	ERROR     e = sigmoid(z) - y, the Guest subtracts the labels from its share
//	GRADIENT  g_guest = X_gᵀ·E_h(e)/n computed by the Guest and re-split,
//	          g_host = X_hᵀ·e/n, a local Host term plus a secure product
//	UPDATE    w -= lr·g on every share
//
// All values are fixed-point field elements. Products are truncated back to
// scale 1 right after they are formed.
package spdz_vertical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/tensor"
)

// Penalty names the regularization added to the gradient
type Penalty int

const (
	PenaltyNone Penalty = iota
	PenaltyL2
)

var (
	ErrNoWeights   = errors.New("weights not initialized")
	ErrRowMismatch = errors.New("guest and host hold a different number of aligned samples")
)

// Param holds the hyper parameters, both parties must agree on them
type Param struct {
	LearningRate float64
	Penalty      Penalty
	Alpha        float64
	// FitIntercept appends a constant 1 feature to the Guest side
	FitIntercept bool
	// BatchSize of 0 or larger than the data trains on all rows at once
	BatchSize int
}

// Trainer is one party of the protocol
type Trainer interface {
	Role() spdz.Role
	// Setup exchanges public keys and data dimensions with the peer
	Setup(ctx context.Context) error
	// InitWeights shares the initial weights of the local features
	InitWeights(ctx context.Context, init []float64) error
	// Batches returns the [start, end) row ranges of one epoch
	Batches() [][2]int
	NewBatch(round, batch int) (*Batch, error)
	Forward(ctx context.Context, b *Batch) error
	ComputeError(b *Batch) error
	ComputeGradient(ctx context.Context, b *Batch) error
	Update(b *Batch) error
	// RevealDelta returns the L2 norm of the weight update of the batch, only
	// the norm is revealed to both parties
	RevealDelta(ctx context.Context, b *Batch) (float64, error)
	// RevealWeights ends training, each party learns the weights of its own features
	RevealWeights(ctx context.Context) ([]float64, error)
	// Dims returns the number of local and peer weights
	Dims() (local, peer int)
}

// Batch carries the intermediates of one batch of one round
type Batch struct {
	Round  int
	Index  int
	Suffix spdz.Suffix
	Start  int
	End    int

	X *tensor.FixedPointTensor
	Y *tensor.FixedPointTensor

	Z       *tensor.FixedPointTensor
	Sigmoid *tensor.FixedPointTensor
	Error   *tensor.FixedPointTensor

	GradSelf   *tensor.FixedPointTensor
	GradRemote *tensor.FixedPointTensor

	DeltaSelf   *tensor.FixedPointTensor
	DeltaRemote *tensor.FixedPointTensor
}

// Size returns the number of rows of the batch
func (b *Batch) Size() int {
	return b.End - b.Start
}

// dims is exchanged during setup
type dims struct {
	Features  int  `json:"features"`
	Rows      int  `json:"rows"`
	Intercept bool `json:"intercept"`
}

// party holds what Guest and Host share in structure
type party struct {
	sess     *spdz.Session
	param    Param
	features *tensor.FixedPointTensor // n x d, scale 1
	labels   *tensor.FixedPointTensor // n x 1, Guest only

	localDim      int
	peerDim       int
	peerIntercept bool
	intercept     bool

	wSelf   *tensor.FixedPointTensor // share of the weights of the local features
	wRemote *tensor.FixedPointTensor // share of the weights of the peer features
	lr      *big.Int
}

func newParty(sess *spdz.Session, param Param, features [][]float64, intercept bool) (*party, error) {
	if param.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", param.LearningRate)
	}
	rows := features
	if intercept {
		rows = make([][]float64, len(features))
		for i, r := range features {
			rows[i] = append(append(make([]float64, 0, len(r)+1), r...), 1)
		}
	}
	x, err := tensor.FromFloats(sess.Encoder(), rows)
	if err != nil {
		return nil, err
	}
	lr, err := sess.Encoder().Encode(param.LearningRate)
	if err != nil {
		return nil, err
	}
	return &party{
		sess:      sess,
		param:     param,
		features:  x,
		localDim:  x.Cols(),
		intercept: intercept,
		lr:        lr,
	}, nil
}

func (p *party) Role() spdz.Role {
	return p.sess.Role()
}

func (p *party) Dims() (int, int) {
	return p.localDim, p.peerDim
}

// Setup exchanges keys then dimensions, the peer must hold as many rows
func (p *party) Setup(ctx context.Context) error {
	if err := p.sess.ExchangeKeys(ctx); err != nil {
		return err
	}
	suffix := p.sess.Root("dims")
	b, _ := json.Marshal(&dims{Features: p.localDim, Rows: p.features.Rows(), Intercept: p.intercept})
	if err := p.sess.Send(ctx, suffix, b); err != nil {
		return err
	}
	pb, err := p.sess.Get(ctx, suffix)
	if err != nil {
		return err
	}
	var peer dims
	if err := json.Unmarshal(pb, &peer); err != nil {
		return err
	}
	if peer.Rows != p.features.Rows() {
		return fmt.Errorf("%w: local %d, peer %d", ErrRowMismatch, p.features.Rows(), peer.Rows)
	}
	if peer.Features <= 0 {
		return fmt.Errorf("%w: peer has no features", tensor.ErrShape)
	}
	p.peerDim = peer.Features
	p.peerIntercept = peer.Intercept
	return nil
}

// InitWeights keeps a random share of init and hands the rest to the peer,
// then receives the peer's share of its own initial weights
func (p *party) InitWeights(ctx context.Context, init []float64) error {
	if len(init) != p.localDim {
		return fmt.Errorf("%w: %d initial weights for %d features", tensor.ErrShape, len(init), p.localDim)
	}
	w, err := tensor.FromVector(p.sess.Encoder(), init)
	if err != nil {
		return err
	}
	suffix := p.sess.Root("init_weights")
	mine := suffix.With(p.Role().String())
	peer := suffix.With(peerRole(p.Role()).String())

	if p.wSelf, err = p.sess.Share(ctx, mine, w); err != nil {
		return err
	}
	if p.wRemote, err = p.sess.ReceiveShare(ctx, peer); err != nil {
		return err
	}
	if p.wRemote.Rows() != p.peerDim || p.wRemote.Cols() != 1 {
		return fmt.Errorf("%w: peer weights %dx%d, want %dx1", tensor.ErrShape, p.wRemote.Rows(), p.wRemote.Cols(), p.peerDim)
	}
	return nil
}

func peerRole(r spdz.Role) spdz.Role {
	if r == spdz.Guest {
		return spdz.Host
	}
	return spdz.Guest
}

// Batches splits the rows into consecutive batches
func (p *party) Batches() [][2]int {
	n := p.features.Rows()
	size := p.param.BatchSize
	if size <= 0 || size > n {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func (p *party) NewBatch(round, batch int) (*Batch, error) {
	if p.wSelf == nil || p.wRemote == nil {
		return nil, ErrNoWeights
	}
	batches := p.Batches()
	if batch < 0 || batch >= len(batches) {
		return nil, fmt.Errorf("%w: batch %d out of %d", tensor.ErrShape, batch, len(batches))
	}
	r := batches[batch]
	x, err := p.features.SliceRows(r[0], r[1])
	if err != nil {
		return nil, err
	}
	b := &Batch{
		Round:  round,
		Index:  batch,
		Suffix: p.sess.Suffix(round, batch),
		Start:  r[0],
		End:    r[1],
		X:      x,
	}
	if p.labels != nil {
		if b.Y, err = p.labels.SliceRows(r[0], r[1]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// invN encodes 1/n at scale 1
func (p *party) invN(b *Batch) (*big.Int, error) {
	return p.sess.Encoder().Encode(1.0 / float64(b.Size()))
}

// forward adds the local product to the two cross terms and truncates
func (p *party) forward(b *Batch, za, zb *tensor.FixedPointTensor) error {
	z1, err := b.X.Dot(p.wSelf)
	if err != nil {
		return err
	}
	z, err := z1.Add(za)
	if err != nil {
		return err
	}
	if z, err = z.Add(zb); err != nil {
		return err
	}
	b.Z, err = p.sess.Truncate(z, 1)
	return err
}

// penalize adds alpha*w to a gradient share, the intercept weight is left out
func (p *party) penalize(g, w *tensor.FixedPointTensor, intercept bool) (*tensor.FixedPointTensor, error) {
	if p.param.Penalty != PenaltyL2 || p.param.Alpha == 0 {
		return g, nil
	}
	alphas := make([]float64, w.Rows())
	for i := range alphas {
		alphas[i] = p.param.Alpha
	}
	if intercept && len(alphas) > 0 {
		alphas[len(alphas)-1] = 0
	}
	a, err := tensor.FromVector(p.sess.Encoder(), alphas)
	if err != nil {
		return nil, err
	}
	reg, err := w.Mul(a)
	if err != nil {
		return nil, err
	}
	if reg, err = p.sess.Truncate(reg, 1); err != nil {
		return nil, err
	}
	return g.Add(reg)
}

// step returns the truncated lr*g
func (p *party) step(g *tensor.FixedPointTensor) (*tensor.FixedPointTensor, error) {
	return p.sess.Truncate(g.MulScalar(p.lr, 1), 1)
}

// Update subtracts lr*g from both weight shares and flattens them
func (p *party) update(b *Batch, selfIntercept, remoteIntercept bool) error {
	if b.GradSelf == nil || b.GradRemote == nil {
		return fmt.Errorf("%w: update before gradient", tensor.ErrShape)
	}
	gSelf, err := p.penalize(b.GradSelf, p.wSelf, selfIntercept)
	if err != nil {
		return err
	}
	gRemote, err := p.penalize(b.GradRemote, p.wRemote, remoteIntercept)
	if err != nil {
		return err
	}
	if b.DeltaSelf, err = p.step(gSelf); err != nil {
		return err
	}
	if b.DeltaRemote, err = p.step(gRemote); err != nil {
		return err
	}
	wSelf, err := p.wSelf.Sub(b.DeltaSelf)
	if err != nil {
		return err
	}
	wRemote, err := p.wRemote.Sub(b.DeltaRemote)
	if err != nil {
		return err
	}
	if p.wSelf, err = wSelf.Reshape(p.localDim, 1); err != nil {
		return err
	}
	p.wRemote, err = wRemote.Reshape(p.peerDim, 1)
	return err
}

// revealDelta reveals the squared L2 norm of the whole update and nothing
// else. With d the local share of [guestDelta; hostDelta] and d' the peer one,
// |d+d'|^2 = |d|^2 + |d'|^2 + 2·d·d', the cross term comes from a secure product
// where the Guest holds d in plaintext and the Host encrypts d'.
func (p *party) revealDelta(ctx context.Context, b *Batch, guestDelta, hostDelta *tensor.FixedPointTensor) (float64, error) {
	if guestDelta == nil || hostDelta == nil {
		return 0, fmt.Errorf("%w: reveal before update", tensor.ErrShape)
	}
	if guestDelta.Scale() != hostDelta.Scale() {
		return 0, fmt.Errorf("%w: delta scales %d and %d", tensor.ErrScale, guestDelta.Scale(), hostDelta.Scale())
	}
	d, err := tensor.New(p.sess.Encoder(), guestDelta.Rows()+hostDelta.Rows(), 1, guestDelta.Scale(),
		append(guestDelta.Values(), hostDelta.Values()...))
	if err != nil {
		return 0, err
	}
	local, err := d.Transpose().Dot(d)
	if err != nil {
		return 0, err
	}

	var cross *tensor.FixedPointTensor
	if p.Role() == spdz.Guest {
		cross, err = p.sess.SecureMatMulPlain(ctx, b.Suffix.With("delta_cross"), d.Transpose())
	} else {
		cross, err = p.sess.SecureMatMulSecret(ctx, b.Suffix.With("delta_cross"), d)
	}
	if err != nil {
		return 0, err
	}
	share, err := local.Add(cross.MulScalar(big.NewInt(2), 0))
	if err != nil {
		return 0, err
	}
	sq, err := p.sess.Reveal(ctx, b.Suffix.With("delta_norm"), share)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(math.Max(sq.DecodeFlat()[0], 0)), nil
}

// revealWeights hands wRemote to the peer and recovers the local feature weights
func (p *party) revealWeights(ctx context.Context) ([]float64, error) {
	if p.wSelf == nil || p.wRemote == nil {
		return nil, ErrNoWeights
	}
	suffix := p.sess.Root("weights")
	if err := p.sess.RevealTo(ctx, suffix.With(peerRole(p.Role()).String()), p.wRemote); err != nil {
		return nil, err
	}
	w, err := p.sess.RevealFrom(ctx, suffix.With(p.Role().String()), p.wSelf)
	if err != nil {
		return nil, err
	}
	return w.DecodeFlat(), nil
}
