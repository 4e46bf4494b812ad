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

package hetero_lr

import (
	"context"
	"errors"
	"math"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/rand"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/common"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/logic_regression/spdz_vertical"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/tensor"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	models "github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc/models/hetero_lr"
)

var (
	logger = logrus.WithField("module", "mpc.learners.hetero_lr")
)

// ResultHandler handles final result which is successful or failed
// Should be called when learning finished
type ResultHandler interface {
	SaveResult(*Result)
}

// Result of a training task, Model is nil on failure
type Result struct {
	TaskID  string
	Success bool
	ErrMsg  string
	Model   *models.Model
}

// Params controls the training loop around the protocol
type Params struct {
	MaxIter   int
	Converge  config.ConvergeMode
	Tol       float64
	Init      config.InitMethod
	InitConst float64
	Threshold float64
}

type learnerStatusType uint8

const (
	learnerStatusInit learnerStatusType = iota
	learnerStatusForward
	learnerStatusError
	learnerStatusGradient
	learnerStatusUpdate
	learnerStatusTerminal
	learnerStatusFailed
)

func (s learnerStatusType) String() string {
	switch s {
	case learnerStatusInit:
		return "INIT"
	case learnerStatusForward:
		return "FORWARD"
	case learnerStatusError:
		return "ERROR"
	case learnerStatusGradient:
		return "GRADIENT"
	case learnerStatusUpdate:
		return "UPDATE"
	case learnerStatusTerminal:
		return "TERMINAL"
	}
	return "FAILED"
}

// Learner drives one party through the rounds of hetero logistic regression
type Learner struct {
	id      string
	trainer spdz_vertical.Trainer
	dataset *common.DataSet
	params  Params
	rh      ResultHandler

	status learnerStatusType
	round  int
	// sent is set once the first message of the session left, from then on
	// a failure leaves the peer in an unknown state
	sent bool
}

// NewLearner builds the trainer of the local role over ds. rh may be nil.
func NewLearner(id string, sess *spdz.Session, param spdz_vertical.Param, params Params,
	ds *common.DataSet, rh ResultHandler) (*Learner, error) {
	if params.MaxIter <= 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "maxIter must be positive, got %d", params.MaxIter)
	}
	if len(ds.Instances) == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "no training sample")
	}

	var (
		tr  spdz_vertical.Trainer
		err error
	)
	if sess.Role() == spdz.Guest {
		labels := ds.Labels()
		if labels == nil {
			return nil, errorx.New(errcodes.ErrCodeParam, "the guest needs labelled samples")
		}
		tr, err = spdz_vertical.NewGuest(sess, param, ds.Features(), labels)
	} else {
		tr, err = spdz_vertical.NewHost(sess, param, ds.Features())
	}
	if err != nil {
		return nil, classify(err, false)
	}
	return &Learner{
		id:      id,
		trainer: tr,
		dataset: ds,
		params:  params,
		rh:      rh,
	}, nil
}

// classify maps an error to its code, once the session is under way any
// failure that is not already coded becomes a desync. Aborted is kept, it is
// only raised between rounds.
func classify(err error, midSession bool) error {
	if err == nil {
		return nil
	}
	code, _ := errorx.Parse(err)
	switch {
	case errors.Is(err, tensor.ErrShape), errors.Is(err, tensor.ErrField), errors.Is(err, tensor.ErrScale),
		errors.Is(err, tensor.ErrPlaintextOverflow):
		return errorx.NewCode(err, errcodes.ErrCodeShape, "tensor mismatch")
	case errors.Is(err, spdz_vertical.ErrRowMismatch):
		return errorx.NewCode(err, errcodes.ErrCodeParam, "samples are not aligned")
	case code == errcodes.ErrCodeDesync || code == errcodes.ErrCodeShape || code == errcodes.ErrCodeAborted:
		return err
	case midSession:
		return errorx.NewCode(err, errcodes.ErrCodeDesync, "session broken")
	case code != errcodes.ErrCodeInternal:
		return err
	}
	return errorx.Internal(err, "training failed")
}

func (l *Learner) setStatus(s learnerStatusType, b *spdz_vertical.Batch) {
	l.status = s
	fields := logrus.Fields{"task": l.id, "role": l.trainer.Role().String(), "state": s.String()}
	if b != nil {
		fields["round"], fields["batch"] = b.Round, b.Index
	}
	logger.WithFields(fields).Debug("state changed")
}

// initWeights returns the initial weights of the local features
func (l *Learner) initWeights() ([]float64, error) {
	local, _ := l.trainer.Dims()
	w := make([]float64, local)
	switch l.params.Init {
	case config.InitConst:
		for i := range w {
			w[i] = l.params.InitConst
		}
	case config.InitRandomUniform:
		s, err := rand.NewSampler()
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to seed sampler")
		}
		unit := new(big.Int).Lsh(big.NewInt(1), 53)
		for i := range w {
			v, err := s.Int(unit)
			if err != nil {
				return nil, errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to sample")
			}
			w[i] = float64(v.Int64()) / float64(1<<53)
		}
	}
	return w, nil
}

// Run trains until maxIter rounds or convergence, then reveals to each party
// the weights of its own features. Cancelling ctx is clean only between rounds.
func (l *Learner) Run(ctx context.Context) (model *models.Model, err error) {
	defer func() {
		if err != nil {
			l.status = learnerStatusFailed
			err = classify(err, l.sent)
			logger.WithFields(logrus.Fields{
				"task":  l.id,
				"round": l.round,
				"error": err.Error(),
			}).Warning("failed to train out a model")
			if l.rh != nil {
				l.rh.SaveResult(&Result{TaskID: l.id, ErrMsg: err.Error()})
			}
			return
		}
		if l.rh != nil {
			l.rh.SaveResult(&Result{TaskID: l.id, Success: true, Model: model})
		}
	}()

	l.setStatus(learnerStatusInit, nil)
	if err := ctx.Err(); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeAborted, "cancelled before start")
	}
	l.sent = true
	if err := l.trainer.Setup(ctx); err != nil {
		return nil, err
	}
	w0, err := l.initWeights()
	if err != nil {
		return nil, err
	}
	if err := l.trainer.InitWeights(ctx, w0); err != nil {
		return nil, err
	}

	converged := false
	rounds := 0
	for l.round = 0; l.round < l.params.MaxIter && !converged; l.round++ {
		if err := ctx.Err(); err != nil {
			// both parties stop at the same boundary only if cancelled together
			return nil, errorx.NewCode(err, errcodes.ErrCodeAborted, "cancelled before round %d", l.round)
		}
		diff, err := l.fitRound(ctx)
		if err != nil {
			return nil, err
		}
		rounds++
		if l.params.Converge == config.ConvergeWeightDiff {
			logger.WithFields(logrus.Fields{"task": l.id, "round": l.round, "weight_diff": diff}).Info("round finished")
			converged = diff < l.params.Tol
		} else {
			logger.WithFields(logrus.Fields{"task": l.id, "round": l.round}).Info("round finished")
		}
	}

	w, err := l.trainer.RevealWeights(ctx)
	if err != nil {
		return nil, err
	}
	l.setStatus(learnerStatusTerminal, nil)
	model = l.buildModel(w, rounds, converged)
	logger.WithFields(logrus.Fields{
		"task":      l.id,
		"rounds":    rounds,
		"converged": converged,
	}).Info("training finished")
	return model, nil
}

// fitRound runs every batch once, the result is the norm of the revealed
// weight updates when convergence is checked
func (l *Learner) fitRound(ctx context.Context) (float64, error) {
	var sq float64
	for i := range l.trainer.Batches() {
		b, err := l.trainer.NewBatch(l.round, i)
		if err != nil {
			return 0, err
		}
		l.setStatus(learnerStatusForward, b)
		if err := l.trainer.Forward(ctx, b); err != nil {
			return 0, err
		}
		l.setStatus(learnerStatusError, b)
		if err := l.trainer.ComputeError(b); err != nil {
			return 0, err
		}
		l.setStatus(learnerStatusGradient, b)
		if err := l.trainer.ComputeGradient(ctx, b); err != nil {
			return 0, err
		}
		l.setStatus(learnerStatusUpdate, b)
		if err := l.trainer.Update(b); err != nil {
			return 0, err
		}
		if l.params.Converge == config.ConvergeWeightDiff {
			d, err := l.trainer.RevealDelta(ctx, b)
			if err != nil {
				return 0, err
			}
			sq += d * d
		}
	}
	return math.Sqrt(sq), nil
}

func (l *Learner) buildModel(w []float64, rounds int, converged bool) *models.Model {
	m := &models.Model{
		ID:           l.id,
		Role:         l.trainer.Role().String(),
		FeatureNames: l.dataset.FeatureNames,
		Rounds:       rounds,
		Converged:    converged,
	}
	if l.trainer.Role() == spdz.Guest {
		m.Threshold = l.params.Threshold
		if len(w) > len(l.dataset.FeatureNames) {
			m.HasIntercept = true
			m.Intercept = w[len(w)-1]
			w = w[:len(w)-1]
		}
	}
	m.Weights = w
	return m
}
