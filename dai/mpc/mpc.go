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

// Package mpc runs the tasks of one party against its peer: training,
// prediction and secure information retrieval share one transfer channel.
package mpc

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/evaluation/metrics"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	learner "github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc/learners/hetero_lr"
	models "github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc/models/hetero_lr"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/server"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/sir"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/storage/ldbstorage"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/table"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/transfer"
)

var (
	logger = logrus.WithField("module", "mpc")
)

// Store keeps models and task results
type Store interface {
	Save(kind, name string, v interface{}) error
	Load(kind, name string, v interface{}) error
}

// TaskResult is what is persisted when a task ends
type TaskResult struct {
	TaskID  string        `json:"task_id"`
	Kind    string        `json:"kind"`
	Success bool          `json:"success"`
	ErrMsg  string        `json:"err_msg,omitempty"`
	Rounds  int           `json:"rounds,omitempty"`
	Rows    [][]string    `json:"rows,omitempty"`
	Model   *models.Model `json:"model,omitempty"`

	Evaluation *metrics.Report `json:"evaluation,omitempty"`
}

// Config assembles the validated sections a node needs
type Config struct {
	Party *config.PartyConf
	Mpc   *config.MpcConf
	SIR   *sir.Param
}

// Node is one party, it must be started before running tasks
type Node struct {
	conf  Config
	store Store
	srv   *server.Server
	ch    transfer.Channel

	lock    sync.Mutex
	running bool
	// stopped is set by the first Stop, the peer channel is closed for good
	stopped bool
	stopC   chan struct{}
	doneC   chan struct{}
}

// NewNode prepares the gRPC server and the channel to the peer
func NewNode(conf Config, store Store) *Node {
	srv := server.New(conf.Party.ListenAddress)
	ch := transfer.NewGrpcChannel(transfer.GrpcConf{
		Self:        conf.Party.Name,
		Peer:        conf.Party.PeerName,
		PeerAddress: conf.Party.PeerAddress,
		Timeout:     conf.Mpc.Timeout(),
		RetryTimes:  conf.Mpc.RetryTimes,
		RetryWait:   conf.Mpc.RetryWait(),
	}, srv.Endpoint)
	return newNode(conf, store, srv, ch)
}

func newNode(conf Config, store Store, srv *server.Server, ch transfer.Channel) *Node {
	return &Node{
		conf:  conf,
		store: store,
		srv:   srv,
		ch:    ch,
		stopC: make(chan struct{}),
		doneC: make(chan struct{}),
	}
}

// Start serves the peer's pushes in the background. It does nothing on a
// running node, and a stopped node cannot be started again.
func (n *Node) Start(ctx context.Context) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.running {
		return
	}
	if n.stopped {
		logger.Warning("node was stopped, ignoring start")
		return
	}
	n.running = true

	go func() {
		defer close(n.doneC)
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-n.stopC:
				cancel()
			case <-sctx.Done():
			}
		}()
		if n.srv == nil {
			<-sctx.Done()
			return
		}
		if err := n.srv.Serve(sctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("transfer server stopped")
		}
	}()
}

func (n *Node) isRunning() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if !n.running {
		return errorx.New(errcodes.ErrCodeInternal, "node is not running")
	}
	return nil
}

// Stop halts the server and waits for it
func (n *Node) Stop() {
	n.lock.Lock()
	if !n.running {
		n.lock.Unlock()
		return
	}
	n.running = false
	n.stopped = true
	n.lock.Unlock()

	close(n.stopC)
	<-n.doneC
	n.ch.Close()
}

func (n *Node) newSession(taskID string) (*spdz.Session, error) {
	sk, err := paillier.GeneratePrivateKey(n.conf.Mpc.KeySize / 2)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to generate paillier key")
	}
	sess, err := spdz.NewSession(spdz.Config{
		ID:              taskID,
		Role:            n.conf.Party.ParsedRole(),
		Encoder:         n.conf.Mpc.Encoder(),
		Key:             sk,
		Transport:       n.ch,
		StatisticalBits: uint(n.conf.Mpc.StatisticalBits),
	})
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeParam, "failed to create session")
	}
	return sess, nil
}

func (n *Node) labelName() string {
	if n.conf.Party.ParsedRole() == spdz.Guest {
		return n.conf.Party.Data.LabelName
	}
	return ""
}

// resultSaver persists learner results
type resultSaver struct {
	store Store
}

func (r *resultSaver) SaveResult(res *learner.Result) {
	tr := &TaskResult{TaskID: res.TaskID, Kind: "train", Success: res.Success, ErrMsg: res.ErrMsg, Model: res.Model}
	if res.Model != nil {
		tr.Rounds = res.Model.Rounds
		if err := r.store.Save(ldbstorage.KindModel, res.TaskID, res.Model); err != nil {
			logger.WithError(err).Warning("failed to save model")
		}
	}
	if err := r.store.Save(ldbstorage.KindResult, "train-"+res.TaskID, tr); err != nil {
		logger.WithError(err).Warning("failed to save train result")
	}
}

// Train fits a model with the peer, the model is stored under taskID
func (n *Node) Train(ctx context.Context, taskID string) (*models.Model, error) {
	if err := n.isRunning(); err != nil {
		return nil, err
	}
	pc, mc := n.conf.Party, n.conf.Mpc
	ds, _, err := table.LoadInstances(pc.Data.Path, pc.Data.IDName, n.labelName())
	if err != nil {
		return nil, err
	}
	sess, err := n.newSession(taskID)
	if err != nil {
		return nil, err
	}
	l, err := learner.NewLearner(taskID, sess, mc.TrainParam(), learner.Params{
		MaxIter:   mc.MaxIter,
		Converge:  mc.ParsedConverge(),
		Tol:       mc.Tol,
		Init:      mc.ParsedInitMethod(),
		InitConst: mc.InitConst,
		Threshold: mc.Threshold,
	}, ds, &resultSaver{store: n.store})
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{"task": taskID, "rows": len(ds.IDs), "role": pc.Role}).Info("training started")
	return l.Run(ctx)
}

// Predict scores the local data with the stored model modelID, the guest
// gets one outcome per row, the host gets nil
func (n *Node) Predict(ctx context.Context, taskID, modelID string) ([]*models.Outcome, error) {
	if err := n.isRunning(); err != nil {
		return nil, err
	}
	var m models.Model
	if err := n.store.Load(ldbstorage.KindModel, modelID, &m); err != nil {
		return nil, err
	}
	pc := n.conf.Party
	// labels are optional in prediction data
	ds, rows, err := table.LoadInstancesWithOptionalLabel(pc.Data.Path, pc.Data.IDName, n.labelName())
	if err != nil {
		return nil, err
	}
	outcomes, err := m.Predict(ctx, n.ch, taskID, ds, rows)
	res := &TaskResult{TaskID: taskID, Kind: "predict", Success: err == nil}
	if err != nil {
		res.ErrMsg = err.Error()
	} else if outcomes != nil {
		res.Rows = models.OutcomesToRows(pc.Data.IDName, outcomes)
		// labelled prediction data is evaluated on the guest
		report, eerr := models.Evaluate(outcomes)
		if eerr != nil {
			logger.WithError(eerr).Warning("failed to evaluate prediction")
		}
		res.Evaluation = report
	}
	if serr := n.store.Save(ldbstorage.KindResult, "predict-"+taskID, res); serr != nil {
		logger.WithError(serr).Warning("failed to save predict result")
	}
	return outcomes, err
}

// Retrieve runs a retrieval task, the guest queries the ids of its data file
// and the host serves the target columns of its own
func (n *Node) Retrieve(ctx context.Context, taskID string) (*sir.Result, error) {
	if err := n.isRunning(); err != nil {
		return nil, err
	}
	pc := n.conf.Party
	if pc.ParsedRole() == spdz.Host {
		rec, err := table.LoadRecords(pc.Data.Path, pc.Data.IDName, n.conf.SIR.TargetCols)
		if err != nil {
			return nil, err
		}
		p := sir.NewProvider(n.conf.SIR, n.ch, taskID, rec)
		err = p.Serve(ctx)
		logger.WithFields(logrus.Fields{"task": taskID, "ot_rounds": p.Rounds()}).Info("retrieval served")
		return nil, err
	}

	rec, err := table.LoadRecords(pc.Data.Path, pc.Data.IDName, nil)
	if err != nil {
		return nil, err
	}
	q := sir.NewQuerier(n.conf.SIR, n.ch, taskID)
	res, err := q.Retrieve(ctx, rec.IDs, nil)
	tr := &TaskResult{TaskID: taskID, Kind: "retrieve", Success: err == nil, Rounds: q.Rounds()}
	if err != nil {
		tr.ErrMsg = err.Error()
	} else {
		tr.Rows = ResultRows(pc.Data.IDName, res)
	}
	if serr := n.store.Save(ldbstorage.KindResult, "retrieve-"+taskID, tr); serr != nil {
		logger.WithError(serr).Warning("failed to save retrieve result")
	}
	return res, err
}

// ResultRows renders a retrieval result as csv rows with a header
func ResultRows(idName string, res *sir.Result) [][]string {
	rows := [][]string{append([]string{idName}, res.Columns...)}
	for i, id := range res.IDs {
		rows = append(rows, append([]string{id}, res.Values[i]...))
	}
	return rows
}
