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

package mpc

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	models "github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc/models/hetero_lr"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/storage/ldbstorage"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/table"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/transfer"
)

const confTemplate = `
[log]
level = "debug"
path = "%[1]s/logs"

[party]
name = "%[2]s"
role = "%[2]s"
listenAddress = ":0"
peerName = "%[3]s"
peerAddress = "127.0.0.1:1"

    [party.data]
    path = "%[1]s/data.csv"
    idName = "id"
    labelName = "%[4]s"

[mpc]
maxIter = 2
learningRate = 0.5
converge = "none"

[sir]
securityLevel = 0.5
targetCols = ["h1"]

[storage]
path = "%[1]s/models"
`

func loadConf(t *testing.T, role, peer, label string, rows [][]string) (Config, *ldbstorage.LevelDBStorage) {
	dir := t.TempDir()
	require.NoError(t, table.WriteRowsToFile(rows, filepath.Join(dir, "data.csv")))
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(fmt.Sprintf(confTemplate, dir, role, peer, label)), 0644))
	require.NoError(t, config.InitConfig(path))

	store, err := ldbstorage.New(config.GetStorageConf().Path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return Config{Party: config.GetPartyConf(), Mpc: config.GetMpcConf(), SIR: config.GetSIRParam()}, store
}

func newNodes(t *testing.T) (*Node, *Node) {
	gconf, gstore := loadConf(t, "guest", "host", "y", [][]string{
		{"id", "g1", "y"},
		{"u1", "1", "1"},
		{"u2", "-1", "0"},
		{"u3", "0.5", "1"},
	})
	hconf, hstore := loadConf(t, "host", "guest", "", [][]string{
		{"id", "h1", "h2"},
		{"u1", "0.5", "0.2"},
		{"u2", "0.5", "-0.3"},
		{"u3", "-0.2", "0.1"},
	})
	gc, hc := transfer.NewMemoryPair()
	g := newNode(gconf, gstore, nil, gc)
	h := newNode(hconf, hstore, nil, hc)
	return g, h
}

func both(t *testing.T, g, h func() error) {
	errs := make(chan error, 1)
	go func() { errs <- h() }()
	require.NoError(t, g())
	require.NoError(t, <-errs)
}

func TestNodeTasks(t *testing.T) {
	g, h := newNodes(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err := g.Train(ctx, "t1")
	require.Error(t, err, "not started")

	g.Start(ctx)
	h.Start(ctx)
	defer g.Stop()
	defer h.Stop()

	var gm, hm *models.Model
	both(t, func() (err error) {
		gm, err = g.Train(ctx, "t1")
		return
	}, func() (err error) {
		hm, err = h.Train(ctx, "t1")
		return
	})
	require.Equal(t, 2, gm.Rounds)
	require.True(t, gm.HasIntercept)
	require.Len(t, hm.Weights, 2)

	var stored models.Model
	require.NoError(t, g.store.Load(ldbstorage.KindModel, "t1", &stored))
	require.Equal(t, gm.Weights, stored.Weights)
	var res TaskResult
	require.NoError(t, h.store.Load(ldbstorage.KindResult, "train-t1", &res))
	require.True(t, res.Success)

	var outcomes []*models.Outcome
	both(t, func() (err error) {
		outcomes, err = g.Predict(ctx, "p1", "t1")
		return
	}, func() error {
		out, err := h.Predict(ctx, "p1", "t1")
		if out != nil {
			return fmt.Errorf("host got outcomes")
		}
		return err
	})
	require.Len(t, outcomes, 3)
	require.Equal(t, "u1", outcomes[0].ID)
	require.NoError(t, g.store.Load(ldbstorage.KindResult, "predict-p1", &res))
	require.Len(t, res.Rows, 4)
	require.NotNil(t, res.Evaluation)
	require.Equal(t, 3, res.Evaluation.TP+res.Evaluation.FP+res.Evaluation.FN+res.Evaluation.TN)

	both(t, func() error {
		r, err := g.Retrieve(ctx, "s1")
		if err != nil {
			return err
		}
		if len(r.Values) != 3 || r.Values[1][0] != "0.5" {
			return fmt.Errorf("unexpected retrieval %v", r.Values)
		}
		return nil
	}, func() error {
		_, err := h.Retrieve(ctx, "s1")
		return err
	})
	require.NoError(t, g.store.Load(ldbstorage.KindResult, "retrieve-s1", &res))
	require.Equal(t, []string{"id", "h1"}, res.Rows[0])
	require.Equal(t, 5, res.Rounds)
}

func TestNodeStartStopTwice(t *testing.T) {
	g, _ := newNodes(t)
	ctx := context.Background()

	g.Start(ctx)
	g.Start(ctx)
	require.NoError(t, g.isRunning())

	g.Stop()
	g.Stop()
	require.Error(t, g.isRunning())

	g.Start(ctx)
	require.Error(t, g.isRunning())
	g.Stop()
}

func TestPredictUnknownModel(t *testing.T) {
	g, _ := newNodes(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Start(ctx)
	defer g.Stop()

	_, err := g.Predict(ctx, "p1", "absent")
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotFound))
}
