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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/common"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/logic_regression/spdz_vertical"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/table"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/transfer"
)

func load(t *testing.T, rows [][]string, label string) (*common.DataSet, *table.Table) {
	ds, err := common.ImportInstances(rows, "id", label)
	require.NoError(t, err)
	values := make([]interface{}, len(ds.Instances))
	for i, ins := range ds.Instances {
		values[i] = ins
	}
	tb, err := table.FromSlices(ds.IDs, values)
	require.NoError(t, err)
	return ds, tb
}

var (
	guestModel = &Model{
		Role:         "guest",
		FeatureNames: []string{"x1"},
		Weights:      []float64{2},
		HasIntercept: true,
		Intercept:    -1,
		Threshold:    0.5,
	}
	hostModel = &Model{
		Role:         "host",
		FeatureNames: []string{"x2", "x3"},
		Weights:      []float64{1, -1},
	}
)

func predict(t *testing.T, guestRows, hostRows [][]string, label string) ([]*Outcome, error) {
	gds, gt := load(t, guestRows, label)
	hds, ht := load(t, hostRows, "")

	gc, hc := transfer.NewMemoryPair()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := hostModel.Predict(ctx, hc, "p1", hds, ht)
		done <- err
	}()
	out, err := guestModel.Predict(ctx, gc, "p1", gds, gt)
	require.NoError(t, <-done)
	return out, err
}

func TestPredict(t *testing.T) {
	guestRows := [][]string{{"id", "x1", "y"}, {"c", "1", "1"}, {"a", "0", "0"}, {"b", "0.25", "1"}}
	hostRows := [][]string{{"id", "x2", "x3"}, {"a", "1", "3"}, {"b", "0.5", "0"}, {"c", "0", "0.5"}, {"d", "9", "9"}}

	out, err := predict(t, guestRows, hostRows, "y")
	require.NoError(t, err)
	require.Len(t, out, 3)

	// order of the guest rows, z = 2*x1 - 1 + x2 - x3
	wantZ := map[string]float64{"c": 0.5, "a": -3, "b": 0}
	wantLabel := map[string]float64{"c": 1, "a": 0, "b": 1}
	for i, id := range []string{"c", "a", "b"} {
		o := out[i]
		require.Equal(t, id, o.ID)
		require.InDelta(t, spdz_vertical.Sigmoid(wantZ[id]), o.Prob, 1e-12)
		require.NotNil(t, o.Label)
		require.Equal(t, wantLabel[id], *o.Label)
	}
	require.Equal(t, 1, out[0].Class)
	require.Equal(t, 0, out[1].Class)
	require.Equal(t, 1, out[2].Class, "sigmoid(0) reaches the threshold")

	rows := OutcomesToRows("id", out)
	require.Equal(t, []string{"id", "label", "prob", "class"}, rows[0])
	require.Equal(t, []string{"a", "0", "0.047426", "0"}, rows[2])

	report, err := Evaluate(out)
	require.NoError(t, err)
	require.Equal(t, 1.0, report.Accuracy)
	require.InDelta(t, 1.0, report.AUC, 1e-12)
	require.Equal(t, 2, report.TP)
}

func TestPredictWithoutLabel(t *testing.T) {
	out, err := predict(t,
		[][]string{{"id", "x1"}, {"a", "1"}},
		[][]string{{"id", "x2", "x3"}, {"a", "0", "0"}}, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Nil(t, out[0].Label)
	require.Equal(t, []string{"a", "", "0.731059", "1"}, OutcomesToRows("id", out)[1])

	report, err := Evaluate(out)
	require.NoError(t, err)
	require.Nil(t, report)
}

func TestPredictRowCount(t *testing.T) {
	_, err := predict(t,
		[][]string{{"id", "x1"}, {"a", "1"}, {"b", "2"}},
		[][]string{{"id", "x2", "x3"}, {"a", "0", "0"}}, "")
	require.True(t, errorx.Is(err, errcodes.ErrCodeRowCount))
}

func TestValidate(t *testing.T) {
	ds, _ := load(t, [][]string{{"id", "x9"}, {"a", "1"}}, "")
	require.True(t, errorx.Is(guestModel.Validate(ds), errcodes.ErrCodeShape))

	ds, _ = load(t, [][]string{{"id", "x1", "x2"}, {"a", "1", "2"}}, "")
	require.True(t, errorx.Is(guestModel.Validate(ds), errcodes.ErrCodeShape))

	bad := &Model{Role: "arbiter"}
	_, err := bad.Predict(context.Background(), nil, "p", ds, nil)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))
}
