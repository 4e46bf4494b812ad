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
	"encoding/json"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/common"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/evaluation/metrics"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/logic_regression/spdz_vertical"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/table"
)

var (
	logger = logrus.WithField("module", "mpc.models.hetero_lr")
)

// Transport sends the host scores and gathers them on the guest
type Transport interface {
	Send(ctx context.Context, tag string, payload []byte) error
	GetAll(ctx context.Context, tag string) ([][]byte, error)
}

// Model holds the plaintext weights one party learned for its own features.
// Only the guest model carries the intercept and the threshold.
type Model struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	HasIntercept bool      `json:"has_intercept"`
	Intercept    float64   `json:"intercept"`
	Threshold    float64   `json:"threshold"`
	Rounds       int       `json:"rounds"`
	Converged    bool      `json:"converged"`
}

// Outcome is the prediction of one sample, Label is nil when the guest data has no label
type Outcome struct {
	ID    string   `json:"id"`
	Label *float64 `json:"label,omitempty"`
	Prob  float64  `json:"prob"`
	Class int      `json:"class"`
}

type hostScores struct {
	IDs    []string  `json:"ids"`
	Scores []float64 `json:"scores"`
}

func tag(session string) string {
	return "predict/" + session + "/host_prob"
}

func (m *Model) role() (spdz.Role, error) {
	r, err := spdz.ParseRole(m.Role)
	if err != nil {
		return 0, errorx.NewCode(err, errcodes.ErrCodeParam, "invalid model")
	}
	return r, nil
}

// Validate checks the model matches the features of a data set
func (m *Model) Validate(ds *common.DataSet) error {
	if len(m.Weights) != len(m.FeatureNames) {
		return errorx.New(errcodes.ErrCodeParam, "model has %d weights for %d features", len(m.Weights), len(m.FeatureNames))
	}
	if len(ds.FeatureNames) != len(m.FeatureNames) {
		return errorx.New(errcodes.ErrCodeShape, "model expects %d features, data has %d", len(m.FeatureNames), len(ds.FeatureNames))
	}
	for i, name := range m.FeatureNames {
		if ds.FeatureNames[i] != name {
			return errorx.New(errcodes.ErrCodeShape, "feature %d is %s in the model and %s in the data", i, name, ds.FeatureNames[i])
		}
	}
	return nil
}

// localScores computes the partial score x.w of every sample keyed by id
func (m *Model) localScores(rows *table.Table) (*table.Table, error) {
	return rows.MapValues(func(v interface{}) (interface{}, error) {
		ins := v.(*common.Instance)
		var s float64
		for i, x := range ins.Features {
			s += x * m.Weights[i]
		}
		return s, nil
	})
}

// Predict runs the prediction of rows, a table of *common.Instance built from ds.
// The host sends its partial scores and returns nil, the guest returns one
// outcome per input row in input order.
func (m *Model) Predict(ctx context.Context, ch Transport, session string, ds *common.DataSet, rows *table.Table) ([]*Outcome, error) {
	role, err := m.role()
	if err != nil {
		return nil, err
	}
	if err := m.Validate(ds); err != nil {
		return nil, err
	}
	scores, err := m.localScores(rows)
	if err != nil {
		return nil, err
	}

	if role == spdz.Host {
		hs := hostScores{IDs: scores.Keys()}
		for _, e := range scores.Collect() {
			hs.Scores = append(hs.Scores, e.Value.(float64))
		}
		payload, err := json.Marshal(&hs)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to encode scores")
		}
		logger.WithField("rows", scores.Count()).Info("host scores sent")
		return nil, ch.Send(ctx, tag(session), payload)
	}

	payloads, err := ch.GetAll(ctx, tag(session))
	if err != nil {
		return nil, err
	}
	peer := scores
	for _, p := range payloads {
		var hs hostScores
		if err := json.Unmarshal(p, &hs); err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to decode host scores")
		}
		values := make([]interface{}, len(hs.Scores))
		for i, s := range hs.Scores {
			values[i] = s
		}
		ht, err := table.FromSlices(hs.IDs, values)
		if err != nil {
			return nil, err
		}
		if peer, err = peer.Join(ht, func(a, b interface{}) (interface{}, error) {
			return a.(float64) + b.(float64), nil
		}); err != nil {
			return nil, err
		}
	}
	if peer.Count() != rows.Count() {
		return nil, errorx.New(errcodes.ErrCodeRowCount, "%d rows in, %d scored rows", rows.Count(), peer.Count())
	}

	outcomes := make([]*Outcome, 0, peer.Count())
	for _, e := range peer.Collect() {
		z := e.Value.(float64)
		if m.HasIntercept {
			z += m.Intercept
		}
		o := &Outcome{ID: e.Key, Prob: spdz_vertical.Sigmoid(z)}
		if o.Prob >= m.Threshold {
			o.Class = 1
		}
		v, _ := rows.Get(e.Key)
		if ins := v.(*common.Instance); ins.HasLabel {
			label := ins.Label
			o.Label = &label
		}
		outcomes = append(outcomes, o)
	}
	logger.WithField("rows", len(outcomes)).Info("prediction finished")
	return outcomes, nil
}

// OutcomesToRows renders outcomes as csv rows with a header
func OutcomesToRows(idName string, outcomes []*Outcome) [][]string {
	header := []string{idName, "label", "prob", "class"}
	rows := [][]string{header}
	for _, o := range outcomes {
		label := ""
		if o.Label != nil {
			label = strconv.FormatFloat(*o.Label, 'g', -1, 64)
		}
		rows = append(rows, []string{o.ID, label, strconv.FormatFloat(o.Prob, 'f', 6, 64), strconv.Itoa(o.Class)})
	}
	return rows
}

// Evaluate scores outcomes against their labels, it returns nil when some outcome has no label
func Evaluate(outcomes []*Outcome) (*metrics.Report, error) {
	labels := make([]float64, len(outcomes))
	probs := make([]float64, len(outcomes))
	classes := make([]float64, len(outcomes))
	for i, o := range outcomes {
		if o.Label == nil {
			return nil, nil
		}
		labels[i], probs[i], classes[i] = *o.Label, o.Prob, float64(o.Class)
	}
	r, err := metrics.Evaluate(labels, probs, classes)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeParam, "failed to evaluate outcomes")
	}
	return r, nil
}
