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

package metrics

import (
	"errors"
	"sort"
)

var (
	ErrLengthMismatch = errors.New("labels and predictions not match")
	ErrEmpty          = errors.New("labels and predictions are empty")
)

// ConfusionMatrix counts binary outcomes, the positive label is 1
type ConfusionMatrix struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TN int `json:"tn"`
}

// Report is the evaluation of a prediction against known labels
type Report struct {
	ConfusionMatrix
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1Score"`
	AUC       float64 `json:"auc"`
}

// NewConfusionMatrix builds a ConfusionMatrix from real labels and predicted classes,
// the same index refers to the same sample
func NewConfusionMatrix(labels, classes []float64) (ConfusionMatrix, error) {
	var cm ConfusionMatrix
	if len(labels) != len(classes) {
		return cm, ErrLengthMismatch
	}
	if len(labels) == 0 {
		return cm, ErrEmpty
	}
	for i, l := range labels {
		switch {
		case l == 1 && classes[i] == 1:
			cm.TP++
		case l == 1:
			cm.FN++
		case classes[i] == 1:
			cm.FP++
		default:
			cm.TN++
		}
	}
	return cm, nil
}

// GetAccuracy is (number of correctly classified instances) / total instances
func (cm ConfusionMatrix) GetAccuracy() float64 {
	return float64(cm.TP+cm.TN) / float64(cm.TP+cm.TN+cm.FP+cm.FN)
}

// GetPrecision returns 0 when nothing was predicted positive
func (cm ConfusionMatrix) GetPrecision() float64 {
	if cm.TP+cm.FP == 0 {
		return 0
	}
	return float64(cm.TP) / float64(cm.TP+cm.FP)
}

// GetRecall returns 0 when there is no positive sample
func (cm ConfusionMatrix) GetRecall() float64 {
	if cm.TP+cm.FN == 0 {
		return 0
	}
	return float64(cm.TP) / float64(cm.TP+cm.FN)
}

// GetF1Score computes the harmonic mean of Precision and Recall
func (cm ConfusionMatrix) GetF1Score() float64 {
	p, r := cm.GetPrecision(), cm.GetRecall()
	if p == 0 && r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// GetROC returns the points [FPR, TPR, threshold] of the roc, one per distinct
// predicted value in decreasing order, after the origin
func GetROC(labels, probs []float64) ([][3]float64, error) {
	if len(labels) != len(probs) {
		return nil, ErrLengthMismatch
	}
	if len(labels) == 0 {
		return nil, ErrEmpty
	}

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	pos := 0
	for _, l := range labels {
		if l == 1 {
			pos++
		}
	}
	neg := len(labels) - pos

	rate := func(n, total int) float64 {
		if total == 0 {
			return 1
		}
		return float64(n) / float64(total)
	}

	ret := [][3]float64{{0, 0, probs[idx[0]] + 1}}
	tp, fp := 0, 0
	for i, k := range idx {
		if labels[k] == 1 {
			tp++
		} else {
			fp++
		}
		// samples sharing a score form a single point
		if i+1 < len(idx) && probs[idx[i+1]] == probs[k] {
			continue
		}
		ret = append(ret, [3]float64{rate(fp, neg), rate(tp, pos), probs[k]})
	}
	return ret, nil
}

// GetAUC sums the trapezoids under the roc points, FPR must not decrease
func GetAUC(points [][3]float64) (float64, error) {
	if len(points) < 2 {
		return 0, errors.New("the number of points needs to be greater than 1")
	}
	var auc float64
	for i := 0; i < len(points)-1; i++ {
		width := points[i+1][0] - points[i][0]
		if width < 0 {
			return 0, errors.New("the points' FPRs must be monotonic increasing")
		}
		auc += width * (points[i][1] + points[i+1][1]) / 2
	}
	return auc, nil
}

// Evaluate compares probabilities and classes predicted at some threshold with real labels
func Evaluate(labels, probs, classes []float64) (*Report, error) {
	cm, err := NewConfusionMatrix(labels, classes)
	if err != nil {
		return nil, err
	}
	roc, err := GetROC(labels, probs)
	if err != nil {
		return nil, err
	}
	auc, err := GetAUC(roc)
	if err != nil {
		return nil, err
	}
	return &Report{
		ConfusionMatrix: cm,
		Accuracy:        cm.GetAccuracy(),
		Precision:       cm.GetPrecision(),
		Recall:          cm.GetRecall(),
		F1Score:         cm.GetF1Score(),
		AUC:             auc,
	}, nil
}
