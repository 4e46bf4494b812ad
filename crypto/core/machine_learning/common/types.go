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

package common

// Instance is one aligned sample, Label is only meaningful when HasLabel is set
type Instance struct {
	Features []float64 `json:"features"`
	Label    float64   `json:"label"`
	HasLabel bool      `json:"has_label"`
}

// DataSet is the local vertical slice of the aligned samples, rows keep the file order
type DataSet struct {
	IDName       string      `json:"id_name"`
	LabelName    string      `json:"label_name,omitempty"`
	FeatureNames []string    `json:"feature_names"`
	IDs          []string    `json:"ids"`
	Instances    []*Instance `json:"instances"`
}

// Features returns the feature matrix, one row per sample
func (d *DataSet) Features() [][]float64 {
	x := make([][]float64, len(d.Instances))
	for i, ins := range d.Instances {
		x[i] = ins.Features
	}
	return x
}

// Labels returns the labels or nil if the data set has none
func (d *DataSet) Labels() []float64 {
	if d.LabelName == "" {
		return nil
	}
	y := make([]float64, len(d.Instances))
	for i, ins := range d.Instances {
		y[i] = ins.Label
	}
	return y
}

// Records holds selected raw columns keyed by sample id
type Records struct {
	Columns []string
	IDs     []string
	Values  [][]string
}
