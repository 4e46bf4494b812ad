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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var rows = [][]string{
	{"id", "x1", "y", "x2"},
	{"a", "1.5", "1", "-2"},
	{"b", "0", "0", "3.25"},
}

func TestImportInstances(t *testing.T) {
	ds, err := ImportInstances(rows, "id", "y")
	require.NoError(t, err)
	require.Equal(t, []string{"x1", "x2"}, ds.FeatureNames)
	require.Equal(t, []string{"a", "b"}, ds.IDs)
	require.Equal(t, [][]float64{{1.5, -2}, {0, 3.25}}, ds.Features())
	require.Equal(t, []float64{1, 0}, ds.Labels())

	ds, err = ImportInstances(rows, "id", "")
	require.NoError(t, err)
	require.Equal(t, []string{"x1", "y", "x2"}, ds.FeatureNames)
	require.Nil(t, ds.Labels())
}

func TestImportInstancesErrors(t *testing.T) {
	_, err := ImportInstances(nil, "id", "")
	require.Error(t, err)

	_, err = ImportInstances(rows, "uid", "")
	require.Error(t, err)

	_, err = ImportInstances(rows, "id", "x1")
	require.Error(t, err, "1.5 is not a binary label")

	dup := append(append([][]string{}, rows...), []string{"a", "1", "1", "1"})
	_, err = ImportInstances(dup, "id", "y")
	require.Error(t, err)
}

func TestSelectColumns(t *testing.T) {
	rec, err := SelectColumns(rows, "id", []string{"x2", "y"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, rec.IDs)
	require.Equal(t, [][]string{{"-2", "1"}, {"3.25", "0"}}, rec.Values)

	_, err = SelectColumns(rows, "id", []string{"z"})
	require.Error(t, err)
}
