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

package ldbstorage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

type weights struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

func TestLevelDBStorage(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	w := weights{Names: []string{"x1", "x2"}, Values: []float64{0.5, -1.25}}
	require.NoError(t, s.Save(KindModel, "lr-1", &w))
	require.NoError(t, s.Save(KindModel, "lr-0", &weights{}))
	require.NoError(t, s.Save(KindResult, "lr-1", [][]string{{"a", "1"}}))

	var got weights
	require.NoError(t, s.Load(KindModel, "lr-1", &got))
	require.Equal(t, w, got)

	infos, err := s.List(KindModel)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "lr-0", infos[0].Name)
	require.Equal(t, "lr-1", infos[1].Name)

	err = s.Load(KindModel, "absent", &got)
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotFound))

	err = s.Save(KindModel, "a:b", &w)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))

	require.NoError(t, s.Delete(KindModel, "lr-0"))
	require.NoError(t, s.Close())

	// reopen keeps the data
	s, err = New(root)
	require.NoError(t, err)
	defer s.Close()
	infos, err = s.List(KindModel)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	var rows [][]string
	require.NoError(t, s.Load(KindResult, "lr-1", &rows))
	require.Equal(t, [][]string{{"a", "1"}}, rows)
}
