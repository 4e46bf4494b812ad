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

package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

func TestInitLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	l, err := InitLog(&config.Log{Level: "warn", Path: dir}, "caesar.log", true)
	require.NoError(t, err)
	require.Equal(t, logrus.WarnLevel, l.Level)
	require.IsType(t, &logrus.TextFormatter{}, l.Formatter)

	_, err = os.Stat(dir)
	require.NoError(t, err)

	l, err = InitLog(&config.Log{Path: dir, Format: "JSON", MaxAge: "48h", RotationTime: "30m", Console: true}, "caesar.log", true)
	require.NoError(t, err)
	require.Equal(t, DefaultLevel, l.Level)
	require.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	l, err = InitLog(&config.Log{Path: dir}, "caesar.log", false)
	require.NoError(t, err)
	require.Nil(t, l.Formatter)
}

func TestInitLogRejects(t *testing.T) {
	dir := t.TempDir()
	for _, conf := range []*config.Log{
		nil,
		{Level: "info"},
		{Path: dir, Level: "nonsense"},
		{Path: dir, Format: "xml"},
		{Path: dir, MaxAge: "forever"},
		{Path: dir, RotationTime: "-1h"},
		{Path: dir, MaxAge: "1h", RotationTime: "2h"},
	} {
		_, err := InitLog(conf, "caesar.log", false)
		require.True(t, errorx.Is(err, errcodes.ErrCodeConfig), "%+v", conf)
	}
}

func TestApply(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetLevel(logrus.GetLevel())

	l, err := InitLog(&config.Log{Path: t.TempDir(), Level: "error"}, "caesar.log", false)
	require.NoError(t, err)
	l.Apply()
	require.Equal(t, logrus.ErrorLevel, logrus.GetLevel())
}
