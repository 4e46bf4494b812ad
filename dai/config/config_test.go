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

package config

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/logic_regression/spdz_vertical"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/fixedpoint"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/sir"
)

const hostConf = `
[log]
level = "info"
path = "./logs"

[party]
name = "host"
role = "HOST"
listenAddress = ":8185"
peerName = "guest"
peerAddress = "127.0.0.1:8184"

    [party.data]
    path = "./host.csv"
    idName = "id"

[mpc]
learningRate = 0.3
maxIter = 5
penalty = "L2"
alpha = 0.1
converge = "weight_diff"
tol = 0.001

[sir]
securityLevel = 0
targetCols = ["x1"]

[storage]
path = "./models"
`

func writeConf(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInitConfig(t *testing.T) {
	require.NoError(t, InitConfig("./../conf/config.toml"))

	require.Equal(t, "./logs", GetLogConf().Path)
	require.Equal(t, spdz.Guest, GetPartyConf().ParsedRole())
	require.Equal(t, "y", GetPartyConf().Data.LabelName)

	mc := GetMpcConf()
	require.True(t, mc.Encoder().Equal(fixedpoint.Default()))
	require.Equal(t, spdz_vertical.PenaltyL2, mc.ParsedPenalty())
	require.Equal(t, ConvergeWeightDiff, mc.ParsedConverge())
	require.Equal(t, InitZeros, mc.ParsedInitMethod())
	require.Equal(t, 1024, mc.KeySize)

	sp := GetSIRParam()
	require.Equal(t, sir.OTHauck, sp.OTProtocol)
	require.Equal(t, []string{"y"}, sp.TargetCols)
	require.False(t, sp.Raw())
}

func TestInitConfigDefaults(t *testing.T) {
	require.NoError(t, InitConfig(writeConf(t, hostConf)))

	require.Equal(t, spdz.Host, GetPartyConf().ParsedRole())
	mc := GetMpcConf()
	require.Equal(t, uint(fixedpoint.DefaultPrecision), mc.Precision)
	require.Equal(t, spdz.DefaultStatisticalBits, mc.StatisticalBits)
	require.Equal(t, 0.5, mc.Threshold)

	p := mc.TrainParam()
	require.Equal(t, 0.3, p.LearningRate)
	require.Equal(t, spdz_vertical.PenaltyL2, p.Penalty)
	require.True(t, p.FitIntercept)

	require.True(t, GetSIRParam().Raw())
	require.Equal(t, []string{"x1"}, GetSIRParam().TargetCols)
}

func TestInitConfigRejects(t *testing.T) {
	cases := map[string][2]string{
		"role":      {`role = "HOST"`, `role = "arbiter"`},
		"penalty":   {`penalty = "L2"`, `penalty = "L1"`},
		"converge":  {`converge = "weight_diff"`, `converge = "loss"`},
		"keysize":   {`maxIter = 5`, "maxIter = 5\nkeySize = 256"},
		"level":     {`securityLevel = 0`, `securityLevel = 1.5`},
		"no label":  {`targetCols = ["x1"]`, `targetCols = []`},
		"same name": {`peerName = "guest"`, `peerName = "host"`},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			content := strings.Replace(hostConf, c[0], c[1], 1)
			require.NotEqual(t, hostConf, content)
			err := InitConfig(writeConf(t, content))
			require.Error(t, err)
			require.True(t, errorx.Is(err, errcodes.ErrCodeConfig), err.Error())
		})
	}
}

func TestInitConfigMissingFile(t *testing.T) {
	err := InitConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.True(t, errorx.Is(err, errcodes.ErrCodeConfig))
}
