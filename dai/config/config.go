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
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/logic_regression/spdz_vertical"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/fixedpoint"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/sir"
)

var (
	logConf     *Log
	partyConf   *PartyConf
	mpcConf     *MpcConf
	sirConf     *sir.Conf
	sirParam    *sir.Param
	storageConf *StorageConf
)

// ConvergeMode decides when training stops before MaxIter
type ConvergeMode int

const (
	ConvergeNone ConvergeMode = iota
	ConvergeWeightDiff
)

// InitMethod decides the initial weights
type InitMethod int

const (
	InitZeros InitMethod = iota
	InitConst
	InitRandomUniform
)

// minimal key size leaving room for the masked products of the protocol
const minKeySize = 512

// Log configures the process log, see dai/util/logging
type Log struct {
	Level  string
	Path   string
	Format string
	// MaxAge and RotationTime are durations such as "720h"
	MaxAge       string
	RotationTime string
	Console      bool
}

type PartyConf struct {
	Name          string
	Role          string
	ListenAddress string
	PeerName      string
	PeerAddress   string
	SessionID     string
	Data          *DataConf

	role spdz.Role
}

// DataConf locates the local CSV file, LabelName is only read by the guest
type DataConf struct {
	Path      string
	IDName    string
	LabelName string
}

type MpcConf struct {
	FieldModulus    string
	Precision       uint
	KeySize         int
	StatisticalBits int
	LearningRate    float64
	MaxIter         int
	BatchSize       int
	FitIntercept    bool
	Penalty         string
	Alpha           float64
	InitMethod      string
	InitConst       float64
	Converge        string
	Tol             float64
	Threshold       float64
	RpcTimeout      int
	RetryTimes      int
	RetryInterval   int

	encoder    *fixedpoint.Encoder
	penalty    spdz_vertical.Penalty
	initMethod InitMethod
	converge   ConvergeMode
}

type StorageConf struct {
	Path string
}

// InitConfig parses configuration file and validates every section
func InitConfig(configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeConfig, "failed to read config %s", configPath)
	}

	lc := new(Log)
	pc := new(PartyConf)
	mc := defaultMpcConf()
	sc := &sir.Conf{
		SecurityLevel:             0.5,
		ObliviousTransferProtocol: "OT_Hauck",
		CommutativeEncryption:     "CommutativeEncryptionPohligHellman",
		NonCommittingEncryption:   "aes",
		KeySize:                   1024,
	}
	stc := new(StorageConf)

	sections := []struct {
		name     string
		out      interface{}
		required bool
	}{
		{"log", lc, true},
		{"party", pc, true},
		{"mpc", mc, false},
		{"sir", sc, false},
		{"storage", stc, true},
	}
	for _, s := range sections {
		sub := v.Sub(s.name)
		if sub == nil {
			if s.required {
				return errorx.New(errcodes.ErrCodeConfig, "missing config: %s", s.name)
			}
			continue
		}
		if err := sub.Unmarshal(s.out); err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeConfig, "failed to parse config section %s", s.name)
		}
	}

	if err := pc.validate(); err != nil {
		return err
	}
	if err := mc.validate(); err != nil {
		return err
	}
	if stc.Path == "" {
		return errorx.New(errcodes.ErrCodeConfig, "missing config: storage.path")
	}
	sp, err := sir.ParseParam(sc, pc.Data.LabelName)
	if err != nil {
		return err
	}

	logConf, partyConf, mpcConf, sirConf, sirParam, storageConf = lc, pc, mc, sc, sp, stc
	return nil
}

func defaultMpcConf() *MpcConf {
	return &MpcConf{
		Precision:       fixedpoint.DefaultPrecision,
		KeySize:         1024,
		StatisticalBits: spdz.DefaultStatisticalBits,
		LearningRate:    0.15,
		MaxIter:         20,
		FitIntercept:    true,
		Penalty:         "none",
		InitMethod:      "zeros",
		Converge:        "none",
		Tol:             1e-4,
		Threshold:       0.5,
		RpcTimeout:      60,
		RetryTimes:      3,
		RetryInterval:   3,
	}
}

func (c *PartyConf) validate() error {
	role, err := spdz.ParseRole(c.Role)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeConfig, "invalid party.role")
	}
	c.role = role
	if c.Name == "" || c.PeerName == "" {
		return errorx.New(errcodes.ErrCodeConfig, "missing config: party.name or party.peerName")
	}
	if c.Name == c.PeerName {
		return errorx.New(errcodes.ErrCodeConfig, "party.name and party.peerName must differ")
	}
	if c.ListenAddress == "" || c.PeerAddress == "" {
		return errorx.New(errcodes.ErrCodeConfig, "missing config: party.listenAddress or party.peerAddress")
	}
	if c.Data == nil || c.Data.Path == "" || c.Data.IDName == "" {
		return errorx.New(errcodes.ErrCodeConfig, "missing config: party.data.path or party.data.idName")
	}
	if role == spdz.Guest && c.Data.LabelName == "" {
		return errorx.New(errcodes.ErrCodeConfig, "missing config: party.data.labelName, the guest holds the labels")
	}
	return nil
}

func (c *MpcConf) validate() error {
	field := fixedpoint.DefaultField
	if c.FieldModulus != "" {
		q, ok := new(big.Int).SetString(c.FieldModulus, 0)
		if !ok {
			return errorx.New(errcodes.ErrCodeConfig, "invalid mpc.fieldModulus %q", c.FieldModulus)
		}
		field = q
	}
	enc, err := fixedpoint.NewEncoder(field, c.Precision)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeConfig, "invalid mpc field or precision")
	}
	c.encoder = enc

	if c.KeySize < minKeySize || c.KeySize%2 != 0 {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.keySize must be an even number of at least %d bits, got %d", minKeySize, c.KeySize)
	}
	// three products of field elements plus the statistical mask must fit
	if need := 3*field.BitLen() + c.StatisticalBits + 8; c.KeySize < need {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.keySize %d too small for a %d bits field, need at least %d",
			c.KeySize, field.BitLen(), need)
	}
	if c.StatisticalBits < 20 {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.statisticalBits must be at least 20, got %d", c.StatisticalBits)
	}
	if !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0) {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.learningRate must be positive, got %v", c.LearningRate)
	}
	if c.MaxIter <= 0 {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.maxIter must be positive, got %d", c.MaxIter)
	}
	if c.BatchSize < 0 {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.batchSize must not be negative, got %d", c.BatchSize)
	}
	if c.Alpha < 0 {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.alpha must not be negative, got %v", c.Alpha)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.threshold must be in [0, 1], got %v", c.Threshold)
	}
	if c.RpcTimeout <= 0 || c.RetryTimes <= 0 || c.RetryInterval < 0 {
		return errorx.New(errcodes.ErrCodeConfig, "mpc.rpcTimeout and mpc.retryTimes must be positive")
	}

	switch strings.ToLower(c.Penalty) {
	case "", "none":
		c.penalty = spdz_vertical.PenaltyNone
	case "l2":
		c.penalty = spdz_vertical.PenaltyL2
	case "l1":
		return errorx.New(errcodes.ErrCodeConfig, "mpc.penalty l1 is not supported on secret shared weights")
	default:
		return errorx.New(errcodes.ErrCodeConfig, "unknown mpc.penalty %q", c.Penalty)
	}

	switch strings.ToLower(c.InitMethod) {
	case "", "zeros":
		c.initMethod = InitZeros
	case "const":
		c.initMethod = InitConst
	case "random_uniform":
		c.initMethod = InitRandomUniform
	default:
		return errorx.New(errcodes.ErrCodeConfig, "unknown mpc.initMethod %q", c.InitMethod)
	}

	switch strings.ToLower(c.Converge) {
	case "", "none":
		c.converge = ConvergeNone
	case "weight_diff":
		c.converge = ConvergeWeightDiff
		if !(c.Tol > 0) {
			return errorx.New(errcodes.ErrCodeConfig, "mpc.tol must be positive with weight_diff convergence")
		}
	default:
		return errorx.New(errcodes.ErrCodeConfig, "unknown mpc.converge %q", c.Converge)
	}
	return nil
}

// ParsedRole returns the validated party role
func (c *PartyConf) ParsedRole() spdz.Role {
	return c.role
}

// Encoder returns the fixed point encoder of the configured field and precision
func (c *MpcConf) Encoder() *fixedpoint.Encoder {
	return c.encoder
}

func (c *MpcConf) ParsedPenalty() spdz_vertical.Penalty {
	return c.penalty
}

func (c *MpcConf) ParsedInitMethod() InitMethod {
	return c.initMethod
}

func (c *MpcConf) ParsedConverge() ConvergeMode {
	return c.converge
}

// TrainParam returns the hyper parameters shared by both parties
func (c *MpcConf) TrainParam() spdz_vertical.Param {
	return spdz_vertical.Param{
		LearningRate: c.LearningRate,
		Penalty:      c.penalty,
		Alpha:        c.Alpha,
		FitIntercept: c.FitIntercept,
		BatchSize:    c.BatchSize,
	}
}

func (c *MpcConf) Timeout() time.Duration {
	return time.Duration(c.RpcTimeout) * time.Second
}

func (c *MpcConf) RetryWait() time.Duration {
	return time.Duration(c.RetryInterval) * time.Second
}

func GetLogConf() *Log {
	return logConf
}

func GetPartyConf() *PartyConf {
	return partyConf
}

func GetMpcConf() *MpcConf {
	return mpcConf
}

func GetSIRConf() *sir.Conf {
	return sirConf
}

// GetSIRParam returns the validated retrieval parameters
func GetSIRParam() *sir.Param {
	return sirParam
}

func GetStorageConf() *StorageConf {
	return storageConf
}
