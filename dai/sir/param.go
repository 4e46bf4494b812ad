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

package sir

import (
	"math"
	"strings"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

// MinKeySize is the smallest accepted commutative cipher key length
const MinKeySize = 768

// OTProtocol is the oblivious transfer scheme
type OTProtocol int

const (
	OTHauck OTProtocol = iota
)

// CommutativeEncryption is the scheme used to blind record ids
type CommutativeEncryption int

const (
	CommutativeEncryptionPohligHellman CommutativeEncryption = iota
)

// NonCommittingEncryption protects the transferred records
type NonCommittingEncryption int

const (
	NonCommittingAES NonCommittingEncryption = iota
)

var (
	otNames  = map[string]OTProtocol{"ot_hauck": OTHauck}
	ceNames  = map[string]CommutativeEncryption{"commutativeencryptionpohlighellman": CommutativeEncryptionPohligHellman}
	nceNames = map[string]NonCommittingEncryption{"aes": NonCommittingAES}
)

// Conf is the raw retrieval section of the configuration file
type Conf struct {
	SecurityLevel             float64
	ObliviousTransferProtocol string
	CommutativeEncryption     string
	NonCommittingEncryption   string
	KeySize                   int
	RawRetrieval              bool
	TargetCols                []string
}

// Param is a validated Conf
type Param struct {
	SecurityLevel           float64
	OTProtocol              OTProtocol
	CommutativeEncryption   CommutativeEncryption
	NonCommittingEncryption NonCommittingEncryption
	KeySize                 int
	RawRetrieval            bool
	TargetCols              []string
}

// Raw reports whether records are read directly without any OT round
func (p *Param) Raw() bool {
	return p.RawRetrieval || p.SecurityLevel == 0
}

// ParseParam validates c, scheme names are matched case-insensitively.
// An empty target column list falls back to labelName.
func ParseParam(c *Conf, labelName string) (*Param, error) {
	if c == nil {
		return nil, errorx.New(errcodes.ErrCodeConfig, "missing config: sir")
	}
	if math.IsNaN(c.SecurityLevel) || c.SecurityLevel < 0 || c.SecurityLevel > 1 {
		return nil, errorx.New(errcodes.ErrCodeConfig, "sir.securityLevel must be in [0, 1], got %v", c.SecurityLevel)
	}
	ot, ok := otNames[strings.ToLower(c.ObliviousTransferProtocol)]
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeConfig, "unsupported sir.obliviousTransferProtocol %q", c.ObliviousTransferProtocol)
	}
	ce, ok := ceNames[strings.ToLower(c.CommutativeEncryption)]
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeConfig, "unsupported sir.commutativeEncryption %q", c.CommutativeEncryption)
	}
	nce, ok := nceNames[strings.ToLower(c.NonCommittingEncryption)]
	if !ok {
		return nil, errorx.New(errcodes.ErrCodeConfig, "unsupported sir.nonCommittingEncryption %q", c.NonCommittingEncryption)
	}
	if c.KeySize < MinKeySize {
		return nil, errorx.New(errcodes.ErrCodeConfig, "sir.keySize must be at least %d, got %d", MinKeySize, c.KeySize)
	}

	var cols []string
	for _, col := range c.TargetCols {
		if col = strings.TrimSpace(col); col != "" {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		if labelName == "" {
			return nil, errorx.New(errcodes.ErrCodeConfig, "sir.targetCols is empty and no label column is configured")
		}
		cols = []string{labelName}
	}

	return &Param{
		SecurityLevel:           c.SecurityLevel,
		OTProtocol:              ot,
		CommutativeEncryption:   ce,
		NonCommittingEncryption: nce,
		KeySize:                 c.KeySize,
		RawRetrieval:            c.RawRetrieval,
		TargetCols:              cols,
	}, nil
}
