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

package rand

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// 安全强度低
	KeyStrengthEasy = iota
	// 安全强度中
	KeyStrengthMiddle
	// 安全强度高
	KeyStrengthHard
)

var (
	ErrInvalidEntropyLength = errors.New("entropy length must be within [128, 256] and a multiple of 32")
	ErrStrengthNotSupported = errors.New("key strength not supported")
)

const seedSalt = "caesar spdz mask seed"

// GenerateEntropy reads bitSize bits from the operating system
func GenerateEntropy(bitSize int) ([]byte, error) {
	if (bitSize%32) != 0 || bitSize < 128 || bitSize > 256 {
		return nil, ErrInvalidEntropyLength
	}

	entropy := make([]byte, bitSize/8)
	_, err := rand.Read(entropy)
	return entropy, err
}

// GenerateSeedWithStrengthAndKeyLen stretches fresh entropy of the given strength into keyLength bytes
func GenerateSeedWithStrengthAndKeyLen(strength int, keyLength int) ([]byte, error) {
	var entropyBitLength int
	switch strength {
	case KeyStrengthEasy:
		entropyBitLength = 128
	case KeyStrengthMiddle:
		entropyBitLength = 192
	case KeyStrengthHard:
		entropyBitLength = 256
	default:
		return nil, ErrStrengthNotSupported
	}

	entropyByte, err := GenerateEntropy(entropyBitLength)
	if err != nil {
		return nil, err
	}

	return pbkdf2.Key(entropyByte, []byte(seedSalt), 2048, keyLength, sha512.New), nil
}
