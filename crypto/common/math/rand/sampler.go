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
	"errors"
	"math/big"
	"sync"

	"golang.org/x/crypto/chacha20"
)

// statisticalBits is the extra length drawn before reducing, the bias of Int is below 2^-64
const statisticalBits = 64

var ErrInvalidBound = errors.New("upper bound must be positive")

// Sampler draws uniform integers from a chacha20 keystream seeded by
// GenerateSeedWithStrengthAndKeyLen. It is safe for concurrent use.
type Sampler struct {
	lock   sync.Mutex
	stream *chacha20.Cipher
}

// NewSampler seeds a fresh keystream
func NewSampler() (*Sampler, error) {
	seed, err := GenerateSeedWithStrengthAndKeyLen(KeyStrengthHard, chacha20.KeySize+chacha20.NonceSizeX)
	if err != nil {
		return nil, err
	}
	stream, err := chacha20.NewUnauthenticatedCipher(seed[:chacha20.KeySize], seed[chacha20.KeySize:])
	if err != nil {
		return nil, err
	}
	return &Sampler{stream: stream}, nil
}

// Read fills b with keystream bytes
func (s *Sampler) Read(b []byte) (int, error) {
	for i := range b {
		b[i] = 0
	}
	s.lock.Lock()
	s.stream.XORKeyStream(b, b)
	s.lock.Unlock()
	return len(b), nil
}

// Int returns a uniform value in [0, max)
func (s *Sampler) Int(max *big.Int) (*big.Int, error) {
	if max == nil || max.Sign() <= 0 {
		return nil, ErrInvalidBound
	}
	buf := make([]byte, (max.BitLen()+statisticalBits+7)/8)
	if _, err := s.Read(buf); err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(buf)
	return v.Mod(v, max), nil
}
