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

package oblivious_transfer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"errors"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/aes"
)

// 1 of 2 Oblivious Transfer based on the CDH assumption over an elliptic curve.
//
// The sender holds (a, A = aG) and publishes A. The receiver holds b and
// sends B = bG to choose M(0), or B = A + bG to choose M(1). The sender derives
//	k0 = KDF(aB)
//	k1 = KDF(a(B - A))
// and sends Enc(k0, M(0)), Enc(k1, M(1)). The receiver derives KDF(bA) which
// equals exactly the key of its choice, the sender cannot tell which one it was.
// The keys are expanded with HKDF-SHA256 bound to A and B, messages are sealed
// with AES-256-GCM.

// message index
const (
	IndexOne = iota
	IndexTwo
)

var (
	IndexError        = errors.New("chosenIndex is invalid. Must be 0 or 1")
	ErrInvalidPoint   = errors.New("public key is not a point of the curve")
	ErrMessagesNumber = errors.New("exactly 2 messages are required")
)

var kdfInfo = []byte("caesar 1-of-2 ot")

// MarshalPublicKey encodes a key in uncompressed form
func MarshalPublicKey(pk *ecdsa.PublicKey) []byte {
	return elliptic.Marshal(pk.Curve, pk.X, pk.Y)
}

// UnmarshalPublicKey decodes and validates a point of curve
func UnmarshalPublicKey(curve elliptic.Curve, data []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.Unmarshal(curve, data)
	if x == nil {
		return nil, ErrInvalidPoint
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// ReceiverChoose computes the public key the receiver sends for chosenIndex
func ReceiverChoose(receiverPrivateKey *ecdsa.PrivateKey, senderPublicKey *ecdsa.PublicKey, chosenIndex int) (*ecdsa.PublicKey, error) {
	if chosenIndex != IndexOne && chosenIndex != IndexTwo {
		return nil, IndexError
	}
	if chosenIndex == IndexOne {
		return &receiverPrivateKey.PublicKey, nil
	}

	curve := receiverPrivateKey.Curve
	x, y := curve.Add(senderPublicKey.X, senderPublicKey.Y, receiverPrivateKey.PublicKey.X, receiverPrivateKey.PublicKey.Y)
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// SenderEncryptMsg encrypts msgs[0] and msgs[1] so that the receiver of receiverPublicKey opens only one
func SenderEncryptMsg(senderPrivateKey *ecdsa.PrivateKey, receiverPublicKey *ecdsa.PublicKey, msgs [][]byte) ([][]byte, error) {
	if len(msgs) != 2 {
		return nil, ErrMessagesNumber
	}
	curve := senderPrivateKey.Curve
	if !curve.IsOnCurve(receiverPublicKey.X, receiverPublicKey.Y) {
		return nil, ErrInvalidPoint
	}
	salt := transcript(&senderPrivateKey.PublicKey, receiverPublicKey)
	d := senderPrivateKey.D.Bytes()

	// aB
	x0, y0 := curve.ScalarMult(receiverPublicKey.X, receiverPublicKey.Y, d)
	// a(B - A), with -A = (x, -y mod P)
	negY := new(big.Int).Sub(curve.Params().P, senderPrivateKey.PublicKey.Y)
	bx, by := curve.Add(receiverPublicKey.X, receiverPublicKey.Y, senderPrivateKey.PublicKey.X, negY)
	x1, y1 := curve.ScalarMult(bx, by, d)

	cts := make([][]byte, 2)
	for i, p := range [][2]*big.Int{{x0, y0}, {x1, y1}} {
		key, err := deriveKey(curve, p[0], p[1], salt)
		if err != nil {
			return nil, err
		}
		if cts[i], err = aes.EncryptUsingAESGCM(aes.AESKey{Key: key, AD: []byte{byte(i)}}, msgs[i]); err != nil {
			return nil, err
		}
	}
	return cts, nil
}

// ReceiverRetrieveMsg decrypts the chosen message, receiverChoice is the key sent by ReceiverChoose
func ReceiverRetrieveMsg(receiverPrivateKey *ecdsa.PrivateKey, senderPublicKey, receiverChoice *ecdsa.PublicKey, cts [][]byte, chosenIndex int) ([]byte, error) {
	if chosenIndex != IndexOne && chosenIndex != IndexTwo {
		return nil, IndexError
	}
	if len(cts) != 2 {
		return nil, ErrMessagesNumber
	}
	curve := receiverPrivateKey.Curve
	// bA
	x, y := curve.ScalarMult(senderPublicKey.X, senderPublicKey.Y, receiverPrivateKey.D.Bytes())
	key, err := deriveKey(curve, x, y, transcript(senderPublicKey, receiverChoice))
	if err != nil {
		return nil, err
	}
	return aes.DecryptUsingAESGCM(aes.AESKey{Key: key, AD: []byte{byte(chosenIndex)}}, cts[chosenIndex])
}

func transcript(sender, receiver *ecdsa.PublicKey) []byte {
	return append(MarshalPublicKey(sender), MarshalPublicKey(receiver)...)
}

func deriveKey(curve elliptic.Curve, x, y *big.Int, salt []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, elliptic.Marshal(curve, x, y), salt, kdfInfo)
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
