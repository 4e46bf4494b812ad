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

package aes

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var ErrShortCiphertext = errors.New("ciphertext shorter than nonce")

type AESKey struct {
	Key []byte // 16, 24 or 32 bytes
	AD  []byte // optional
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptUsingAESGCM seals plaintext under a fresh random nonce, the nonce prefixes the output
func EncryptUsingAESGCM(key AESKey, plaintext []byte) ([]byte, error) {
	c, err := newGCM(key.Key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, c.NonceSize(), c.NonceSize()+len(plaintext)+c.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.Seal(nonce, nonce, plaintext, key.AD), nil
}

// DecryptUsingAESGCM opens the output of EncryptUsingAESGCM
func DecryptUsingAESGCM(key AESKey, ciphertext []byte) ([]byte, error) {
	c, err := newGCM(key.Key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < c.NonceSize() {
		return nil, ErrShortCiphertext
	}
	n := c.NonceSize()
	return c.Open(nil, ciphertext[:n], ciphertext[n:], key.AD)
}
