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
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAES(t *testing.T) {
	key := sha256.Sum256([]byte("test key"))
	plaintext := []byte("aes plaintext")
	aesKey := AESKey{Key: key[:], AD: []byte("pair 0")}

	c1, err := EncryptUsingAESGCM(aesKey, plaintext)
	require.NoError(t, err)
	c2, err := EncryptUsingAESGCM(aesKey, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, c1, c2, "fresh nonce per message")

	plain, err := DecryptUsingAESGCM(aesKey, c1)
	require.NoError(t, err)
	require.Equal(t, plaintext, plain)

	_, err = DecryptUsingAESGCM(AESKey{Key: key[:], AD: []byte("pair 1")}, c1)
	require.Error(t, err)

	_, err = DecryptUsingAESGCM(aesKey, c1[:5])
	require.Equal(t, ErrShortCiphertext, err)
}
