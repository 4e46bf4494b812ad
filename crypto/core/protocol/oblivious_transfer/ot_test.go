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
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOT(t *testing.T) {
	msgs := [][]byte{[]byte("msg 0 for ot protocol"), []byte("msg 1 for ot protocol")}

	for _, chosen := range []int{IndexOne, IndexTwo} {
		senderPrivateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		receiverPrivateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)

		// keys travel marshaled
		senderPub, err := UnmarshalPublicKey(elliptic.P256(), MarshalPublicKey(&senderPrivateKey.PublicKey))
		require.NoError(t, err)
		choice, err := ReceiverChoose(receiverPrivateKey, senderPub, chosen)
		require.NoError(t, err)
		choiceForSender, err := UnmarshalPublicKey(elliptic.P256(), MarshalPublicKey(choice))
		require.NoError(t, err)

		cts, err := SenderEncryptMsg(senderPrivateKey, choiceForSender, msgs)
		require.NoError(t, err)

		msg, err := ReceiverRetrieveMsg(receiverPrivateKey, senderPub, choice, cts, chosen)
		require.NoError(t, err)
		require.Equal(t, msgs[chosen], msg)

		// the other message stays sealed
		_, err = ReceiverRetrieveMsg(receiverPrivateKey, senderPub, choice, [][]byte{cts[1-chosen], cts[1-chosen]}, chosen)
		require.Error(t, err)
	}
}

func TestOTInvalidInput(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = ReceiverChoose(priv, &priv.PublicKey, 2)
	require.Equal(t, IndexError, err)

	_, err = SenderEncryptMsg(priv, &priv.PublicKey, [][]byte{[]byte("only one")})
	require.Equal(t, ErrMessagesNumber, err)

	_, err = UnmarshalPublicKey(elliptic.P256(), []byte{4, 1, 2, 3})
	require.Equal(t, ErrInvalidPoint, err)
}
