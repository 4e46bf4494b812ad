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

// Package homomorphism declares the additively homomorphic capability the
// secret sharing protocols rely on. Plaintexts are non-negative integers
// below PlaintextModulus; ciphertext by ciphertext multiplication is not offered.
package homomorphism

import "math/big"

// Encryptor is the public half of an additively homomorphic scheme
type Encryptor interface {
	// Encrypt encrypts 0 <= m < PlaintextModulus
	Encrypt(m *big.Int) (*big.Int, error)
	// CyphersAdd returns E(m1+m2+...)
	CyphersAdd(cyphers ...*big.Int) *big.Int
	// CypherPlainAdd returns E(m1+m2) given E(m1) and m2
	CypherPlainAdd(cypher, plain *big.Int) *big.Int
	// CypherPlainMultiply returns E(k*m) given E(m) and k
	CypherPlainMultiply(cypher, k *big.Int) *big.Int
	// PlaintextModulus bounds every plaintext, results wrap around it
	PlaintextModulus() *big.Int
}

// Decryptor owns the secret key
type Decryptor interface {
	Encryptor
	// Decrypt returns the plaintext in [0, PlaintextModulus)
	Decrypt(cypher *big.Int) *big.Int
	// Public returns the shareable half
	Public() Encryptor
}
