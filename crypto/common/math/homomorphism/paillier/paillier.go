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

package paillier

import (
	cryptoRand "crypto/rand"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/homomorphism"
)

// 加法半同态算法 - paillier
// 原理步骤参见: https://en.wikipedia.org/wiki/Paillier_cryptosystem

var (
	// DefaultPrimeLength gives a 1024 bits modulus
	DefaultPrimeLength = 512
)

var (
	ErrPrimePEqualsQ = errors.New("prime P should not equal Q")
	ErrMsgOutOfRange = errors.New("msg to be encrypted must within [0,N)")
	ErrInvalidKey    = errors.New("invalid paillier public key")
)

var one = big.NewInt(1)

// PrivateKey 同态加解密私钥
type PrivateKey struct {
	PublicKey
	Lambda *big.Int // λ
	Mu     *big.Int // μ
}

// PublicKey 同态加解密公钥, G is always N+1
type PublicKey struct {
	N *big.Int
	G *big.Int
}

var (
	_ homomorphism.Encryptor = (*PublicKey)(nil)
	_ homomorphism.Decryptor = (*PrivateKey)(nil)
)

// GeneratePrivateKey generates a key pair whose primes p and q have primeLength bits each
func GeneratePrivateKey(primeLength int) (*PrivateKey, error) {
	var p, q *big.Int
	var errChanFindP = make(chan error, 1)

	go func() {
		var err error
		p, err = cryptoRand.Prime(cryptoRand.Reader, primeLength)
		errChanFindP <- err
	}()

	q, errFindQ := cryptoRand.Prime(cryptoRand.Reader, primeLength)
	if errFindQ != nil {
		return nil, errFindQ
	}
	if errFindP := <-errChanFindP; errFindP != nil {
		return nil, errFindP
	}
	if p.Cmp(q) == 0 {
		return nil, ErrPrimePEqualsQ
	}

	// p and q share the same length so gcd(pq,(p-1)(q-1))=1 holds, g=n+1 and λ=(p-1)(q-1) may be used
	n := new(big.Int).Mul(p, q)
	lambda := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))

	// μ = λ^-1 mod n
	mu := new(big.Int).ModInverse(lambda, n)

	return &PrivateKey{
		PublicKey: PublicKey{
			N: n,
			G: new(big.Int).Add(n, one),
		},
		Lambda: lambda,
		Mu:     mu,
	}, nil
}

// Validate checks a public key received from the peer
func (pk *PublicKey) Validate() error {
	if pk.N == nil || pk.G == nil || pk.N.Sign() <= 0 {
		return ErrInvalidKey
	}
	if pk.G.Cmp(new(big.Int).Add(pk.N, one)) != 0 {
		return ErrInvalidKey
	}
	return nil
}

// square returns n^2, the ciphertext space
func (pk *PublicKey) square() *big.Int {
	return new(big.Int).Mul(pk.N, pk.N)
}

// PlaintextModulus returns N
func (pk *PublicKey) PlaintextModulus() *big.Int {
	return pk.N
}

// Encrypt computes c = g^m * r^n mod(n^2) for 0<=m<n, r random with gcd(r,n)=1
func (pk *PublicKey) Encrypt(m *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(pk.N) >= 0 {
		return nil, ErrMsgOutOfRange
	}

	var r *big.Int
	for {
		var err error
		r, err = cryptoRand.Int(cryptoRand.Reader, pk.N)
		if err != nil {
			return nil, err
		}
		if r.Sign() != 0 && new(big.Int).GCD(nil, nil, r, pk.N).Cmp(one) == 0 {
			break
		}
	}

	nSquare := pk.square()
	rExpN := new(big.Int).Exp(r, pk.N, nSquare)
	return new(big.Int).Mod(new(big.Int).Mul(pk.gExp(m), rExpN), nSquare), nil
}

// gExp computes g^m mod(n^2), with g=n+1 it equals 1+m*n
func (pk *PublicKey) gExp(m *big.Int) *big.Int {
	nSquare := pk.square()
	gm := new(big.Int).Mul(new(big.Int).Mod(m, pk.N), pk.N)
	gm.Add(gm, one)
	return gm.Mod(gm, nSquare)
}

// CyphersAdd 纯密文加法
// D(E(m1,r1)*E(m2,r2) mod(n^2)) = m1+m2 mod(n)
func (pk *PublicKey) CyphersAdd(cyphers ...*big.Int) *big.Int {
	nSquare := pk.square()
	result := big.NewInt(1)
	for _, cypher := range cyphers {
		result.Mod(result.Mul(result, cypher), nSquare)
	}
	return result
}

// CypherPlainAdd 密文与原文的加法
// D(E(m1,r1)*g^m2 mod(n^2)) = m1+m2 mod(n)
func (pk *PublicKey) CypherPlainAdd(cypher, plain *big.Int) *big.Int {
	return new(big.Int).Mod(new(big.Int).Mul(cypher, pk.gExp(plain)), pk.square())
}

// CypherPlainMultiply 密文与原文的乘法
// D(E(m,r)^k mod(n^2)) = k*m mod(n)
func (pk *PublicKey) CypherPlainMultiply(cypher, k *big.Int) *big.Int {
	return new(big.Int).Exp(cypher, k, pk.square())
}

// Decrypt computes m = L(c^λ mod(n^2)) * μ mod(n), L(x) = (x-1)/n
func (privateKey *PrivateKey) Decrypt(cypher *big.Int) *big.Int {
	cExpLambda := new(big.Int).Exp(cypher, privateKey.Lambda, privateKey.square())
	lx := new(big.Int).Div(cExpLambda.Sub(cExpLambda, one), privateKey.N)
	return lx.Mod(lx.Mul(lx, privateKey.Mu), privateKey.N)
}

// Public returns the public key, a copy safe to hand to the peer
func (privateKey *PrivateKey) Public() homomorphism.Encryptor {
	return &PublicKey{N: privateKey.N, G: privateKey.G}
}

// MarshalPublicKey serializes the public half of a key for the peer
func MarshalPublicKey(pk homomorphism.Encryptor) ([]byte, error) {
	p, ok := pk.(*PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return json.Marshal(p)
}

// UnmarshalPublicKey parses and validates a key received from the peer
func UnmarshalPublicKey(data []byte) (homomorphism.Encryptor, error) {
	var pk PublicKey
	if err := json.Unmarshal(data, &pk); err != nil {
		return nil, err
	}
	if err := pk.Validate(); err != nil {
		return nil, err
	}
	return &pk, nil
}
