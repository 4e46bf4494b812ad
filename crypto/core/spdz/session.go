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

// Package spdz implements the two-party arithmetic protocols over additive
// shares in Z_q: share, reveal, re-sharing of homomorphic ciphertexts and
// secure matrix multiplication. All calls run in lock-step with the peer and
// address their messages with a Suffix that is unique per step, round and batch.
package spdz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/homomorphism"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/rand"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/fixedpoint"
)

// DefaultStatisticalBits is the statistical hiding parameter of masks added to ciphertexts
const DefaultStatisticalBits = 40

var (
	ErrNoPeerKey   = errors.New("peer public key not exchanged")
	ErrInvalidRole = errors.New("invalid party role")
)

// Role is the position of a party in the protocol, Guest holds the labels
type Role int

const (
	Guest Role = iota
	Host
)

// ParseRole accepts "guest" or "host" in any case
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "guest":
		return Guest, nil
	case "host":
		return Host, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

func (r Role) String() string {
	switch r {
	case Guest:
		return "guest"
	case Host:
		return "host"
	}
	return "Role(" + strconv.Itoa(int(r)) + ")"
}

// Party returns the party index used by share truncation
func (r Role) Party() int {
	return int(r)
}

// Transport delivers tagged messages to the peer. Get blocks until the
// message for tag arrives or ctx is done, a tag may be received only once.
type Transport interface {
	Send(ctx context.Context, tag string, payload []byte) error
	Get(ctx context.Context, tag string) ([]byte, error)
}

// Suffix names one protocol message, e.g. session/r3/b0/sigmoid_z/share
type Suffix []string

// With returns a new suffix extended by parts
func (s Suffix) With(parts ...string) Suffix {
	out := make(Suffix, 0, len(s)+len(parts))
	out = append(out, s...)
	return append(out, parts...)
}

// Tag is the transfer tag of the suffix
func (s Suffix) Tag() string {
	return strings.Join(s, "/")
}

func (s Suffix) String() string {
	return s.Tag()
}

// NewSessionID returns a random session id
func NewSessionID() string {
	return uuid.New().String()
}

// Config builds a Session
type Config struct {
	ID              string
	Role            Role
	Encoder         *fixedpoint.Encoder
	Key             homomorphism.Decryptor
	Transport       Transport
	StatisticalBits uint

	// UnmarshalPeerKey decodes the key received by ExchangeKeys, paillier by default
	UnmarshalPeerKey func([]byte) (homomorphism.Encryptor, error)
	// MarshalKey encodes the local public key, paillier by default
	MarshalKey func(homomorphism.Encryptor) ([]byte, error)
}

// Session is the per-session context threaded through every protocol call.
// It owns the local keypair, the peer public key, the encoder and the mask source.
type Session struct {
	id        string
	role      Role
	enc       *fixedpoint.Encoder
	sk        homomorphism.Decryptor
	peerPk    homomorphism.Encryptor
	transport Transport
	sampler   *rand.Sampler
	kappa     uint

	unmarshalKey func([]byte) (homomorphism.Encryptor, error)
	marshalKey   func(homomorphism.Encryptor) ([]byte, error)
}

// NewSession checks conf and seeds a mask sampler
func NewSession(conf Config) (*Session, error) {
	if conf.Role != Guest && conf.Role != Host {
		return nil, ErrInvalidRole
	}
	if conf.Encoder == nil || conf.Key == nil || conf.Transport == nil {
		return nil, errors.New("session needs an encoder, a key and a transport")
	}
	if conf.ID == "" {
		conf.ID = NewSessionID()
	}
	if conf.StatisticalBits == 0 {
		conf.StatisticalBits = DefaultStatisticalBits
	}
	if conf.UnmarshalPeerKey == nil {
		conf.UnmarshalPeerKey = paillier.UnmarshalPublicKey
	}
	if conf.MarshalKey == nil {
		conf.MarshalKey = paillier.MarshalPublicKey
	}
	sampler, err := rand.NewSampler()
	if err != nil {
		return nil, err
	}
	return &Session{
		id:           conf.ID,
		role:         conf.Role,
		enc:          conf.Encoder,
		sk:           conf.Key,
		transport:    conf.Transport,
		sampler:      sampler,
		kappa:        conf.StatisticalBits,
		unmarshalKey: conf.UnmarshalPeerKey,
		marshalKey:   conf.MarshalKey,
	}, nil
}

func (s *Session) ID() string { return s.id }
func (s *Session) Role() Role { return s.role }
func (s *Session) Encoder() *fixedpoint.Encoder { return s.enc }

// PeerKey returns the peer public key, nil before ExchangeKeys
func (s *Session) PeerKey() homomorphism.Encryptor { return s.peerPk }

// Suffix returns the root suffix of a round and batch
func (s *Session) Suffix(round, batch int) Suffix {
	return Suffix{s.id, "r" + strconv.Itoa(round), "b" + strconv.Itoa(batch)}
}

// Root returns a suffix outside of any round, used by setup and teardown steps
func (s *Session) Root(step string) Suffix {
	return Suffix{s.id, step}
}

// ExchangeKeys sends the local public key and waits for the peer one
func (s *Session) ExchangeKeys(ctx context.Context) error {
	suffix := s.Root("pubkey")
	b, err := s.marshalKey(s.sk.Public())
	if err != nil {
		return err
	}
	if err := s.transport.Send(ctx, suffix.Tag(), b); err != nil {
		return err
	}
	pb, err := s.transport.Get(ctx, suffix.Tag())
	if err != nil {
		return err
	}
	pk, err := s.unmarshalKey(pb)
	if err != nil {
		return fmt.Errorf("invalid peer public key: %w", err)
	}
	if pk.PlaintextModulus().Cmp(s.enc.Field()) <= 0 {
		return errors.New("peer key modulus is smaller than the field")
	}
	s.peerPk = pk
	return nil
}

// Send delivers raw bytes under suffix
func (s *Session) Send(ctx context.Context, suffix Suffix, payload []byte) error {
	return s.transport.Send(ctx, suffix.Tag(), payload)
}

// Get waits for the raw bytes sent by the peer under suffix
func (s *Session) Get(ctx context.Context, suffix Suffix) ([]byte, error) {
	return s.transport.Get(ctx, suffix.Tag())
}
