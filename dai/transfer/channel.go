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

// Package transfer moves tagged messages between the two parties. A message
// is addressed by a tag unique within a session, sending or receiving a tag
// twice is a protocol desynchronization.
package transfer

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

var (
	logger = logrus.WithField("module", "transfer")
)

// Channel is the transfer-variable interface seen by protocol code
type Channel interface {
	// Send delivers payload to the peer under tag
	Send(ctx context.Context, tag string, payload []byte) error
	// Get waits for the message the peer sent under tag, idx 0
	Get(ctx context.Context, tag string) ([]byte, error)
	// GetAll waits for the message of tag from every peer, idx -1
	GetAll(ctx context.Context, tag string) ([][]byte, error)
	// TryGet returns the message of tag or a not ready error
	TryGet(tag string) ([]byte, error)
	Close() error
}

// sentTags refuses a second send on the same tag
type sentTags struct {
	lock sync.Mutex
	tags map[string]struct{}
}

func (s *sentTags) mark(tag string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.tags == nil {
		s.tags = make(map[string]struct{})
	}
	if _, ok := s.tags[tag]; ok {
		return errorx.New(errcodes.ErrCodeDesync, "tag %s sent twice", tag)
	}
	s.tags[tag] = struct{}{}
	return nil
}

func (s *sentTags) unmark(tag string) {
	s.lock.Lock()
	delete(s.tags, tag)
	s.lock.Unlock()
}

// memoryChannel connects two parties inside one process
type memoryChannel struct {
	sent  sentTags
	inbox *Mailbox
	peer  *Mailbox
}

// NewMemoryPair returns the two connected ends of an in-process channel
func NewMemoryPair() (Channel, Channel) {
	a, b := NewMailbox(), NewMailbox()
	return &memoryChannel{inbox: a, peer: b}, &memoryChannel{inbox: b, peer: a}
}

func (c *memoryChannel) Send(ctx context.Context, tag string, payload []byte) error {
	if err := c.sent.mark(tag); err != nil {
		return err
	}
	return c.peer.Put(tag, append([]byte(nil), payload...))
}

func (c *memoryChannel) Get(ctx context.Context, tag string) ([]byte, error) {
	return c.inbox.Take(ctx, tag)
}

func (c *memoryChannel) GetAll(ctx context.Context, tag string) ([][]byte, error) {
	b, err := c.Get(ctx, tag)
	if err != nil {
		return nil, err
	}
	return [][]byte{b}, nil
}

func (c *memoryChannel) TryGet(tag string) ([]byte, error) {
	return c.inbox.TryTake(tag)
}

func (c *memoryChannel) Close() error {
	c.inbox.Close()
	return nil
}
