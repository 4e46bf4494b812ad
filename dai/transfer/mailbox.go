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

package transfer

import (
	"context"
	"sync"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

// slot holds the single message of a tag until it is taken
type slot struct {
	ready     chan struct{}
	payload   []byte
	delivered bool
	waiting   bool
}

// Mailbox stores incoming messages by tag until the protocol asks for them.
// Every tag is delivered once and taken once, anything else means the two
// parties disagree on the protocol position. A taken slot is dropped, only its
// tag is kept to refuse replays.
type Mailbox struct {
	lock     sync.Mutex
	slots    map[string]*slot
	consumed map[string]struct{}
	closed   chan struct{}
	once     sync.Once
}

// NewMailbox creates an empty mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{
		slots:    make(map[string]*slot),
		consumed: make(map[string]struct{}),
		closed:   make(chan struct{}),
	}
}

func (m *Mailbox) slot(tag string) *slot {
	s, ok := m.slots[tag]
	if !ok {
		s = &slot{ready: make(chan struct{})}
		m.slots[tag] = s
	}
	return s
}

// consume drops the slot of tag and returns its payload, m.lock is held
func (m *Mailbox) consume(tag string, s *slot) []byte {
	delete(m.slots, tag)
	m.consumed[tag] = struct{}{}
	return s.payload
}

// Put stores payload under tag
func (m *Mailbox) Put(tag string, payload []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.consumed[tag]; ok {
		return errorx.New(errcodes.ErrCodeDesync, "tag %s delivered twice", tag)
	}
	s := m.slot(tag)
	if s.delivered {
		return errorx.New(errcodes.ErrCodeDesync, "tag %s delivered twice", tag)
	}
	s.delivered = true
	s.payload = payload
	close(s.ready)
	return nil
}

// Take blocks until the message of tag arrives, ctx expiring yields a not ready error
func (m *Mailbox) Take(ctx context.Context, tag string) ([]byte, error) {
	m.lock.Lock()
	if _, ok := m.consumed[tag]; ok {
		m.lock.Unlock()
		return nil, errorx.New(errcodes.ErrCodeDesync, "tag %s received twice", tag)
	}
	s := m.slot(tag)
	if s.waiting {
		m.lock.Unlock()
		return nil, errorx.New(errcodes.ErrCodeDesync, "tag %s received twice", tag)
	}
	s.waiting = true
	m.lock.Unlock()

	select {
	case <-s.ready:
	case <-m.closed:
		return nil, errorx.New(errcodes.ErrCodeTransport, "mailbox closed while waiting for %s", tag)
	case <-ctx.Done():
		m.lock.Lock()
		s.waiting = false
		if !s.delivered {
			delete(m.slots, tag)
		}
		m.lock.Unlock()
		return nil, errorx.NewCode(ctx.Err(), errcodes.ErrCodeNotReady, "waiting for %s", tag)
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	return m.consume(tag, s), nil
}

// TryTake returns the message of tag without waiting
func (m *Mailbox) TryTake(tag string) ([]byte, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.consumed[tag]; ok {
		return nil, errorx.New(errcodes.ErrCodeDesync, "tag %s received twice", tag)
	}
	s, ok := m.slots[tag]
	if ok && s.waiting {
		return nil, errorx.New(errcodes.ErrCodeDesync, "tag %s received twice", tag)
	}
	if !ok || !s.delivered {
		return nil, errorx.New(errcodes.ErrCodeNotReady, "%s not available yet", tag)
	}
	return m.consume(tag, s), nil
}

// Pending returns the number of delivered messages nobody took yet
func (m *Mailbox) Pending() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	n := 0
	for _, s := range m.slots {
		if s.delivered && !s.waiting {
			n++
		}
	}
	return n
}

// Close wakes up all waiters
func (m *Mailbox) Close() {
	m.once.Do(func() { close(m.closed) })
}
