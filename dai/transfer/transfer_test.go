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
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

func TestMailbox(t *testing.T) {
	m := NewMailbox()

	_, err := m.TryTake("r0/z")
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotReady))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Take(ctx, "r0/z")
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotReady))

	// a waiter is woken up by the delivery
	done := make(chan []byte)
	go func() {
		b, _ := m.Take(context.Background(), "r0/z")
		done <- b
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Put("r0/z", []byte("share")))
	require.Equal(t, []byte("share"), <-done)

	err = m.Put("r0/z", []byte("again"))
	require.True(t, errorx.Is(err, errcodes.ErrCodeDesync))
	_, err = m.TryTake("r0/z")
	require.True(t, errorx.Is(err, errcodes.ErrCodeDesync))

	require.NoError(t, m.Put("r1/z", []byte("next")))
	require.Equal(t, 1, m.Pending())
	b, err := m.TryTake("r1/z")
	require.NoError(t, err)
	require.Equal(t, []byte("next"), b)
}

func TestMailboxDropsTakenSlots(t *testing.T) {
	m := NewMailbox()
	for _, tag := range []string{"r0/za", "r0/zb", "r1/za"} {
		require.NoError(t, m.Put(tag, []byte(tag)))
	}
	_, err := m.Take(context.Background(), "r0/za")
	require.NoError(t, err)
	_, err = m.TryTake("r0/zb")
	require.NoError(t, err)
	require.Len(t, m.slots, 1)

	// an expired wait leaves nothing behind either
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Take(ctx, "r2/za")
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotReady))
	require.Len(t, m.slots, 1)

	// consumed tags are still refused
	require.True(t, errorx.Is(m.Put("r0/za", nil), errcodes.ErrCodeDesync))
	_, err = m.TryTake("r0/zb")
	require.True(t, errorx.Is(err, errcodes.ErrCodeDesync))
	_, err = m.Take(context.Background(), "r0/za")
	require.True(t, errorx.Is(err, errcodes.ErrCodeDesync))
	require.Len(t, m.slots, 1)
}

func TestMemoryPair(t *testing.T) {
	guest, host := NewMemoryPair()
	ctx := context.Background()

	require.NoError(t, guest.Send(ctx, "s/r0/b0/za", []byte{1}))
	err := guest.Send(ctx, "s/r0/b0/za", []byte{2})
	require.True(t, errorx.Is(err, errcodes.ErrCodeDesync))

	// messages of another round never satisfy the current one
	require.NoError(t, guest.Send(ctx, "s/r1/b0/za", []byte{3}))
	b, err := host.Get(ctx, "s/r0/b0/za")
	require.NoError(t, err)
	require.Equal(t, []byte{1}, b)

	all, err := host.GetAll(ctx, "s/r1/b0/za")
	require.NoError(t, err)
	require.Equal(t, [][]byte{{3}}, all)

	_, err = guest.TryGet("s/r0/b0/zb")
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotReady))
	require.NoError(t, host.Close())
}

func TestGrpcChannel(t *testing.T) {
	start := func() (*Endpoint, string, func()) {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		s := grpc.NewServer()
		ep := NewEndpoint()
		RegisterPushServer(s, ep)
		go s.Serve(lis)
		return ep, lis.Addr().String(), s.Stop
	}
	guestEp, guestAddr, stopGuest := start()
	defer stopGuest()
	hostEp, hostAddr, stopHost := start()
	defer stopHost()

	guest := NewGrpcChannel(GrpcConf{Self: "guest", Peer: "host", PeerAddress: hostAddr, RetryTimes: 1}, guestEp)
	host := NewGrpcChannel(GrpcConf{Self: "host", Peer: "guest", PeerAddress: guestAddr, RetryTimes: 1}, hostEp)
	defer guest.Close()
	defer host.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, guest.Send(ctx, "s/pubkey", []byte("guest key")))
	require.NoError(t, host.Send(ctx, "s/pubkey", []byte("host key")))

	b, err := host.Get(ctx, "s/pubkey")
	require.NoError(t, err)
	require.Equal(t, []byte("guest key"), b)
	b, err = guest.Get(ctx, "s/pubkey")
	require.NoError(t, err)
	require.Equal(t, []byte("host key"), b)

	// an unknown sender is rejected by the endpoint
	stranger := NewGrpcChannel(GrpcConf{Self: "arbiter", Peer: "nobody", PeerAddress: hostAddr, RetryTimes: 1}, NewEndpoint())
	defer stranger.Close()
	err = stranger.Send(ctx, "s/pubkey", []byte("x"))
	require.True(t, errorx.Is(err, errcodes.ErrCodeTransport))
}

func TestGrpcGetTimesOut(t *testing.T) {
	ch := NewGrpcChannel(GrpcConf{Self: "guest", Peer: "host", PeerAddress: "127.0.0.1:1", Timeout: 50 * time.Millisecond}, NewEndpoint())
	defer ch.Close()

	start := time.Now()
	_, err := ch.Get(context.Background(), "s/r0/b0/za")
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotReady), "%v", err)
	require.Less(t, int64(time.Since(start)), int64(5*time.Second))

	_, err = ch.GetAll(context.Background(), "s/r0/b0/zb")
	require.True(t, errorx.Is(err, errcodes.ErrCodeNotReady))
}

// slowServer files every push after the sender gave up on it
type slowServer struct {
	ep    *Endpoint
	calls int32
	delay time.Duration
}

func (s *slowServer) Push(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	atomic.AddInt32(&s.calls, 1)
	time.Sleep(s.delay)
	return s.ep.Push(ctx, in)
}

func TestGrpcSendRetries(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &slowServer{ep: NewEndpoint(), delay: 200 * time.Millisecond}
	srv.ep.Accept("guest")
	s := grpc.NewServer()
	RegisterPushServer(s, srv)
	go s.Serve(lis)
	defer s.Stop()

	ctx := context.Background()
	conf := GrpcConf{Self: "guest", Peer: "host", PeerAddress: lis.Addr().String(),
		Timeout: 50 * time.Millisecond, RetryTimes: 3, RetryWait: 10 * time.Millisecond}
	guest := NewGrpcChannel(conf, NewEndpoint())
	defer guest.Close()

	// a timed out push may still land, so it is not sent again
	err = guest.Send(ctx, "s/r0/b0/za", []byte{1})
	require.True(t, errorx.Is(err, errcodes.ErrCodeTransport), "%v", err)
	require.Equal(t, int32(1), atomic.LoadInt32(&srv.calls))

	// nobody listening is retried up to RetryTimes
	conf.PeerAddress = "127.0.0.1:1"
	lost := NewGrpcChannel(conf, NewEndpoint())
	defer lost.Close()
	err = lost.Send(ctx, "s/r0/b0/za", []byte{1})
	require.True(t, errorx.Is(err, errcodes.ErrCodeRPCConnect), "%v", err)
}
