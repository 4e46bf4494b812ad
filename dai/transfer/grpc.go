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
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

const (
	serviceName = "caesar.transfer.Transfer"
	pushMethod  = "/" + serviceName + "/Push"

	metaTag  = "x-transfer-tag"
	metaFrom = "x-transfer-from"
)

// PushServer receives messages pushed by the peer
type PushServer interface {
	Push(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

func pushHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PushServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: pushMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PushServer).Push(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PushServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Push",
			Handler:    pushHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "transfer.proto",
}

// RegisterPushServer registers srv on s
func RegisterPushServer(s *grpc.Server, srv PushServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Endpoint is the receiving side of a party, it files pushed messages into the mailbox of the sender
type Endpoint struct {
	lock      sync.RWMutex
	mailboxes map[string]*Mailbox
}

// NewEndpoint creates an endpoint accepting no peer yet
func NewEndpoint() *Endpoint {
	return &Endpoint{mailboxes: make(map[string]*Mailbox)}
}

// Accept opens the mailbox for messages sent by peer
func (e *Endpoint) Accept(peer string) *Mailbox {
	e.lock.Lock()
	defer e.lock.Unlock()
	m, ok := e.mailboxes[peer]
	if !ok {
		m = NewMailbox()
		e.mailboxes[peer] = m
	}
	return m
}

// Push implements PushServer
func (e *Endpoint) Push(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	tags, froms := md.Get(metaTag), md.Get(metaFrom)
	if len(tags) != 1 || len(froms) != 1 {
		return nil, status.Error(codes.InvalidArgument, "missing transfer metadata")
	}

	e.lock.RLock()
	m, ok := e.mailboxes[froms[0]]
	e.lock.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.PermissionDenied, "unknown sender %s", froms[0])
	}
	if err := m.Put(tags[0], in.GetValue()); err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// GrpcConf configures the sending side
type GrpcConf struct {
	// Self is the name the peer knows this party by
	Self string
	// Peer is the name of the peer, messages from it land in its mailbox
	Peer        string
	PeerAddress string
	Timeout     time.Duration
	RetryTimes  int
	RetryWait   time.Duration
}

// grpcChannel pushes to the peer and reads from the local mailbox
type grpcChannel struct {
	conf  GrpcConf
	sent  sentTags
	inbox *Mailbox
	peer  *Peer
}

// NewGrpcChannel connects to conf.PeerAddress lazily, incoming messages are
// read from the mailbox e opened for conf.Peer
func NewGrpcChannel(conf GrpcConf, e *Endpoint) Channel {
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	if conf.RetryTimes <= 0 {
		conf.RetryTimes = 3
	}
	if conf.RetryWait <= 0 {
		conf.RetryWait = 3 * time.Second
	}
	return &grpcChannel{
		conf:  conf,
		inbox: e.Accept(conf.Peer),
		peer:  newPeer(conf.PeerAddress),
	}
}

// Send pushes payload. Only pushes the peer never received are retried, a
// timed out push may have been filed already and fails at once.
func (c *grpcChannel) Send(ctx context.Context, tag string, payload []byte) error {
	if err := c.sent.mark(tag); err != nil {
		return err
	}
	var err error
	for i := 0; i < c.conf.RetryTimes; i++ {
		if err = c.push(ctx, tag, payload); err == nil {
			return nil
		}
		if i > 0 && errorx.Is(err, errcodes.ErrCodeDesync) {
			// an earlier try landed before the connection dropped
			return nil
		}
		if !errorx.Is(err, errcodes.ErrCodeRPCConnect) || ctx.Err() != nil {
			break
		}
		logger.WithFields(logrus.Fields{"tag": tag, "try": i + 1}).WithError(err).Warning("failed to push message")
		select {
		case <-time.After(c.conf.RetryWait):
		case <-ctx.Done():
		}
	}
	c.sent.unmark(tag)
	return err
}

func (c *grpcChannel) push(ctx context.Context, tag string, payload []byte) error {
	conn, err := c.peer.GetConnect()
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeRPCConnect, "failed to connect %s", c.conf.PeerAddress)
	}
	ctx, cancel := context.WithTimeout(ctx, c.conf.Timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, metaTag, tag, metaFrom, c.conf.Self)

	err = conn.Invoke(ctx, pushMethod, &wrapperspb.BytesValue{Value: payload}, new(emptypb.Empty))
	if err == nil {
		return nil
	}
	st := status.Convert(err)
	switch st.Code() {
	case codes.FailedPrecondition:
		return errorx.New(errcodes.ErrCodeDesync, "peer refused %s: %s", tag, st.Message())
	case codes.Unavailable:
		// the request never reached the peer handler
		return errorx.NewCode(err, errcodes.ErrCodeRPCConnect, "peer %s unavailable", c.conf.PeerAddress)
	}
	return errorx.NewCode(err, errcodes.ErrCodeTransport, "failed to push %s", tag)
}

// Get waits at most conf.Timeout for the message of tag
func (c *grpcChannel) Get(ctx context.Context, tag string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.conf.Timeout)
	defer cancel()
	return c.inbox.Take(ctx, tag)
}

func (c *grpcChannel) GetAll(ctx context.Context, tag string) ([][]byte, error) {
	b, err := c.Get(ctx, tag)
	if err != nil {
		return nil, err
	}
	return [][]byte{b}, nil
}

func (c *grpcChannel) TryGet(tag string) ([]byte, error) {
	return c.inbox.TryTake(tag)
}

func (c *grpcChannel) Close() error {
	c.inbox.Close()
	return c.peer.Close()
}
