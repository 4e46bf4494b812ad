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

package server

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/transfer"
)

const (
	// MaxRecvMsgSize max message size
	MaxRecvMsgSize = 1024 * 1024 * 1024
	// MaxConcurrentStreams max concurrent
	MaxConcurrentStreams = 1000
	// GRPCTIMEOUT grpc timeout
	GRPCTIMEOUT = 20
)

var (
	logger = logrus.WithField("module", "server")
)

// Server receives the transfer messages of the peer
type Server struct {
	listenAddr string
	GrpcServer *grpc.Server
	Endpoint   *transfer.Endpoint
}

// New creates a gRPC server with the transfer service registered, it does not accept requests yet
func New(listenAddr string) *Server {
	ser := grpc.NewServer(grpc.MaxRecvMsgSize(MaxRecvMsgSize),
		grpc.MaxConcurrentStreams(MaxConcurrentStreams), grpc.ConnectionTimeout(time.Second*time.Duration(GRPCTIMEOUT)))
	ep := transfer.NewEndpoint()
	transfer.RegisterPushServer(ser, ep)
	return &Server{
		listenAddr: listenAddr,
		GrpcServer: ser,
		Endpoint:   ep,
	}
}

// Serve listens on the configured address and blocks until ctx is done or serving fails
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		logger.WithError(err).Errorf("listen tcp error: %v", err)
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.GrpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Errorf("failed to start grpc serve: %v", err)
		}
		return err
	}
}

// Stop stops the grpc server, pending pushes are dropped
func (s *Server) Stop() {
	if s.GrpcServer != nil {
		s.GrpcServer.Stop()
	}
}
