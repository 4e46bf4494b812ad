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
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

// Peer keeps the client connection to the other party
type Peer struct {
	// host of peer, like 127.0.0.1:8080
	address  string
	grpcConn *grpc.ClientConn
	lock     sync.Mutex
}

func newPeer(address string) *Peer {
	return &Peer{address: address}
}

// GetConnect returns the connection, dialing again when it is broken
func (p *Peer) GetConnect() (*grpc.ClientConn, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.needReconnect() {
		if p.grpcConn != nil {
			p.grpcConn.Close()
		}
		conn, err := grpc.Dial(p.address, grpc.WithInsecure())
		if err != nil {
			logger.WithError(err).WithField("address", p.address).Error("failed to connect peer")
			return nil, err
		}
		p.grpcConn = conn
	}
	return p.grpcConn, nil
}

// needReconnect reports whether the connection is missing or in TRANSIENT_FAILURE or SHUTDOWN
func (p *Peer) needReconnect() bool {
	if p.grpcConn == nil {
		return true
	}
	switch p.grpcConn.GetState() {
	case connectivity.TransientFailure, connectivity.Shutdown:
		return true
	}
	return false
}

// Close closes the connection
func (p *Peer) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.grpcConn == nil {
		return nil
	}
	err := p.grpcConn.Close()
	p.grpcConn = nil
	return err
}
