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

package errcodes

import (
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

// error code list
const (
	// 00xx common error
	ErrCodeInternal = errorx.ErrCodeInternal // internal error
	ErrCodeParam    = "CS0002"               // parameters error
	ErrCodeConfig   = "CS0003"               // configuration error
	ErrCodeNotFound = "CS0004"               // target not found
	ErrCodeEncoding = "CS0005"               // encoding error
	ErrCodeCrypto   = "CS0006"               // homomorphic or OT computation error

	// 001x protocol errors
	ErrCodeShape     = "CS0011" // tensor shape, field or scale mismatch, the round is aborted
	ErrCodeDesync    = "CS0012" // transfer tags collided or arrived out of order, the session must restart
	ErrCodeNotReady  = "CS0013" // the peer contribution for a tag is not available yet
	ErrCodeTransport = "CS0014" // failed to deliver a message to the peer
	ErrCodeAborted   = "CS0015" // session cancelled before a round started
	ErrCodeRowCount  = "CS0016" // prediction output lost or gained rows

	// 002x node errors
	ErrCodeRPCFindNoPeer = "CS0021" // find no peer when do rpc request
	ErrCodeRPCConnect    = "CS0022" // failed to get connection
	ErrCodeStorage       = "CS0023" // model store failure
)

// NeedsRestart reports whether err leaves the two parties in diverging
// states, only a full session restart recovers from it
func NeedsRestart(err error) bool {
	return errorx.Is(err, ErrCodeDesync) || errorx.Is(err, ErrCodeShape)
}
