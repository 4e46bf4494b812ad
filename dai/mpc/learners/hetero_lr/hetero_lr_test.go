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

package hetero_lr

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/common/math/homomorphism/paillier"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/common"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/logic_regression/spdz_vertical"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/fixedpoint"
	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz/tensor"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	models "github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc/models/hetero_lr"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/transfer"
)

type results struct {
	lock sync.Mutex
	all  []*Result
}

func (r *results) SaveResult(res *Result) {
	r.lock.Lock()
	r.all = append(r.all, res)
	r.lock.Unlock()
}

var (
	guestRows = [][]string{
		{"id", "g1", "y"},
		{"u1", "1", "1"},
		{"u2", "-1", "0"},
		{"u3", "0.5", "1"},
		{"u4", "-0.5", "0"},
	}
	hostRows = [][]string{
		{"id", "h1", "h2"},
		{"u1", "0.5", "0.2"},
		{"u2", "0.5", "-0.3"},
		{"u3", "-0.2", "0.1"},
		{"u4", "0.3", "0.4"},
	}
	param = spdz_vertical.Param{LearningRate: 0.5, FitIntercept: true}
)

func newSession(t *testing.T, role spdz.Role, ch transfer.Channel) *spdz.Session {
	sk, err := paillier.GeneratePrivateKey(paillier.DefaultPrimeLength)
	require.NoError(t, err)
	s, err := spdz.NewSession(spdz.Config{ID: "task", Role: role, Encoder: fixedpoint.Default(), Key: sk, Transport: ch})
	require.NoError(t, err)
	return s
}

func newLearners(t *testing.T, params Params, rh ResultHandler) (*Learner, *Learner) {
	gds, err := common.ImportInstances(guestRows, "id", "y")
	require.NoError(t, err)
	hds, err := common.ImportInstances(hostRows, "id", "")
	require.NoError(t, err)

	gc, hc := transfer.NewMemoryPair()
	g, err := NewLearner("task", newSession(t, spdz.Guest, gc), param, params, gds, rh)
	require.NoError(t, err)
	h, err := NewLearner("task", newSession(t, spdz.Host, hc), param, params, hds, rh)
	require.NoError(t, err)
	return g, h
}

func runBoth(ctx context.Context, g, h *Learner) (gm, hm *models.Model, gerr, herr error) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		gm, gerr = g.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		hm, herr = h.Run(ctx)
	}()
	wg.Wait()
	return
}

// plainFit is full batch gradient descent with the cubic sigmoid, the last
// guest weight is the intercept
func plainFit(rounds int) (wg, wh []float64) {
	gds, _ := common.ImportInstances(guestRows, "id", "y")
	hds, _ := common.ImportInstances(hostRows, "id", "")
	xg, xh, y := gds.Features(), hds.Features(), gds.Labels()
	n := float64(len(y))
	wg = make([]float64, len(xg[0])+1)
	wh = make([]float64, len(xh[0]))
	for r := 0; r < rounds; r++ {
		gg := make([]float64, len(wg))
		gh := make([]float64, len(wh))
		for i := range y {
			z := wg[len(wg)-1]
			for j, v := range xg[i] {
				z += v * wg[j]
			}
			for j, v := range xh[i] {
				z += v * wh[j]
			}
			e := spdz_vertical.PolySigmoid(z) - y[i]
			for j, v := range xg[i] {
				gg[j] += e * v / n
			}
			gg[len(gg)-1] += e / n
			for j, v := range xh[i] {
				gh[j] += e * v / n
			}
		}
		for j := range wg {
			wg[j] -= param.LearningRate * gg[j]
		}
		for j := range wh {
			wh[j] -= param.LearningRate * gh[j]
		}
	}
	return
}

func TestRunMatchesPlaintext(t *testing.T) {
	rh := &results{}
	g, h := newLearners(t, Params{MaxIter: 3, Threshold: 0.5}, rh)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gm, hm, gerr, herr := runBoth(ctx, g, h)
	require.NoError(t, gerr)
	require.NoError(t, herr)

	wg, wh := plainFit(3)
	guest, host := gm, hm

	require.Equal(t, "guest", guest.Role)
	require.Equal(t, []string{"g1"}, guest.FeatureNames)
	require.True(t, guest.HasIntercept)
	require.Equal(t, 0.5, guest.Threshold)
	require.Equal(t, 3, guest.Rounds)
	require.False(t, guest.Converged)
	require.InDelta(t, wg[0], guest.Weights[0], 2e-3)
	require.InDelta(t, wg[1], guest.Intercept, 2e-3)

	require.Equal(t, "host", host.Role)
	require.False(t, host.HasIntercept)
	require.Len(t, host.Weights, 2)
	for j := range wh {
		require.InDelta(t, wh[j], host.Weights[j], 2e-3)
	}

	require.Len(t, rh.all, 2)
	for _, r := range rh.all {
		require.True(t, r.Success)
		require.NotNil(t, r.Model)
	}
	require.Equal(t, learnerStatusTerminal, g.status)
}

func TestRunConverges(t *testing.T) {
	g, h := newLearners(t, Params{MaxIter: 5, Converge: config.ConvergeWeightDiff, Tol: 10}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gm, hm, gerr, herr := runBoth(ctx, g, h)
	require.NoError(t, gerr)
	require.NoError(t, herr)
	guest, host := gm, hm
	require.True(t, guest.Converged)
	require.True(t, host.Converged)
	require.Equal(t, 1, guest.Rounds)
	require.Equal(t, 1, host.Rounds)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	rh := &results{}
	g, _ := newLearners(t, Params{MaxIter: 1}, rh)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Run(ctx)
	require.True(t, errorx.Is(err, errcodes.ErrCodeAborted))
	require.False(t, errcodes.NeedsRestart(err))
	require.Equal(t, learnerStatusFailed, g.status)
	require.Len(t, rh.all, 1)
	require.False(t, rh.all[0].Success)
}

func TestRunPeerGoneIsDesync(t *testing.T) {
	g, _ := newLearners(t, Params{MaxIter: 1}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := g.Run(ctx)
	require.True(t, errorx.Is(err, errcodes.ErrCodeDesync))
	require.True(t, errcodes.NeedsRestart(err))
}

func TestRunSilentPeerIsDesync(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hostEp := transfer.NewEndpoint()
	hostEp.Accept("guest")
	srv := grpc.NewServer()
	transfer.RegisterPushServer(srv, hostEp)
	go srv.Serve(lis)
	defer srv.Stop()

	gds, err := common.ImportInstances(guestRows, "id", "y")
	require.NoError(t, err)
	ch := transfer.NewGrpcChannel(transfer.GrpcConf{Self: "guest", Peer: "host", PeerAddress: lis.Addr().String(),
		Timeout: 200 * time.Millisecond}, transfer.NewEndpoint())
	defer ch.Close()
	g, err := NewLearner("task", newSession(t, spdz.Guest, ch), param, Params{MaxIter: 1}, gds, nil)
	require.NoError(t, err)

	// the host accepts every push and never answers
	start := time.Now()
	_, err = g.Run(context.Background())
	require.True(t, errorx.Is(err, errcodes.ErrCodeDesync), "%v", err)
	require.Less(t, int64(time.Since(start)), int64(10*time.Second))
}

func TestClassify(t *testing.T) {
	shape := fmt.Errorf("%w: 2x1 and 3x1", tensor.ErrShape)
	require.True(t, errorx.Is(classify(shape, false), errcodes.ErrCodeShape))
	require.True(t, errorx.Is(classify(shape, true), errcodes.ErrCodeShape))

	rows := fmt.Errorf("%w: local 3, peer 4", spdz_vertical.ErrRowMismatch)
	require.True(t, errorx.Is(classify(rows, true), errcodes.ErrCodeParam))

	transport := errorx.New(errcodes.ErrCodeTransport, "peer down")
	require.True(t, errorx.Is(classify(transport, false), errcodes.ErrCodeTransport))
	require.True(t, errorx.Is(classify(transport, true), errcodes.ErrCodeDesync))

	require.True(t, errorx.Is(classify(fmt.Errorf("boom"), false), errcodes.ErrCodeInternal))
	require.Nil(t, classify(nil, true))
}

func TestNewLearnerRejects(t *testing.T) {
	hds, err := common.ImportInstances(hostRows, "id", "")
	require.NoError(t, err)
	gc, _ := transfer.NewMemoryPair()
	sess := newSession(t, spdz.Guest, gc)

	_, err = NewLearner("task", sess, param, Params{MaxIter: 0}, hds, nil)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam))

	_, err = NewLearner("task", sess, param, Params{MaxIter: 1}, hds, nil)
	require.True(t, errorx.Is(err, errcodes.ErrCodeParam), "guest without labels")
}
