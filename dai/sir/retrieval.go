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

// Package sir retrieves columns of the peer's records for a list of sample
// ids. The raw path reads them directly, the secure path fetches every record
// through a 1-of-2 oblivious transfer paired with a decoy id, so the provider
// only learns that one of two ids was wanted.
package sir

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"math"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/common"
	ot "github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/protocol/oblivious_transfer"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

var logger = logrus.WithField("module", "sir")

// Unretrieved marks the values of ids the provider does not hold
const Unretrieved = "unretrieved"

// Transport delivers tagged messages to the peer, a tag is received once
type Transport interface {
	Send(ctx context.Context, tag string, payload []byte) error
	Get(ctx context.Context, tag string) ([]byte, error)
}

type request struct {
	Raw bool `json:"raw"`
	// IDs are queried directly on the raw path
	IDs []string `json:"ids,omitempty"`
	// Pairs hold a wanted and a decoy id in random order on the secure path
	Pairs [][2]string `json:"pairs,omitempty"`
}

type response struct {
	Columns []string   `json:"columns"`
	Values  [][]string `json:"values,omitempty"`
}

// accept answers every request before any record is sent
type accept struct {
	Raw   bool   `json:"raw"`
	Error string `json:"error,omitempty"`
}

type encryptedPairs struct {
	Cyphers [][][]byte `json:"cyphers"`
}

// Result is one row of values per queried id, in query order
type Result struct {
	Columns []string
	IDs     []string
	Values  [][]string
}

func curve() elliptic.Curve {
	return elliptic.P256()
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to sample")
	}
	return int(v.Int64()), nil
}

// Querier asks the provider for the records of ids
type Querier struct {
	param   *Param
	ch      Transport
	session string
	rounds  int
}

func NewQuerier(param *Param, ch Transport, session string) *Querier {
	return &Querier{param: param, ch: ch, session: session}
}

// Rounds returns the number of oblivious transfers run so far
func (q *Querier) Rounds() int {
	return q.rounds
}

func tag(session, step string) string {
	return "sir/" + session + "/" + step
}

// Retrieve fetches the target columns for ids. Decoys are drawn from pool,
// which defaults to ids, and secure retrieval adds ceil(securityLevel*len(ids))
// pairs made only of decoys so the provider cannot count the wanted ids.
func (q *Querier) Retrieve(ctx context.Context, ids []string, pool []string) (*Result, error) {
	if len(ids) == 0 {
		return nil, errorx.New(errcodes.ErrCodeParam, "no id to retrieve")
	}
	if q.param.Raw() {
		return q.retrieveRaw(ctx, ids)
	}
	if len(pool) == 0 {
		pool = ids
	}
	return q.retrieveSecure(ctx, ids, pool)
}

func (q *Querier) retrieveRaw(ctx context.Context, ids []string) (*Result, error) {
	logger.WithField("ids", len(ids)).Info("raw retrieval")
	if err := q.request(ctx, &request{Raw: true, IDs: ids}); err != nil {
		return nil, err
	}
	var resp response
	if err := q.get(ctx, "values", &resp); err != nil {
		return nil, err
	}
	if len(resp.Values) != len(ids) {
		return nil, errorx.New(errcodes.ErrCodeRowCount, "asked %d ids, got %d rows", len(ids), len(resp.Values))
	}
	return &Result{Columns: resp.Columns, IDs: ids, Values: resp.Values}, nil
}

func (q *Querier) decoy(pool []string, not string) (string, error) {
	for try := 0; try < 16; try++ {
		i, err := randInt(len(pool))
		if err != nil {
			return "", err
		}
		if pool[i] != not {
			return pool[i], nil
		}
	}
	// pool has no other id, an unknown id serves as decoy
	return "", nil
}

type query struct {
	target int // index in ids or -1 for decoy pairs
	choice int
}

func (q *Querier) retrieveSecure(ctx context.Context, ids []string, pool []string) (*Result, error) {
	extra := int(math.Ceil(q.param.SecurityLevel * float64(len(ids))))
	total := len(ids) + extra

	queries := make([]query, 0, total)
	pairs := make([][2]string, 0, total)
	for i := 0; i < total; i++ {
		var wanted string
		qr := query{target: -1}
		if i < len(ids) {
			wanted, qr.target = ids[i], i
		} else {
			d, err := q.decoy(pool, "")
			if err != nil {
				return nil, err
			}
			wanted = d
		}
		other, err := q.decoy(pool, wanted)
		if err != nil {
			return nil, err
		}
		if qr.choice, err = randInt(2); err != nil {
			return nil, err
		}
		var pair [2]string
		pair[qr.choice], pair[1-qr.choice] = wanted, other
		queries = append(queries, qr)
		pairs = append(pairs, pair)
	}

	// interleave decoy pairs with wanted ones
	for i := len(pairs) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return nil, err
		}
		pairs[i], pairs[j] = pairs[j], pairs[i]
		queries[i], queries[j] = queries[j], queries[i]
	}

	logger.WithFields(logrus.Fields{"ids": len(ids), "pairs": len(pairs)}).Info("secure retrieval")
	if err := q.request(ctx, &request{Pairs: pairs}); err != nil {
		return nil, err
	}

	var senderKey []byte
	if err := q.get(ctx, "sender_key", &senderKey); err != nil {
		return nil, err
	}
	senderPub, err := ot.UnmarshalPublicKey(curve(), senderKey)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeCrypto, "invalid sender key")
	}

	privs := make([]*ecdsa.PrivateKey, len(pairs))
	choices := make([]*ecdsa.PublicKey, len(pairs))
	wire := make([][]byte, len(pairs))
	for i, qr := range queries {
		if privs[i], err = ecdsa.GenerateKey(curve(), rand.Reader); err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to generate receiver key")
		}
		if choices[i], err = ot.ReceiverChoose(privs[i], senderPub, qr.choice); err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to choose")
		}
		wire[i] = ot.MarshalPublicKey(choices[i])
	}
	if err := q.send(ctx, "receiver_keys", wire); err != nil {
		return nil, err
	}

	var enc encryptedPairs
	if err := q.get(ctx, "cyphers", &enc); err != nil {
		return nil, err
	}
	if len(enc.Cyphers) != len(pairs) {
		return nil, errorx.New(errcodes.ErrCodeDesync, "sent %d pairs, got %d", len(pairs), len(enc.Cyphers))
	}

	var columns []string
	values := make([][]string, len(ids))
	for i, qr := range queries {
		msg, err := ot.ReceiverRetrieveMsg(privs[i], senderPub, choices[i], enc.Cyphers[i], qr.choice)
		if err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to open pair %d", i)
		}
		q.rounds++
		if qr.target < 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil || len(resp.Values) != 1 {
			return nil, errorx.New(errcodes.ErrCodeEncoding, "invalid record of pair %d", i)
		}
		columns = resp.Columns
		values[qr.target] = resp.Values[0]
	}
	return &Result{Columns: columns, IDs: ids, Values: values}, nil
}

// request sends req and waits for the provider to accept the mode
func (q *Querier) request(ctx context.Context, req *request) error {
	if err := q.send(ctx, "request", req); err != nil {
		return err
	}
	var ack accept
	if err := q.get(ctx, "accept", &ack); err != nil {
		return err
	}
	if ack.Error != "" {
		return errorx.New(errcodes.ErrCodeConfig, "provider refused retrieval: %s", ack.Error)
	}
	if ack.Raw != req.Raw {
		return errorx.New(errcodes.ErrCodeConfig, "provider raw retrieval %v, local %v", ack.Raw, req.Raw)
	}
	return nil
}

func (q *Querier) send(ctx context.Context, step string, v interface{}) error {
	return send(ctx, q.ch, tag(q.session, step), v)
}

func (q *Querier) get(ctx context.Context, step string, v interface{}) error {
	return get(ctx, q.ch, tag(q.session, step), v)
}

// Provider answers one retrieval request over its records
type Provider struct {
	param   *Param
	ch      Transport
	session string
	records *common.Records
	index   map[string]int
	rounds  int
}

func NewProvider(param *Param, ch Transport, session string, records *common.Records) *Provider {
	index := make(map[string]int, len(records.IDs))
	for i, id := range records.IDs {
		index[id] = i
	}
	return &Provider{param: param, ch: ch, session: session, records: records, index: index}
}

// Rounds returns the number of oblivious transfers served so far
func (p *Provider) Rounds() int {
	return p.rounds
}

func (p *Provider) lookup(id string) []string {
	if i, ok := p.index[id]; ok {
		return p.records.Values[i]
	}
	v := make([]string, len(p.records.Columns))
	for i := range v {
		v[i] = Unretrieved
	}
	return v
}

// Serve waits for the request of the querier and answers it
func (p *Provider) Serve(ctx context.Context) error {
	var req request
	if err := get(ctx, p.ch, tag(p.session, "request"), &req); err != nil {
		return err
	}
	ack := &accept{Raw: p.param.Raw()}
	if req.Raw != p.param.Raw() {
		ack.Error = "retrieval mode mismatch"
	}
	if err := send(ctx, p.ch, tag(p.session, "accept"), ack); err != nil {
		return err
	}
	if ack.Error != "" {
		return errorx.New(errcodes.ErrCodeConfig, "querier raw retrieval %v, local %v", req.Raw, p.param.Raw())
	}
	if req.Raw {
		logger.WithField("ids", len(req.IDs)).Info("serve raw retrieval")
		resp := &response{Columns: p.records.Columns, Values: make([][]string, len(req.IDs))}
		for i, id := range req.IDs {
			resp.Values[i] = p.lookup(id)
		}
		return send(ctx, p.ch, tag(p.session, "values"), resp)
	}

	logger.WithField("pairs", len(req.Pairs)).Info("serve secure retrieval")
	priv, err := ecdsa.GenerateKey(curve(), rand.Reader)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to generate sender key")
	}
	if err := send(ctx, p.ch, tag(p.session, "sender_key"), ot.MarshalPublicKey(&priv.PublicKey)); err != nil {
		return err
	}
	var wire [][]byte
	if err := get(ctx, p.ch, tag(p.session, "receiver_keys"), &wire); err != nil {
		return err
	}
	if len(wire) != len(req.Pairs) {
		return errorx.New(errcodes.ErrCodeDesync, "got %d pairs, %d receiver keys", len(req.Pairs), len(wire))
	}

	enc := encryptedPairs{Cyphers: make([][][]byte, len(wire))}
	for i, pair := range req.Pairs {
		pub, err := ot.UnmarshalPublicKey(curve(), wire[i])
		if err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeCrypto, "invalid receiver key %d", i)
		}
		msgs := make([][]byte, 2)
		for j, id := range pair {
			if msgs[j], err = json.Marshal(&response{Columns: p.records.Columns, Values: [][]string{p.lookup(id)}}); err != nil {
				return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to encode record")
			}
		}
		if enc.Cyphers[i], err = ot.SenderEncryptMsg(priv, pub, msgs); err != nil {
			return errorx.NewCode(err, errcodes.ErrCodeCrypto, "failed to encrypt pair %d", i)
		}
		p.rounds++
	}
	return send(ctx, p.ch, tag(p.session, "cyphers"), &enc)
}

func send(ctx context.Context, ch Transport, t string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to encode %s", t)
	}
	return ch.Send(ctx, t, data)
}

func get(ctx context.Context, ch Transport, t string, v interface{}) error {
	data, err := ch.Get(ctx, t)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to decode %s", t)
	}
	return nil
}
