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

package ldbstorage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

const (
	dbName = "caesarDB"

	KindModel  = "model"
	KindResult = "result"
)

// record wraps a stored value with its write time
type record struct {
	Ctime int64           `json:"ctime"`
	Value json.RawMessage `json:"value"`
}

// Info describes a stored entry
type Info struct {
	Name  string
	Ctime time.Time
}

// LevelDBStorage keeps trained models and prediction results by kind and name
type LevelDBStorage struct {
	root string
	db   *leveldb.DB
}

// New opens or creates the database under root
func New(root string) (*LevelDBStorage, error) {
	f := filepath.Join(root, dbName)
	db, err := leveldb.OpenFile(f, nil)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeStorage, "cannot open leveldb")
	}
	return &LevelDBStorage{root: root, db: db}, nil
}

// Save stores v as json, an existing entry of the same name is replaced
func (s *LevelDBStorage) Save(kind, name string, v interface{}) error {
	if name == "" || strings.Contains(name, ":") {
		return errorx.New(errcodes.ErrCodeParam, "invalid %s name %q", kind, name)
	}
	value, err := json.Marshal(v)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to marshal %s", kind)
	}
	data, err := json.Marshal(&record{Ctime: time.Now().UnixNano(), Value: value})
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to marshal record")
	}

	batch := leveldb.Batch{}
	batch.Put(makeKey(kind, name), data)
	if err := s.db.Write(&batch, nil); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeStorage, "failed to write batch")
	}
	return nil
}

// Load decodes the entry into v
func (s *LevelDBStorage) Load(kind, name string, v interface{}) error {
	data, err := s.db.Get(makeKey(kind, name), nil)
	if err == leveldb.ErrNotFound {
		return errorx.New(errcodes.ErrCodeNotFound, "%s %s not found", kind, name)
	}
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeStorage, "failed to get")
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to unmarshal record")
	}
	if err := json.Unmarshal(r.Value, v); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to unmarshal %s", kind)
	}
	return nil
}

// List returns the entries of kind in name order
func (s *LevelDBStorage) List(kind string) ([]Info, error) {
	prefix := []byte(kind + ":")
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var infos []Info
	for iter.Next() {
		var r record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to unmarshal record")
		}
		infos = append(infos, Info{
			Name:  string(iter.Key()[len(prefix):]),
			Ctime: time.Unix(0, r.Ctime),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeStorage, "failed to iterate")
	}
	return infos, nil
}

func (s *LevelDBStorage) Delete(kind, name string) error {
	if err := s.db.Delete(makeKey(kind, name), nil); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeStorage, "failed to delete")
	}
	return nil
}

func (s *LevelDBStorage) Close() error {
	return s.db.Close()
}

func makeKey(kind, name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", kind, name))
}
