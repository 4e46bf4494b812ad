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

// Package table provides an ordered key-value collection standing in for
// a distributed table, every operation keeps the order of the keys.
package table

import (
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

// Entry is one keyed row
type Entry struct {
	Key   string
	Value interface{}
}

// Table is immutable once built, operations return new tables
type Table struct {
	entries []Entry
	index   map[string]int
}

// New builds a table, keys must be unique
func New(entries []Entry) (*Table, error) {
	t := &Table{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, ok := t.index[e.Key]; ok {
			return nil, errorx.New(errcodes.ErrCodeParam, "duplicated table key %q", e.Key)
		}
		t.index[e.Key] = len(t.entries)
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// FromSlices pairs keys with values
func FromSlices(keys []string, values []interface{}) (*Table, error) {
	if len(keys) != len(values) {
		return nil, errorx.New(errcodes.ErrCodeParam, "%d keys and %d values", len(keys), len(values))
	}
	entries := make([]Entry, len(keys))
	for i := range keys {
		entries[i] = Entry{Key: keys[i], Value: values[i]}
	}
	return New(entries)
}

func (t *Table) Count() int {
	return len(t.entries)
}

// First returns the first entry, ok is false on an empty table
func (t *Table) First() (e Entry, ok bool) {
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[0], true
}

// Get looks up the value of key
func (t *Table) Get(key string) (interface{}, bool) {
	i, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return t.entries[i].Value, true
}

func (t *Table) Keys() []string {
	keys := make([]string, len(t.entries))
	for i, e := range t.entries {
		keys[i] = e.Key
	}
	return keys
}

// Collect returns a copy of the entries in key order
func (t *Table) Collect() []Entry {
	return append([]Entry(nil), t.entries...)
}

// MapValues applies f to every value
func (t *Table) MapValues(f func(v interface{}) (interface{}, error)) (*Table, error) {
	out := &Table{entries: make([]Entry, len(t.entries)), index: t.index}
	for i, e := range t.entries {
		v, err := f(e.Value)
		if err != nil {
			return nil, errorx.Wrap(err, "failed to map value of %q", e.Key)
		}
		out.entries[i] = Entry{Key: e.Key, Value: v}
	}
	return out, nil
}

// Join keeps the keys present in both tables in the order of t
func (t *Table) Join(o *Table, f func(a, b interface{}) (interface{}, error)) (*Table, error) {
	var entries []Entry
	for _, e := range t.entries {
		b, ok := o.Get(e.Key)
		if !ok {
			continue
		}
		v, err := f(e.Value, b)
		if err != nil {
			return nil, errorx.Wrap(err, "failed to join %q", e.Key)
		}
		entries = append(entries, Entry{Key: e.Key, Value: v})
	}
	return New(entries)
}

// Reduce folds the values in key order, an empty table reduces to nil
func (t *Table) Reduce(f func(a, b interface{}) (interface{}, error)) (interface{}, error) {
	if len(t.entries) == 0 {
		return nil, nil
	}
	acc := t.entries[0].Value
	for _, e := range t.entries[1:] {
		var err error
		if acc, err = f(acc, e.Value); err != nil {
			return nil, errorx.Wrap(err, "failed to reduce at %q", e.Key)
		}
	}
	return acc, nil
}
