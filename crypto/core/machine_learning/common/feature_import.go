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

package common

import (
	"fmt"
	"strconv"
	"strings"
)

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// ImportInstances reads samples from file rows, the first row is the header.
// idName names the sample id column, labelName the 0/1 target column and may be empty.
// Every other column is a numeric feature.
func ImportInstances(fileRows [][]string, idName, labelName string) (*DataSet, error) {
	if len(fileRows) == 0 {
		return nil, fmt.Errorf("empty file content")
	}
	header := fileRows[0]
	idIndex := columnIndex(header, idName)
	if idIndex == -1 {
		return nil, fmt.Errorf("file does not contain sample id: %s", idName)
	}
	labelIndex := -1
	if labelName != "" {
		if labelIndex = columnIndex(header, labelName); labelIndex == -1 {
			return nil, fmt.Errorf("file does not contain label: %s", labelName)
		}
	}

	ds := &DataSet{IDName: idName, LabelName: labelName}
	for i, h := range header {
		if i != idIndex && i != labelIndex {
			ds.FeatureNames = append(ds.FeatureNames, strings.TrimSpace(h))
		}
	}

	seen := make(map[string]bool)
	for row := 1; row < len(fileRows); row++ {
		r := fileRows[row]
		if len(r) != len(header) {
			return nil, fmt.Errorf("row %d has %d columns, header has %d", row, len(r), len(header))
		}
		id := strings.TrimSpace(r[idIndex])
		if seen[id] {
			return nil, fmt.Errorf("duplicated sample id %q at row %d", id, row)
		}
		seen[id] = true

		ins := &Instance{Features: make([]float64, 0, len(ds.FeatureNames))}
		for i, v := range r {
			if i == idIndex {
				continue
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse value of %s at row %d, err: %v", header[i], row, err)
			}
			if i == labelIndex {
				if value != 0 && value != 1 {
					return nil, fmt.Errorf("label at row %d must be 0 or 1, got %v", row, value)
				}
				ins.Label, ins.HasLabel = value, true
				continue
			}
			ins.Features = append(ins.Features, value)
		}
		ds.IDs = append(ds.IDs, id)
		ds.Instances = append(ds.Instances, ins)
	}
	return ds, nil
}

// SelectColumns keeps the id column and cols of every row, values stay raw strings
func SelectColumns(fileRows [][]string, idName string, cols []string) (*Records, error) {
	if len(fileRows) == 0 {
		return nil, fmt.Errorf("empty file content")
	}
	header := fileRows[0]
	idIndex := columnIndex(header, idName)
	if idIndex == -1 {
		return nil, fmt.Errorf("file does not contain sample id: %s", idName)
	}
	indexes := make([]int, len(cols))
	for i, c := range cols {
		if indexes[i] = columnIndex(header, c); indexes[i] == -1 {
			return nil, fmt.Errorf("file does not contain column: %s", c)
		}
	}

	rec := &Records{Columns: cols}
	for row := 1; row < len(fileRows); row++ {
		r := fileRows[row]
		if len(r) != len(header) {
			return nil, fmt.Errorf("row %d has %d columns, header has %d", row, len(r), len(header))
		}
		values := make([]string, len(indexes))
		for i, idx := range indexes {
			values[i] = r[idx]
		}
		rec.IDs = append(rec.IDs, strings.TrimSpace(r[idIndex]))
		rec.Values = append(rec.Values, values)
	}
	return rec, nil
}
