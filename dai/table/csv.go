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

package table

import (
	"bytes"
	"encoding/csv"
	"io/ioutil"
	"os"
	"strings"

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/machine_learning/common"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
)

// ReadRowsFromFile reads all rows from csv file content
func ReadRowsFromFile(fileContent []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(fileContent))
	return r.ReadAll()
}

// WriteRowsToFile writes all rows to a csv file, an existing file is truncated
func WriteRowsToFile(fileRows [][]string, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeParam, "failed to create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(fileRows); err != nil {
		return errorx.NewCode(err, errcodes.ErrCodeInternal, "failed to write %s", path)
	}
	return nil
}

func readRows(path string) ([][]string, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeNotFound, "failed to read %s", path)
	}
	rows, err := ReadRowsFromFile(content)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeEncoding, "failed to parse csv %s", path)
	}
	return rows, nil
}

// LoadInstances reads a csv file into a data set and a table of *common.Instance keyed by sample id
func LoadInstances(path, idName, labelName string) (*common.DataSet, *Table, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, nil, err
	}
	return importInstances(path, rows, idName, labelName)
}

// LoadInstancesWithOptionalLabel is LoadInstances where a missing label column is not an error
func LoadInstancesWithOptionalLabel(path, idName, labelName string) (*common.DataSet, *Table, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) > 0 && labelName != "" {
		found := false
		for _, h := range rows[0] {
			if strings.TrimSpace(h) == labelName {
				found = true
			}
		}
		if !found {
			labelName = ""
		}
	}
	return importInstances(path, rows, idName, labelName)
}

func importInstances(path string, rows [][]string, idName, labelName string) (*common.DataSet, *Table, error) {
	ds, err := common.ImportInstances(rows, idName, labelName)
	if err != nil {
		return nil, nil, errorx.NewCode(err, errcodes.ErrCodeParam, "invalid data file %s", path)
	}
	values := make([]interface{}, len(ds.Instances))
	for i, ins := range ds.Instances {
		values[i] = ins
	}
	t, err := FromSlices(ds.IDs, values)
	if err != nil {
		return nil, nil, err
	}
	return ds, t, nil
}

// LoadRecords reads the id column and cols of a csv file
func LoadRecords(path, idName string, cols []string) (*common.Records, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	rec, err := common.SelectColumns(rows, idName, cols)
	if err != nil {
		return nil, errorx.NewCode(err, errcodes.ErrCodeParam, "invalid data file %s", path)
	}
	return rec, nil
}
