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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/table"
)

var retrieveOutput string

// retrieveCmd fetches the target columns of the host for the ids of the guest
var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "secure information retrieval, the guest queries and the host serves",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNode(cmd, func(n *mpc.Node) error {
			res, err := n.Retrieve(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			if res == nil {
				fmt.Println("retrieval served")
				return nil
			}
			rows := mpc.ResultRows(config.GetPartyConf().Data.IDName, res)
			if retrieveOutput != "" {
				return table.WriteRowsToFile(rows, retrieveOutput)
			}
			for _, r := range rows {
				fmt.Println(r)
			}
			return nil
		})
	},
}

func init() {
	retrieveCmd.Flags().StringVarP(&retrieveOutput, "output", "o", "", "csv file for the retrieved values")
	addTaskCommand(retrieveCmd)
}
