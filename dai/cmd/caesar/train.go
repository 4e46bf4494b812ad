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

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc"
)

// trainCmd trains a model with the peer, both parties run it with the same task id
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "train a hetero logistic regression model with the peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNode(cmd, func(n *mpc.Node) error {
			m, err := n.Train(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			fmt.Printf("ModelID: %s\nRole: %s\nRounds: %d\nConverged: %v\n", m.ID, m.Role, m.Rounds, m.Converged)
			for i, name := range m.FeatureNames {
				fmt.Printf("%s: %v\n", name, m.Weights[i])
			}
			if m.HasIntercept {
				fmt.Printf("intercept: %v\n", m.Intercept)
			}
			return nil
		})
	},
}

func init() {
	addTaskCommand(trainCmd)
}
