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
	models "github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc/models/hetero_lr"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/table"
)

var (
	modelID string
	output  string
)

// predictCmd scores the local data with a stored model, the guest writes the outcomes
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "predict with a trained model, the guest gets the outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withNode(cmd, func(n *mpc.Node) error {
			outcomes, err := n.Predict(cmd.Context(), taskID, modelID)
			if err != nil {
				return err
			}
			if outcomes == nil {
				fmt.Println("host scores sent")
				return nil
			}
			if report, err := models.Evaluate(outcomes); err == nil && report != nil {
				fmt.Printf("Accuracy: %.4f\nPrecision: %.4f\nRecall: %.4f\nF1Score: %.4f\nAUC: %.4f\n",
					report.Accuracy, report.Precision, report.Recall, report.F1Score, report.AUC)
			}
			rows := models.OutcomesToRows(config.GetPartyConf().Data.IDName, outcomes)
			if output != "" {
				if err := table.WriteRowsToFile(rows, output); err != nil {
					return err
				}
				fmt.Printf("%d outcomes written to %s\n", len(outcomes), output)
				return nil
			}
			for _, r := range rows {
				fmt.Println(r)
			}
			return nil
		})
	},
}

func init() {
	predictCmd.Flags().StringVarP(&modelID, "model", "m", "", "id of the model, the task id it was trained with")
	predictCmd.Flags().StringVarP(&output, "output", "o", "", "csv file for the outcomes")
	predictCmd.MarkFlagRequired("model")
	addTaskCommand(predictCmd)
}
