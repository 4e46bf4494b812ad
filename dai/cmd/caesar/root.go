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
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errcodes"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/errorx"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/mpc"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/storage/ldbstorage"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/util/logging"
)

var (
	configPath string
	taskID     string
)

// rootCmd loads the configuration and the log before any subcommand
var rootCmd = &cobra.Command{
	Use:           "caesar",
	Short:         "two party hetero logistic regression over secret shares",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", "./conf/config.toml", "configuration file")
}

// loadConfig is the PersistentPreRunE of the commands talking to the peer
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(configPath); err != nil {
		return err
	}
	logStd, err := logging.InitLog(config.GetLogConf(), "caesar.log", true)
	if err != nil {
		return err
	}
	// writes the standard output to the log file
	logStd.Apply()

	if taskID == "" {
		taskID = config.GetPartyConf().SessionID
	}
	if taskID == "" {
		return errorx.New(errcodes.ErrCodeParam, "missing task id, set --task or party.sessionID")
	}
	return nil
}

// withNode opens the store, starts a node and runs f with it
func withNode(cmd *cobra.Command, f func(n *mpc.Node) error) error {
	store, err := ldbstorage.New(config.GetStorageConf().Path)
	if err != nil {
		return err
	}
	defer store.Close()

	n := mpc.NewNode(mpc.Config{
		Party: config.GetPartyConf(),
		Mpc:   config.GetMpcConf(),
		SIR:   config.GetSIRParam(),
	}, store)
	n.Start(cmd.Context())
	defer n.Stop()

	if err := f(n); err != nil {
		code, msg := errorx.Parse(err)
		logrus.WithFields(logrus.Fields{
			"task":         taskID,
			"code":         code,
			"needsRestart": errcodes.NeedsRestart(err),
		}).Error(msg)
		return err
	}
	return nil
}

func addTaskCommand(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "task id shared with the peer, defaults to party.sessionID")
	cmd.PersistentPreRunE = loadConfig
	rootCmd.AddCommand(cmd)
}
