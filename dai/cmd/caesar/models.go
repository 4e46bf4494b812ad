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

	"github.com/PaddlePaddle/PaddleDTX/caesar/crypto/core/spdz"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/config"
	"github.com/PaddlePaddle/PaddleDTX/caesar/dai/storage/ldbstorage"
)

// sessionCmd prints a fresh task id to share with the peer
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "generate a random task id",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(spdz.NewSessionID())
	},
}

// modelsCmd lists the stored models
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "list trained models",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.InitConfig(configPath)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := ldbstorage.New(config.GetStorageConf().Path)
		if err != nil {
			return err
		}
		defer store.Close()

		infos, err := store.List(ldbstorage.KindModel)
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Printf("ModelID: %s\nCreated: %s\n\n", info.Name, info.Ctime.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(modelsCmd)
}
