// Copyright 2026 The rqbit-fuse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd is rqbit-fuse's CLI surface (§6): a cobra root command with
// "mount" and "umount" subcommands, flags bound through viper exactly as
// the teacher's cmd/root.go binds gcsfuse's flags. Everything under this
// package is external-collaborator plumbing around the core in internal/fs
// — argument parsing, config file loading and logging setup are explicitly
// out of the core's scope per spec.md §1.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rqbit-fuse",
	Short: "Expose a running rqbit BitTorrent client as a read-only FUSE filesystem",
	Long: `rqbit-fuse mounts a running rqbit client's torrents as a read-only
filesystem: each torrent is a directory, each torrent file a regular file
whose contents are streamed on demand from rqbit's HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command, returning a non-nil error on
// configuration error, mount failure or unmount failure per §6's exit-code
// contract; main.go turns that into the process exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file")
	rootCmd.AddCommand(mountCmd, umountCmd)
}

// initConfig reads the optional --config file into viper before any
// subcommand's RunE fires, matching the teacher's initConfig/cfgFile
// pattern in cmd/root.go.
func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "rqbit-fuse: reading config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}
