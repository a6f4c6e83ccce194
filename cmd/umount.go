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

package cmd

import (
	"fmt"
	"os/exec"

	"github.com/jacobsa/fuse"
	"github.com/spf13/cobra"
)

var umountForce bool

var umountCmd = &cobra.Command{
	Use:   "umount PATH",
	Short: "Unmount a directory previously mounted with rqbit-fuse",
	Args:  cobra.ExactArgs(1),
	RunE:  runUmount,
}

func init() {
	umountCmd.Flags().BoolVar(&umountForce, "force", false, "lazily unmount via fusermount -uz if a clean unmount fails")
}

func runUmount(cmd *cobra.Command, args []string) error {
	dir := args[0]

	if err := fuse.Unmount(dir); err == nil {
		return nil
	} else if !umountForce {
		return fmt.Errorf("unmounting %s: %w", dir, err)
	}

	return lazyUnmount(dir)
}

// lazyUnmount shells out to fusermount -uz the way gcsfuse's own
// integration tooling tears mounts down when a clean unmount is refused
// with "resource busy".
func lazyUnmount(dir string) error {
	fusermount, err := exec.LookPath("fusermount")
	if err != nil {
		return fmt.Errorf("locating fusermount: %w", err)
	}
	out, err := exec.Command(fusermount, "-uz", dir).CombinedOutput()
	if err != nil {
		return fmt.Errorf("fusermount -uz %s: %w: %s", dir, err, out)
	}
	return nil
}
