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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rqbit-fuse/rqbit-fuse/cfg"
	rqfs "github.com/rqbit-fuse/rqbit-fuse/internal/fs"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/discovery"
	"github.com/rqbit-fuse/rqbit-fuse/internal/logger"
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
)

var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount rqbit's torrents at a directory",
	RunE:  runMount,
}

func init() {
	mountCmd.Flags().String("mount-point", "", "Directory to mount the filesystem at")
	if err := mountCmd.MarkFlagRequired("mount-point"); err != nil {
		panic(err)
	}
	if err := cfg.BindFlags(mountCmd.Flags()); err != nil {
		panic(err)
	}
}

func runMount(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	config.Logging.Severity = verbosityOverride(config.Logging.Severity)

	if err := cfg.Validate(&config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	level := logger.ParseLevel(config.Logging.Severity)
	logger.SetLevel(level)

	mountPoint, err := cmd.Flags().GetString("mount-point")
	if err != nil {
		return err
	}
	info, err := os.Stat(mountPoint)
	if err != nil {
		return fmt.Errorf("mount point %s: %w", mountPoint, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point %s is not a directory", mountPoint)
	}

	client := rqbitapi.NewClient(rqbitapi.Options{
		BaseURL:            config.APIURL,
		Username:           config.Username,
		Password:           config.Password,
		RequestTimeout:     config.RequestTimeout,
		RetryAttempts:      config.RetryAttempts,
		ListCacheTTL:       config.ListCacheTTL,
		MaxConcurrentReads: config.MaxConcurrentReads,
	})
	client.SetTracer(logger.NewHTTPTracer(os.Stderr, logger.ZerologLevel(level)))

	m := rqfs.New(rqfs.Options{
		APIClient:   client,
		MaxInodes:   config.MaxInodes,
		MaxHandles:  config.MaxHandles,
		ReadTimeout: config.ReadTimeout,
		PieceGate:   config.PieceGate.Enabled,
		Discovery: discovery.Config{
			Interval:      config.Discovery.Interval,
			Debounce:      config.Discovery.Debounce,
			BridgeTimeout: config.Discovery.BridgeTimeout,
		},
	})

	if err := m.Mount(mountPoint); err != nil {
		return fmt.Errorf("mounting at %s: %w", mountPoint, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		unmountCtx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
		defer cancel()
		if err := m.Unmount(unmountCtx); err != nil {
			logger.New("cmd").Error("unmount on signal", "error", err)
		}
	}()

	return m.Join(context.Background())
}
