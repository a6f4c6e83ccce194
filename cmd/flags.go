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

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/rqbit-fuse/rqbit-fuse/cfg"
)

// loadConfig merges, in ascending priority, cfg.Default(), the config file
// read by initConfig (if any), and the flags bound by cfg.BindFlags,
// exactly the order gcsfuse's own viper.Unmarshal-over-defaults pattern
// establishes.
func loadConfig() (cfg.Config, error) {
	config := cfg.Default()
	// Config's fields are named by their yaml tags, which are the same
	// hyphenated keys cfg.BindFlags registers with viper.
	if err := viper.Unmarshal(&config, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return cfg.Config{}, fmt.Errorf("unmarshalling configuration: %w", err)
	}
	cfg.FillDefaults(&config)
	return config, nil
}

// verbosityOverride translates the -v/-q counting flags into a log
// severity, taking priority over an explicit --log-severity/config-file
// value only when the user actually passed one of them.
func verbosityOverride(severity string) string {
	verbose := viper.GetInt("verbose")
	quiet := viper.GetBool("quiet")

	switch {
	case quiet:
		return cfg.ERROR
	case verbose >= 2:
		return cfg.TRACE
	case verbose == 1:
		return cfg.DEBUG
	default:
		return severity
	}
}
