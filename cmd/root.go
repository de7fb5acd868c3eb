/*
Copyright © 2025 rustle.dev

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "rustle",
	Short: "Content-addressed translation engine",
	Long: `A translation engine with a content-addressed cache, request batching,
and deduplication in front of the rustle.dev translation API.

Translations resolve through static locale bundles, a persistent SQLite
cache, and finally the remote API; identical requests inside a batch
window share a single network call.

Use "rustle translate --help" for translation options.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML); RUSTLE_* env vars override")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
