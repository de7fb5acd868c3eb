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
	"fmt"
	"log/slog"
	"os"

	"github.com/rustledotdev/rustle.dev-sub001/internal/config"
	"github.com/rustledotdev/rustle.dev-sub001/internal/engine"
	"github.com/rustledotdev/rustle.dev-sub001/internal/validator"
)

// loadConfig resolves the effective configuration from the config file
// flag, RUSTLE_* environment variables, and defaults.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newEngine builds an engine from cfg. When validate is set, network
// results are checked against the target language and mismatches logged.
func newEngine(cfg config.Config, validate bool) (*engine.Engine, error) {
	opts := []engine.Option{engine.WithLogger(newLogger(cfg))}
	if validate {
		locales := append([]string{cfg.SourceLanguage}, cfg.TargetLanguages...)
		opts = append(opts, engine.WithValidator(validator.New(locales...)))
	}
	return engine.New(cfg, opts...)
}
