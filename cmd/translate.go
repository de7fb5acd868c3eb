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
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustledotdev/rustle.dev-sub001/internal/detector"
	"github.com/rustledotdev/rustle.dev-sub001/internal/engine"
)

var (
	translateInput   string
	translateOutput  string
	translateSource  string
	translateTarget  string
	translateContext string
	translateNoCache bool
	translateRetries int
	translateCheck   bool
)

var translateCmd = &cobra.Command{
	Use:   "translate [text...]",
	Short: "Translate text",
	Long: `Translate text into the target locale.

Text is taken from the positional arguments, or from a file with --input.
Results resolve through the static bundles and the persistent cache before
reaching the remote API.

With --source auto the source language is detected from the input text.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var text string
		switch {
		case translateInput != "":
			data, err := os.ReadFile(translateInput)
			if err != nil {
				return fmt.Errorf("failed to read input file: %w", err)
			}
			text = string(data)
		case len(args) > 0:
			text = strings.Join(args, " ")
		default:
			return fmt.Errorf("no input: pass text as arguments or use --input")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if translateSource == "auto" {
			det := detector.New()
			if detected, ok := det.DetectISO(text); ok {
				fmt.Fprintf(os.Stderr, "Detected source language: %s\n", detected)
				cfg.SourceLanguage = detected
			}
		} else if translateSource != "" {
			cfg.SourceLanguage = translateSource
		}

		eng, err := newEngine(cfg, translateCheck)
		if err != nil {
			return err
		}
		defer eng.Close()

		var opts []engine.TranslateOption
		if translateNoCache {
			opts = append(opts, engine.WithoutCache())
		}
		if translateRetries > 0 {
			opts = append(opts, engine.WithRetries(translateRetries))
		}
		if translateContext != "" {
			opts = append(opts, engine.WithContext(translateContext))
		}

		result, err := eng.Translate(context.Background(), text, translateTarget, opts...)
		if err != nil {
			return fmt.Errorf("translation failed: %w", err)
		}

		if translateOutput != "" {
			if err := os.WriteFile(translateOutput, []byte(result), 0644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
		} else {
			fmt.Println(result)
		}

		// Fallback can turn a quota failure into the original text; the
		// exit status still has to report it.
		if eng.QuotaExhausted() {
			return fmt.Errorf("translation quota exhausted")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&translateInput, "input", "i", "", "Input file to translate")
	translateCmd.Flags().StringVarP(&translateOutput, "output", "o", "", "Output file (default stdout)")
	translateCmd.Flags().StringVarP(&translateSource, "source", "s", "", "Source language code, or auto to detect")
	translateCmd.Flags().StringVarP(&translateTarget, "target", "t", "", "Target language code (required)")
	translateCmd.Flags().StringVar(&translateContext, "context", "", "Translation context hint passed to the API")
	translateCmd.Flags().BoolVar(&translateNoCache, "no-cache", false, "Bypass bundle and cache resolution")
	translateCmd.Flags().IntVar(&translateRetries, "retries", 0, "Override configured retry budget")
	translateCmd.Flags().BoolVar(&translateCheck, "validate", false, "Check the result is in the target language")

	translateCmd.MarkFlagRequired("target")
}
