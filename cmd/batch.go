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
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustledotdev/rustle.dev-sub001/internal/api"
)

var (
	batchInput  string
	batchOutput string
	batchSource string
	batchTarget string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Translate a file line by line",
	Long: `Translate every non-empty line of a file in batched API calls.

Lines are grouped into requests of up to ` + strconv.Itoa(api.MaxBatchEntries) + ` entries each. Results are
written in input order, one translated line per input line, and cached
for later singular lookups.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(batchInput)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if batchSource != "" {
			cfg.SourceLanguage = batchSource
		}

		eng, err := newEngine(cfg, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		translated := make([]string, len(lines))

		var entries []api.Entry
		flush := func(ctx context.Context) error {
			if len(entries) == 0 {
				return nil
			}
			res, err := eng.TranslateBatch(ctx, entries, cfg.SourceLanguage, batchTarget)
			if err != nil {
				return fmt.Errorf("batch translation failed: %w", err)
			}
			for _, e := range entries {
				idx, _ := strconv.Atoi(e.ID)
				if v, ok := res.Translations[e.ID]; ok {
					translated[idx] = v
				} else {
					translated[idx] = e.Text
				}
			}
			entries = entries[:0]
			return nil
		}

		ctx := context.Background()
		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				translated[i] = line
				continue
			}
			entries = append(entries, api.Entry{ID: strconv.Itoa(i), Text: line})
			if len(entries) == api.MaxBatchEntries {
				if err := flush(ctx); err != nil {
					return err
				}
			}
		}
		if err := flush(ctx); err != nil {
			return err
		}

		out := os.Stdout
		if batchOutput != "" {
			f, err := os.Create(batchOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		w := bufio.NewWriter(out)
		for _, line := range translated {
			fmt.Fprintln(w, line)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "", "Input file, one text per line (required)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Output file (default stdout)")
	batchCmd.Flags().StringVarP(&batchSource, "source", "s", "", "Source language code")
	batchCmd.Flags().StringVarP(&batchTarget, "target", "t", "", "Target language code (required)")

	batchCmd.MarkFlagRequired("input")
	batchCmd.MarkFlagRequired("target")
}
