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
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustledotdev/rustle.dev-sub001/internal/bundle"
	"github.com/rustledotdev/rustle.dev-sub001/internal/cache"
)

var bundleDir string

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Inspect and import static locale bundles",
	Long: `Work with static locale bundles.

Bundles are JSON files named <locale>.json holding precomputed
translations. They are the cheapest resolution tier: the engine consults
them before the persistent cache and the remote API.`,
}

var bundleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded bundles",
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := loadBundleSet()
		if err != nil {
			return err
		}

		locales := set.Locales()
		if len(locales) == 0 {
			fmt.Println("No bundles found.")
			return nil
		}
		sort.Strings(locales)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LOCALE\tNAME\tSOURCE\tENTRIES")
		for _, locale := range locales {
			b, _ := set.Get(locale)
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
				b.Locale, b.Meta.Name, b.Meta.SourceLanguage, b.Len())
		}
		return w.Flush()
	},
}

var bundleLookupCmd = &cobra.Command{
	Use:   "lookup <locale> <text>",
	Short: "Resolve text against a bundle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := loadBundleSet()
		if err != nil {
			return err
		}

		v, ok := set.Lookup(args[1], args[0])
		if !ok {
			return fmt.Errorf("no bundle entry for %q in %s", args[1], args[0])
		}
		fmt.Println(v)
		return nil
	},
}

var bundleImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a bundle file into the persistent cache",
	Long: `Parse a bundle file and store its translations in the persistent
cache, making them available without the bundle directory. Imported
bundles expire on the bundle TTL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundle.ParseFile(args[0])
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := cache.New(cfg.DBPath,
			cache.WithTTL(cfg.CacheTTLs.Translation, cfg.CacheTTLs.Bundle))
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer store.Close()

		if err := store.PutBundle(context.Background(), b.Locale, b.Translations()); err != nil {
			return fmt.Errorf("failed to import bundle: %w", err)
		}
		fmt.Printf("Imported %d entries for %s.\n", b.Len(), b.Locale)
		return nil
	},
}

func loadBundleSet() (*bundle.Set, error) {
	dir := bundleDir
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		dir = cfg.BundleDir
	}
	set, err := bundle.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundles: %w", err)
	}
	return set, nil
}

func init() {
	rootCmd.AddCommand(bundleCmd)
	bundleCmd.AddCommand(bundleListCmd)
	bundleCmd.AddCommand(bundleLookupCmd)
	bundleCmd.AddCommand(bundleImportCmd)

	bundleCmd.PersistentFlags().StringVar(&bundleDir, "dir", "", "Bundle directory (default from config)")
}
