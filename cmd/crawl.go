// Package cmd defines and implements the CLI commands for the product-url-crawler executable.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-url-crawler/internal/crawler"
)

type crawlOptions struct {
	domains        []string
	maxConcurrency int
	batchSize      int
	output         string
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one crawl and prints
// the per-domain results as JSON.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl [domain...]",
		Short: "Crawls the given domains once and prints discovered product URLs",
		Long: `Runs a single product discovery crawl. Domains may be given as bare hosts
(shop.example) or URLs (https://shop.example/), either as arguments or with
repeated --domain flags. Results are printed as a JSON array in request order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, append(append([]string{}, opts.domains...), args...), opts)
		},
	}
	cmd.Flags().StringSliceVarP(&opts.domains, "domain", "d", nil, "domain to crawl (repeatable)")
	cmd.Flags().IntVar(&opts.maxConcurrency, "max-concurrency", 0, "post-processing concurrency override")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "post-processing batch size override")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write results to this file instead of stdout")
	return cmd
}

func runCrawl(cmd *cobra.Command, domains []string, opts *crawlOptions) error {
	if len(domains) == 0 {
		return errors.New("at least one domain is required")
	}
	if opts.maxConcurrency < 0 || opts.batchSize < 0 {
		return errors.New("--max-concurrency and --batch-size must be >= 0")
	}
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	results := appInstance.Crawler().Crawl(cmd.Context(), domains, crawler.CrawlOptions{
		MaxConcurrency: opts.maxConcurrency,
		BatchSize:      opts.batchSize,
	})

	var out io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				logger.Warn("failed to close output file", zap.Error(cerr))
			}
		}()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	total := 0
	for _, r := range results {
		total += len(r.ProductURLs)
	}
	logger.Info("crawl command finished", zap.Int("domains", len(results)), zap.Int("product_urls", total))
	return nil
}
