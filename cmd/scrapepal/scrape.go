package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/scrapepal/models"
	"github.com/use-agent/scrapepal/scraper"
)

// errScrapeFailed makes the process exit non-zero after the failure envelope
// has been printed.
var errScrapeFailed = errors.New("scrape failed")

func newScrapeCmd() *cobra.Command {
	var (
		mode     string
		selector string
		exclude  []string
		stealth  bool
		pretty   bool
	)

	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrape one URL and print the result envelope as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogger(cfg.Log, os.Stderr, true)

			sc := scraper.NewFromConfig(cfg)
			defer sc.Close()

			res := sc.RunRequest(cmd.Context(), &models.ScrapeRequest{
				URL:              args[0],
				Mode:             mode,
				CSSSelector:      selector,
				ExcludeSelectors: exclude,
				Stealth:          stealth,
			})
			if err := writeResult(cmd.OutOrStdout(), res, pretty); err != nil {
				return err
			}
			if !res.Success {
				return errScrapeFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "auto", "Fetch mode: auto, static or dynamic")
	cmd.Flags().StringVarP(&selector, "selector", "s", "", "CSS selector scoping text, markdown, links and images")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "CSS selectors removed before extraction")
	cmd.Flags().BoolVar(&stealth, "stealth", false, "Enable stealth evasions for browser fetches")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	return cmd
}

func writeResult(w io.Writer, res *models.ScrapeResult, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}
