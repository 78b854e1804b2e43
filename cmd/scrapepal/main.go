package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/use-agent/scrapepal/api/handler"
	"github.com/use-agent/scrapepal/config"
)

var (
	configPath string
	cfg        *config.Config
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errScrapeFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scrapepal",
		Short: "Fetch web pages statically or with a headless browser and extract structured content",
		Long: `scrapepal fetches a page over plain HTTP, escalates to a headless browser when
the markup looks client-rendered, and returns text, markdown, structure, links,
images and JSON-LD in a single JSON envelope.`,
		Version:       handler.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides environment defaults)")

	root.AddCommand(newServeCmd(), newScrapeCmd(), newMCPCmd())
	return root
}

// initLogger configures slog based on the LogConfig. forceText selects the
// text handler regardless of the configured format.
func initLogger(lc config.LogConfig, w io.Writer, forceText bool) {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if forceText || lc.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}
