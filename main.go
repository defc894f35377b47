package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"auction-agent/config"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	setupLogging("info", false)

	rootCmd := &cobra.Command{
		Use:   "auction-agent",
		Short: "Auction return calculator and analysis progress tracker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogging(cfg.Log.Level, cfg.Log.JSON)
			loaded = cfg
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(newServeCmd(), newCalcCmd(), newWatchCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loaded is the configuration resolved by the root command before any
// subcommand runs.
var loaded config.Config

// setupLogging writes human-readable output on a terminal and JSON
// everywhere else.
func setupLogging(level string, forceJSON bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if !forceJSON && term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
