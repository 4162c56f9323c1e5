package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "lotlogic"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Parcel valuation engine for municipal assessor data",
		Version: version,
		Long: `LotLogic estimates a defensible market value for every parcel in a town
from raw assessor and sales records: comparable sales, a hedonic regression,
and a blended confidence-scored value per parcel.`,
	}

	rootCmd.AddCommand(newComputeCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newMonitorCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
