// Command fitcheck asks a team of model agents for outfit advice and keeps
// each user's conversation on disk.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/config"
)

var (
	// Global flags
	configPath string
	logLevel   string
	logPretty  bool

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fitcheck",
	Short: "Personal outfit recommendations from a team of AI agents",
	Long: `fitcheck turns a question about what to wear, plus an optional photo of
your closet and a voice note, into a recommendation. A supervisor agent
consults an environment agent (weather, venue), a closet analysis agent and
a style match agent that browses for visual inspiration.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-pretty") {
			cfg.Log.Pretty = logPretty
		}
		logger, err = newLogger(cmd.ErrOrStderr(), cfg.Log)
		return err
	},
}

func newLogger(w io.Writer, lc config.LogConfig) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if lc.Level != "" {
		parsed, err := zerolog.ParseLevel(lc.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		level = parsed
	}
	if lc.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(w).With().Timestamp().Logger(), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default searches ./config.yaml and the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human readable logs")

	rootCmd.AddCommand(askCmd, historyCmd, statusCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
