package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/stylist"
)

var (
	askUser  string
	askImage string
	askAudio string
)

// askCmd runs one task in the foreground
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask for an outfit recommendation",
	Long: `Runs one recommendation task and prints the answer. The exchange is
appended to the user's chat history.

Example:
  fitcheck ask --user u1 --image closet.jpeg "What should I wear to a beach wedding in Cancun in June?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "", "user ID (required)")
	askCmd.Flags().StringVar(&askImage, "image", "", "photo of the closet")
	askCmd.Flags().StringVar(&askAudio, "audio", "", "voice note")
	_ = askCmd.MarkFlagRequired("user")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := stylist.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn().Err(err).Msg("cleanup failed")
		}
	}()
	defer svc.Close(context.Background())

	res, err := svc.Run(ctx, stylist.Request{
		UserID:    askUser,
		Text:      strings.Join(args, " "),
		ImagePath: askImage,
		AudioPath: askAudio,
	})
	if status, serr := svc.Tracker().Get(res.TaskID); serr == nil {
		for _, m := range status.Milestones {
			fmt.Fprintln(cmd.ErrOrStderr(), m)
		}
	}
	if err != nil {
		return fmt.Errorf("task %s failed: %w", res.TaskID, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Text)
	if len(res.GroundingSources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, src := range res.GroundingSources {
			fmt.Fprintf(out, "  %s\n", src)
		}
	}
	return nil
}
