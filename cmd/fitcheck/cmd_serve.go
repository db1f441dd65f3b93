package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck/config"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/inbox"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/stylist"
)

// serveCmd processes requests dropped into the inbox directory
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the inbox directory and run dropped requests",
	Long: `Watches stylist.inbox_dir for *.json request files of the form
  {"userid": "u1", "text": "...", "image_path": "closet.jpeg", "audio_path": "note.mp3"}
Relative media paths are resolved against the inbox. Accepted files are
renamed to *.json.accepted, invalid ones to *.json.rejected. Progress is
written to each user's responses.json.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	config.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Error().Err(err).Msg("config reload failed")
			return
		}
		// Only the log level is applied live; everything else needs a restart.
		lvl, perr := zerolog.ParseLevel(next.Log.Level)
		if perr != nil {
			logger.Warn().Err(perr).Msg("ignoring invalid log level")
			return
		}
		zerolog.SetGlobalLevel(lvl)
		logger.Info().Str("level", lvl.String()).Msg("config reloaded")
	})

	go pruneTasks(ctx, svc)

	watcher := inbox.NewWatcher(cfg.Stylist.InboxDir, svc, logger)
	runErr := watcher.Run(ctx)

	shutdown, cancel := context.WithTimeout(context.Background(), cfg.Stylist.TaskTimeout)
	defer cancel()
	if err := svc.Close(shutdown); err != nil {
		logger.Warn().Err(err).Msg("tasks still running at shutdown were cancelled")
	}
	return runErr
}

func pruneTasks(ctx context.Context, svc *stylist.Service) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := svc.Tracker().Prune(now.Add(-time.Hour)); n > 0 {
				logger.Debug().Int("pruned", n).Msg("finished tasks pruned")
			}
		}
	}
}
