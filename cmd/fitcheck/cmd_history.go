package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/fitcheck/fitcheck"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/adapters"
	"github.com/ZanzyTHEbar/fitcheck/fitcheck/stylist"
)

var (
	historyUser string
	statusUser  string
)

// historyCmd prints a user's persisted conversation
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a user's chat history",
	RunE:  runHistory,
}

// statusCmd prints the progress log of the user's latest task
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show progress of the user's latest task",
	Long: `Prints the progress log written while a task runs: one line per
milestone, followed by the grounding sources once the task completes.`,
	RunE: runStatus,
}

func init() {
	historyCmd.Flags().StringVar(&historyUser, "user", "", "user ID (required)")
	_ = historyCmd.MarkFlagRequired("user")
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user ID (required)")
	_ = statusCmd.MarkFlagRequired("user")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, closeStore, err := stylist.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	turns, err := store.Load(ctx, historyUser)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(turns) == 0 {
		fmt.Fprintln(out, "No history yet.")
		return nil
	}
	for _, t := range turns {
		fmt.Fprintf(out, "%s: %s\n\n", t.Role, t.Text)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dir, err := fitcheck.UserDir(cfg.Stylist.DataDir, statusUser)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := os.Stat(filepath.Join(dir, fitcheck.ResponsesFile)); os.IsNotExist(err) {
		fmt.Fprintln(out, "No task has run for this user.")
		return nil
	}

	entries, err := adapters.NewFileProgressLog(cfg.Stylist.DataDir).Entries(ctx, statusUser)
	if err != nil {
		return fmt.Errorf("failed to read progress: %w", err)
	}
	for _, raw := range entries {
		var milestone string
		if err := json.Unmarshal(raw, &milestone); err == nil {
			fmt.Fprintln(out, milestone)
			continue
		}
		var sources []string
		if err := json.Unmarshal(raw, &sources); err == nil {
			fmt.Fprintln(out, "done")
			for _, s := range sources {
				fmt.Fprintf(out, "  %s\n", s)
			}
		}
	}
	return nil
}
