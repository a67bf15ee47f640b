package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/checker"
	"github.com/deemkeen/andstatus/ui/fixprogress"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	fixCountOnly    bool
	fixConversation []int64
	fixTui          bool
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Repair conversations and merge duplicate actors and users",
	Long: `Runs the fix data passes exclusively: syncs are unavailable until the pass ends.
With --conversation only the conversations of the given notes are repaired.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := checker.Options{CountOnly: fixCountOnly, ConversationNoteIds: fixConversation}

		var summary checker.Summary
		if fixTui {
			var err error
			if summary, err = fixprogress.Run(cmd.Context(), app, opts); err != nil {
				return err
			}
		} else {
			opts.Progress = func(p checker.Progress) {
				log.Debug("Progress", "checker", p.Checker, "done", p.Done, "total", p.Total)
			}
			chk := app.Checker()
			err := app.Pools.RunMaintenance(cmd.Context(), func(ctx context.Context) error {
				summary = chk.FixData(ctx, opts)
				return summary.Err
			})
			if summary.Err == nil {
				summary.Err = err
			}
		}
		printSummary(summary)
		return summary.Err
	},
}

func printSummary(s checker.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	verb := "Fixed"
	if s.CountOnly {
		verb = "To fix"
	}
	mark := green("✓")
	if !s.Completed() {
		mark = red("✗")
	}
	fmt.Printf("%s %s: %d users, %d conversation items (%s)\n", mark, verb, s.UsersFixed, s.ConversationsFixed, s.Duration.Round(time.Millisecond))
}

func init() {
	fixCmd.Flags().BoolVar(&fixCountOnly, "count-only", false, "count what would be fixed without writing")
	fixCmd.Flags().Int64SliceVar(&fixConversation, "conversation", nil, "repair only the conversations of these note ids")
	fixCmd.Flags().BoolVar(&fixTui, "tui", false, "show progress in an interactive screen")
	rootCmd.AddCommand(fixCmd)
}
