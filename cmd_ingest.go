package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/deemkeen/andstatus/activitypub"
	"github.com/deemkeen/andstatus/connector"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/executor"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	ingestSpool string
	ingestWatch bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.json...]",
	Short: "Apply ActivityPub activities from files or a spool directory",
	Long: `Applies each activity in its own transaction. Without files the spool
directory is drained; with --watch new files are applied as they arrive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, name, err := originId()
		if err != nil {
			return err
		}
		parse := func(body []byte) (*domain.Activity, error) {
			return activitypub.ParseActivity(id, body)
		}

		var c connector.Connector
		if len(args) > 0 {
			acts := make([]*domain.Activity, 0, len(args))
			for _, path := range args {
				body, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				act, err := parse(body)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				acts = append(acts, act)
			}
			c = connector.Static(acts...)
		} else {
			dir := ingestSpool
			if dir == "" {
				dir = app.Conf.Conf.SpoolDir
			}
			if dir == "" {
				return errors.New("no files given and no spool directory configured")
			}
			spool, err := connector.NewSpool(dir, parse, ingestWatch)
			if err != nil {
				return err
			}
			defer spool.Close()
			c = spool
		}

		n, err := connector.Drain(ctx, c, pooledSink(name))
		if ingestWatch && errors.Is(err, context.Canceled) {
			err = nil
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %d activities applied\n", green("✓"), n)
		return err
	},
}

// pooledSink applies every activity as a sync job, waiting while a
// maintenance pass runs.
func pooledSink(originName string) connector.Sink {
	updater := app.Updater()
	return connector.SinkFunc(func(ctx context.Context, act *domain.Activity) error {
		job := executor.Job{Name: "ingest " + originName, Run: func(ctx context.Context) error {
			return updater.OnActivity(ctx, act)
		}}
		for {
			err := app.Pools.Sync(ctx, job)
			if !errors.Is(err, executor.ErrSyncUnavailable) {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	})
}

func init() {
	ingestCmd.Flags().StringVarP(&origin, "origin", "o", "", "origin name of the activities")
	ingestCmd.Flags().StringVar(&ingestSpool, "spool", "", "spool directory (default: spoolDir of the config)")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the spool directory")
	rootCmd.AddCommand(ingestCmd)
}
