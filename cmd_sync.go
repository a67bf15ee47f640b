package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/andstatus/activitypub"
	"github.com/deemkeen/andstatus/db"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/executor"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const outboxTimeline = "outbox"

var (
	syncPages   int
	syncTimeout time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync <actorURI>...",
	Short: "Download the outboxes of ActivityPub actors",
	Long:  `Runs one sync job per actor on the sync pool, at most syncWorkers at a time.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _, err := originId()
		if err != nil {
			return err
		}
		client := activitypub.NewClient(syncTimeout)

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		jobs := make([]executor.Job, 0, len(args))
		for _, uri := range args {
			jobs = append(jobs, executor.Job{Name: uri, Run: func(ctx context.Context) error {
				n, err := syncOutbox(ctx, client, id, uri)
				if err != nil {
					fmt.Printf("%s %s: %v\n", red("✗"), uri, err)
					return err
				}
				fmt.Printf("%s %s: %d activities\n", green("✓"), uri, n)
				return nil
			}})
		}
		return app.Pools.SyncAll(cmd.Context(), jobs)
	},
}

func syncOutbox(ctx context.Context, client *activitypub.Client, originId int64, uri string) (int, error) {
	in, resp, err := client.FetchActor(ctx, uri)
	if err != nil {
		return 0, err
	}
	if resp.Outbox == "" {
		return 0, fmt.Errorf("actor %s has no outbox", uri)
	}
	in.OriginId = originId

	var actor *domain.Actor
	err = app.Store.InTransaction(ctx, func(tx *db.Tx) error {
		var err error
		actor, _, err = tx.SaveActor(ctx, in)
		return err
	})
	if err != nil {
		return 0, err
	}
	app.Cache.Load(ctx, actor.Id, true)

	tl, err := app.Store.Timeline(ctx, outboxTimeline, actor.Id, originId)
	if errors.Is(err, db.ErrNotFound) {
		tl = &domain.Timeline{TimelineType: outboxTimeline, ActorId: actor.Id, OriginId: originId}
	} else if err != nil {
		return 0, err
	}

	outbox := activitypub.NewOutboxConnector(client, originId, resp.Outbox)
	outbox.MaxPages = syncPages
	return app.Updater().Sync(ctx, outbox, tl)
}

func init() {
	syncCmd.Flags().StringVarP(&origin, "origin", "o", "", "origin name of the actors")
	syncCmd.Flags().IntVar(&syncPages, "pages", 1, "number of outbox pages to download")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 30*time.Second, "HTTP timeout")
	rootCmd.AddCommand(syncCmd)
}
