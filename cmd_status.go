package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the store and register configured origins and accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("%s %s\n", green("✓"), app.Conf.Conf.DbPath)
		for _, oc := range app.Conf.Origins {
			o := app.Origins[oc.Name]
			fmt.Printf("  origin %-20s %s %s\n", o.Name, o.Type, gray(o.Host))
		}
		for _, a := range app.Accounts {
			fmt.Printf("  account %-19s %s\n", a.UniqueName(), gray(a.Oid))
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row counts and notification counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		counts, err := app.Store.Counts(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n\n", cyan("=== Store ==="))
		tables := make([]string, 0, len(counts))
		for t := range counts {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Printf("  %-14s %d\n", t, counts[t])
		}

		counters, err := app.Store.NotificationCounters(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", yellow("Notifications:"))
		if len(counters) == 0 {
			fmt.Printf("  %s\n", gray("none"))
		}
		for _, c := range counters {
			name := fmt.Sprintf("actor %d", c.ActorId)
			if a := app.Cache.Get(c.ActorId); a != nil && a.UniqueName() != "" {
				name = a.UniqueName()
			}
			fmt.Printf("  %-9s %-30s %d\n", c.Event, name, c.Count)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
}
