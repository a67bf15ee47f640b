package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/appctx"
	"github.com/deemkeen/andstatus/util"
	"github.com/spf13/cobra"
)

var (
	configPath string
	origin     string
	app        *appctx.Context
)

var rootCmd = &cobra.Command{
	Use:           util.Name,
	Short:         "Social network connector and data maintenance",
	Long:          `Ingests activities of social network origins into a local store and keeps that store consistent.`,
	Version:       util.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		conf, err := readConf()
		if err != nil {
			return err
		}
		util.SetupLogging(conf)
		log.Debug("Configuration", "conf", util.PrettyPrint(conf))

		app, err = appctx.New(conf)
		if err != nil {
			return err
		}
		return app.Init(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		return app.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./config.yaml or ~/.config/andstatus/config.yaml)")
}

func readConf() (*util.AppConfig, error) {
	if configPath != "" {
		return util.ReadConfFrom(configPath)
	}
	return util.ReadConf()
}

// originId resolves the --origin flag, defaulting to the only configured origin.
func originId() (int64, string, error) {
	name := origin
	if name == "" {
		if len(app.Conf.Origins) != 1 {
			return 0, "", fmt.Errorf("--origin is required with %d configured origins", len(app.Conf.Origins))
		}
		name = app.Conf.Origins[0].Name
	}
	o, err := app.Origin(name)
	if err != nil {
		return 0, "", err
	}
	return o.Id, o.Name, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if app != nil {
			app.Close()
		}
		os.Exit(1)
	}
}
