package main

import (
	"github.com/deemkeen/andstatus/web"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the admin HTTP API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.Conf.Conf.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		return web.NewServer(app).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
